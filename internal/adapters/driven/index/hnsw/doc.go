// Package hnsw implements the approximate document index as an in-process
// Hierarchical Navigable Small World graph.
//
// Node ids are corpus positions: vectors[p] becomes node p. The graph is
// built once, is never mutated afterwards, and serves concurrent searches
// without locking.
package hnsw
