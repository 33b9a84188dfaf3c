// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
//
// Implementations live in internal/adapters/driven and in the algorithm packages
// (tokenizer, bm25, embedding, vectorizer). Services depend only on these interfaces.
package driven
