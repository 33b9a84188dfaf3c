// Package mcp provides an MCP (Model Context Protocol) server adapter.
// It lets AI assistants query the translation memory for fuzzy matches.
package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")
