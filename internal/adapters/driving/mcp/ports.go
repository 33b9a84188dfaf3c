package mcp

import (
	"github.com/custodia-labs/tmsearch/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Search provides fuzzy-match retrieval.
	Search driving.SearchService

	// Status reports query server readiness.
	Status driving.StatusService

	// Segment looks up stored segments by query id.
	Segment driving.SegmentService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	// Status and Segment are optional
	return nil
}
