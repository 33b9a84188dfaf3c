package driving

import (
	"context"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
)

// SearchService provides fuzzy-match retrieval to external actors.
type SearchService interface {
	// Search returns up to k records most similar to text, closest first.
	Search(ctx context.Context, text string, k int) ([]domain.Record, error)

	// AdvancedSearch runs Search and projects each record onto the selected fields.
	AdvancedSearch(ctx context.Context, text string, k int, fields domain.FieldSet) ([]map[string]any, error)
}

// StatusService reports the readiness of the query path.
type StatusService interface {
	// Status returns the current loading state without blocking on a load in progress.
	Status() domain.ServerStatus
}

// SegmentService looks up stored segments directly.
type SegmentService interface {
	// Segment returns the record stored under queryID, or domain.ErrNotFound.
	Segment(ctx context.Context, queryID int) (domain.Record, error)
}
