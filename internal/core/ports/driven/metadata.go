package driven

import (
	"context"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
)

// MetadataStore maps 1-indexed query ids to translation-memory records.
// Backed by a relational database holding segments and their provenance.
type MetadataStore interface {
	// ImportCorpus stores every line with query_id = position + 1.
	ImportCorpus(ctx context.Context, lines []domain.CorpusLine, prov domain.Provenance) error

	// Records fetches the records for the given query ids in one round trip.
	// Ids without a row are absent from the returned map.
	Records(ctx context.Context, queryIDs []int) (map[int]domain.Record, error)

	// Count returns the number of stored segments.
	Count(ctx context.Context) (int, error)

	// ValidatePositions checks that exactly n rows exist with query_id = position + 1
	// covering positions 0..n-1.
	ValidatePositions(ctx context.Context, n int) error

	// Close releases the connection pool.
	Close() error
}
