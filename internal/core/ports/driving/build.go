package driving

import (
	"context"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
)

// BuildService runs the offline indexing pipeline.
type BuildService interface {
	// Run builds, or reloads, every artifact for the configured corpus.
	Run(ctx context.Context) (domain.BuildReport, error)
}

// IngestService loads the corpus into the metadata store and checks alignment.
type IngestService interface {
	// Ingest imports the corpus pair and returns the number of stored segments.
	Ingest(ctx context.Context, prov domain.Provenance) (int, error)

	// Verify checks that every corpus line p matches the row with query_id p+1.
	Verify(ctx context.Context) error
}
