package driven

import (
	"context"
	"io"
)

// VectorIndex provides approximate k-nearest-neighbour search over document vectors.
// An index is immutable once built; concurrent Search calls are safe.
type VectorIndex interface {
	// Search finds the k nearest document positions to the query, closest first.
	Search(ctx context.Context, query []float32, k int) ([]VectorHit, error)

	// Len returns the number of indexed documents.
	Len() int

	// Dim returns the vector dimension.
	Dim() int

	// Close releases resources.
	Close() error
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// Position is the 0-indexed corpus position of the matched document.
	Position int

	// Distance is the distance to the query; lower is closer.
	Distance float32
}

// IndexBackend builds and (de)serialises a VectorIndex.
type IndexBackend interface {
	// Build constructs an index over vectors; vectors[p] is indexed as position p.
	Build(ctx context.Context, vectors [][]float32) (VectorIndex, error)

	// Save writes the persisted form of an index built by this backend.
	Save(index VectorIndex, w io.Writer) error

	// Load restores an index written by Save.
	Load(ctx context.Context, r io.Reader) (VectorIndex, error)
}
