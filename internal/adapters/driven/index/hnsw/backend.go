package hnsw

import (
	"context"
	"fmt"
	"io"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driven"
)

// Ensure Backend implements the interface.
var _ driven.IndexBackend = (*Backend)(nil)

// Backend builds and persists HNSW indexes with a fixed configuration.
type Backend struct {
	cfg Config
}

// NewBackend creates a backend.
func NewBackend(cfg Config) *Backend {
	return &Backend{cfg: cfg}
}

// Build constructs the graph over vectors.
func (b *Backend) Build(ctx context.Context, vectors [][]float32) (driven.VectorIndex, error) {
	idx, err := Build(ctx, vectors, b.cfg)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// Save writes an index built by this backend.
func (b *Backend) Save(index driven.VectorIndex, w io.Writer) error {
	idx, ok := index.(*Index)
	if !ok {
		return fmt.Errorf("%w: cannot save %T as hnsw", domain.ErrUnsupportedType, index)
	}
	return idx.Save(w)
}

// Load restores an index written by Save.
func (b *Backend) Load(_ context.Context, r io.Reader) (driven.VectorIndex, error) {
	idx, err := Load(r)
	if err != nil {
		return nil, err
	}
	return idx, nil
}
