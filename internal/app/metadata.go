package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/custodia-labs/tmsearch/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/tmsearch/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/tmsearch/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/tmsearch/internal/core/domain"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driven"
)

// Ensure lazyStore implements the interface.
var _ driven.MetadataStore = (*lazyStore)(nil)

// lazyStore connects to the metadata database on first use, so commands
// that never touch it (build) do not need it reachable. A failed connection
// is retried on the next call.
type lazyStore struct {
	open func(ctx context.Context) (driven.MetadataStore, error)

	mu    sync.Mutex
	store driven.MetadataStore
}

func newLazyStore(open func(ctx context.Context) (driven.MetadataStore, error)) *lazyStore {
	return &lazyStore{open: open}
}

// openMetadata returns the opener for the configured driver.
func openMetadata(cfg domain.DatabaseConfig) func(ctx context.Context) (driven.MetadataStore, error) {
	return func(ctx context.Context) (driven.MetadataStore, error) {
		switch cfg.Driver {
		case domain.DatabasePostgres:
			return postgres.Open(ctx, cfg.DSN)
		case domain.DatabaseSQLite:
			return sqlite.NewStore(cfg.Path)
		case domain.DatabaseMemory:
			return memory.NewMetadataStore(), nil
		default:
			return nil, fmt.Errorf("%w: database driver %q", domain.ErrUnsupportedType, cfg.Driver)
		}
	}
}

func (s *lazyStore) get(ctx context.Context) (driven.MetadataStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		return s.store, nil
	}
	store, err := s.open(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrMetadataUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrMetadataUnavailable, err)
	}
	s.store = store
	return store, nil
}

func (s *lazyStore) ImportCorpus(ctx context.Context, lines []domain.CorpusLine, prov domain.Provenance) error {
	store, err := s.get(ctx)
	if err != nil {
		return err
	}
	return store.ImportCorpus(ctx, lines, prov)
}

func (s *lazyStore) Records(ctx context.Context, queryIDs []int) (map[int]domain.Record, error) {
	store, err := s.get(ctx)
	if err != nil {
		return nil, err
	}
	return store.Records(ctx, queryIDs)
}

func (s *lazyStore) Count(ctx context.Context) (int, error) {
	store, err := s.get(ctx)
	if err != nil {
		return 0, err
	}
	return store.Count(ctx)
}

func (s *lazyStore) ValidatePositions(ctx context.Context, n int) error {
	store, err := s.get(ctx)
	if err != nil {
		return err
	}
	return store.ValidatePositions(ctx, n)
}

// Close closes the underlying store if it was ever opened.
func (s *lazyStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}
