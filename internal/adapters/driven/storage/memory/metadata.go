// Package memory provides an in-memory metadata store for tests and small corpora.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driven"
)

// Ensure MetadataStore implements the interface.
var _ driven.MetadataStore = (*MetadataStore)(nil)

// MetadataStore is an in-memory implementation of driven.MetadataStore.
type MetadataStore struct {
	mu      sync.RWMutex
	records map[int]domain.Record
	fail    error
	fetches int
}

// NewMetadataStore creates a new in-memory metadata store.
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{
		records: make(map[int]domain.Record),
	}
}

// ImportCorpus replaces every record with lines, all attributed to prov.
func (s *MetadataStore) ImportCorpus(_ context.Context, lines []domain.CorpusLine, prov domain.Provenance) error {
	if !prov.Kind.IsValid() {
		return fmt.Errorf("%w: source kind %q", domain.ErrInvalidInput, prov.Kind)
	}

	records := make(map[int]domain.Record, len(lines))
	for _, line := range lines {
		id := line.QueryID()
		if _, dup := records[id]; dup {
			return fmt.Errorf("%w: duplicate corpus position %d", domain.ErrInvalidInput, line.Position)
		}
		records[id] = domain.Record{
			QueryID:    id,
			SrcLang:    prov.SourceLang,
			SrcText:    line.Source,
			TgtLang:    prov.TargetLang,
			TgtText:    line.Target,
			Quality:    prov.Quality,
			Type:       prov.Type,
			URI:        prov.URI,
			LastUpdate: formatDate(prov.LastUpdate),
			Domain:     prov.Domain.Domain,
			YCC:        prov.Domain.Code,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.records = records
	return nil
}

// Records returns the records for queryIDs; unknown ids are omitted.
func (s *MetadataStore) Records(_ context.Context, queryIDs []int) (map[int]domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.fail != nil {
		return nil, s.fail
	}

	out := make(map[int]domain.Record, len(queryIDs))
	for _, id := range queryIDs {
		if r, ok := s.records[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

// Count returns the number of records.
func (s *MetadataStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return 0, s.fail
	}
	return len(s.records), nil
}

// ValidatePositions checks that ids 1..n are all present.
func (s *MetadataStore) ValidatePositions(_ context.Context, n int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return s.fail
	}

	span := domain.PositionSpan{Count: len(s.records), Min: -1, Max: -1}
	for id := range s.records {
		p := domain.PositionFor(id)
		if span.Min < 0 || p < span.Min {
			span.Min = p
		}
		if p > span.Max {
			span.Max = p
		}
	}
	return span.Check(n)
}

// Close is a no-op.
func (s *MetadataStore) Close() error { return nil }

// SetUnavailable makes every subsequent call fail with ErrMetadataUnavailable
// when down is true.
func (s *MetadataStore) SetUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if down {
		s.fail = fmt.Errorf("%w: memory store offline", domain.ErrMetadataUnavailable)
	} else {
		s.fail = nil
	}
}

// Fetches returns how many times Records has been called.
func (s *MetadataStore) Fetches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetches
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}
