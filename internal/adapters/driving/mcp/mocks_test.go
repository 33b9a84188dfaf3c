package mcp

import (
	"context"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results []domain.Record
	err     error

	gotQuery  string
	gotK      int
	gotFields domain.FieldSet
}

func (m *mockSearchService) Search(_ context.Context, text string, k int) ([]domain.Record, error) {
	m.gotQuery = text
	m.gotK = k
	return m.results, m.err
}

func (m *mockSearchService) AdvancedSearch(
	_ context.Context, text string, k int, fields domain.FieldSet,
) ([]map[string]any, error) {
	m.gotQuery = text
	m.gotK = k
	m.gotFields = fields
	if m.err != nil {
		return nil, m.err
	}
	out := make([]map[string]any, len(m.results))
	for i, r := range m.results {
		out[i] = r.Project(fields)
	}
	return out, nil
}

// mockStatusService is a mock implementation of driving.StatusService.
type mockStatusService struct {
	status domain.ServerStatus
}

func (m *mockStatusService) Status() domain.ServerStatus {
	return m.status
}

// mockSegmentService is a mock implementation of driving.SegmentService.
type mockSegmentService struct {
	records map[int]domain.Record
	err     error
}

func (m *mockSegmentService) Segment(_ context.Context, queryID int) (domain.Record, error) {
	if m.err != nil {
		return domain.Record{}, m.err
	}
	rec, ok := m.records[queryID]
	if !ok {
		return domain.Record{}, domain.ErrNotFound
	}
	return rec, nil
}
