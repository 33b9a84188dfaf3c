package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
)

func TestExtractQueryID(t *testing.T) {
	tests := []struct {
		name   string
		uri    string
		wantID int
		wantOK bool
	}{
		{name: "valid segment URI", uri: "tmsearch://segments/42", wantID: 42, wantOK: true},
		{name: "invalid prefix", uri: "file://segments/42"},
		{name: "not a number", uri: "tmsearch://segments/abc"},
		{name: "zero is not a query id", uri: "tmsearch://segments/0"},
		{name: "empty URI", uri: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := extractQueryID(tt.uri)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

// Helper to create a ReadResourceRequest with the given URI.
func makeReadResourceRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestServer_handleStatusResource(t *testing.T) {
	ctx := context.Background()

	t.Run("nil status service reports unknown", func(t *testing.T) {
		server, err := NewServer(&Ports{Search: &mockSearchService{}})
		require.NoError(t, err)

		result, err := server.handleStatusResource(ctx, makeReadResourceRequest("tmsearch://status"))
		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Contains(t, result.Contents[0].Text, `"state": "unknown"`)
	})

	t.Run("reports server status", func(t *testing.T) {
		status := &mockStatusService{status: domain.ServerStatus{State: "ready", Ready: true, Documents: 12, Dimension: 100}}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Status: status})
		require.NoError(t, err)

		result, err := server.handleStatusResource(ctx, makeReadResourceRequest("tmsearch://status"))
		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Equal(t, "application/json", result.Contents[0].MIMEType)
		assert.Contains(t, result.Contents[0].Text, `"ready": true`)
		assert.Contains(t, result.Contents[0].Text, `"documents": 12`)
	})
}

func TestServer_handleSegmentResource(t *testing.T) {
	ctx := context.Background()
	segments := &mockSegmentService{records: map[int]domain.Record{
		7: {QueryID: 7, SrcText: "the cat sat", TgtText: "le chat était assis"},
	}}

	t.Run("nil segment service returns not found", func(t *testing.T) {
		server, err := NewServer(&Ports{Search: &mockSearchService{}})
		require.NoError(t, err)

		_, err = server.handleSegmentResource(ctx, makeReadResourceRequest("tmsearch://segments/7"))
		require.Error(t, err)
	})

	t.Run("returns segment", func(t *testing.T) {
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Segment: segments})
		require.NoError(t, err)

		result, err := server.handleSegmentResource(ctx, makeReadResourceRequest("tmsearch://segments/7"))
		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Contains(t, result.Contents[0].Text, "the cat sat")
		assert.Contains(t, result.Contents[0].Text, `"query_id": 7`)
	})

	t.Run("unknown id returns not found", func(t *testing.T) {
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Segment: segments})
		require.NoError(t, err)

		_, err = server.handleSegmentResource(ctx, makeReadResourceRequest("tmsearch://segments/8"))
		require.Error(t, err)
	})

	t.Run("malformed URI returns not found", func(t *testing.T) {
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Segment: segments})
		require.NoError(t, err)

		_, err = server.handleSegmentResource(ctx, makeReadResourceRequest("tmsearch://segments/x"))
		require.Error(t, err)
	})

	t.Run("store failure is wrapped", func(t *testing.T) {
		failing := &mockSegmentService{err: domain.ErrMetadataUnavailable}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Segment: failing})
		require.NoError(t, err)

		_, err = server.handleSegmentResource(ctx, makeReadResourceRequest("tmsearch://segments/7"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrMetadataUnavailable))
		assert.Contains(t, err.Error(), "getting segment")
	})
}
