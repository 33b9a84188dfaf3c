package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
)

func TestServer_handleSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns matches", func(t *testing.T) {
		mockSearch := &mockSearchService{
			results: []domain.Record{
				{QueryID: 1, Rank: 1, SrcText: "the cat sat", TgtText: "le chat était assis", Distance: 0.01},
			},
		}

		server, err := NewServer(&Ports{Search: mockSearch})
		require.NoError(t, err)

		_, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "the cat", Limit: 3})

		require.NoError(t, err)
		assert.Equal(t, 1, output.Count)
		require.Len(t, output.Matches, 1)
		assert.Equal(t, "le chat était assis", output.Matches[0].TgtText)
		assert.Equal(t, "the cat", mockSearch.gotQuery)
		assert.Equal(t, 3, mockSearch.gotK)
	})

	t.Run("default limit is 5", func(t *testing.T) {
		mockSearch := &mockSearchService{}
		server, err := NewServer(&Ports{Search: mockSearch})
		require.NoError(t, err)

		_, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "test"})

		require.NoError(t, err)
		assert.Equal(t, 0, output.Count)
		assert.NotNil(t, output.Matches)
		assert.Equal(t, 5, mockSearch.gotK)
	})

	t.Run("returns error on search failure", func(t *testing.T) {
		server, err := NewServer(&Ports{Search: &mockSearchService{err: errors.New("search failed")}})
		require.NoError(t, err)

		_, _, err = server.handleSearch(ctx, nil, SearchInput{Query: "test"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "search failed")
	})
}

func TestServer_handleAdvancedSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("projects selected fields", func(t *testing.T) {
		mockSearch := &mockSearchService{
			results: []domain.Record{{SrcText: "a", TgtText: "b", Quality: "good", Domain: "law"}},
		}
		server, err := NewServer(&Ports{Search: mockSearch})
		require.NoError(t, err)

		_, output, err := server.handleAdvancedSearch(ctx, nil, AdvancedSearchInput{Query: "a", Quality: true})

		require.NoError(t, err)
		require.Equal(t, 1, output.Count)
		assert.Equal(t, "good", output.Matches[0]["quality"])
		assert.NotContains(t, output.Matches[0], "domain")
		assert.Equal(t, domain.FieldSet{Quality: true}, mockSearch.gotFields)
	})

	t.Run("not ready is surfaced", func(t *testing.T) {
		server, err := NewServer(&Ports{Search: &mockSearchService{err: domain.ErrNotReady}})
		require.NoError(t, err)

		_, _, err = server.handleAdvancedSearch(ctx, nil, AdvancedSearchInput{Query: "a"})
		assert.ErrorIs(t, err, domain.ErrNotReady)
	})
}
