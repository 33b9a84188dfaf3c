package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
)

// defaultLimit is the number of matches returned when the client sends none.
const defaultLimit = 5

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the source-language segment to find fuzzy matches for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of matches to return (default 5)"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Matches []domain.Record `json:"matches"`
	Count   int             `json:"count"`
}

// AdvancedSearchInput is the input schema for the advanced_search tool.
type AdvancedSearchInput struct {
	Query   string `json:"query" jsonschema:"the source-language segment to find fuzzy matches for"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of matches to return (default 5)"`
	Type    bool   `json:"type,omitempty" jsonschema:"include the segment type"`
	Domain  bool   `json:"domain,omitempty" jsonschema:"include the subject domain"`
	Quality bool   `json:"quality,omitempty" jsonschema:"include the quality flag"`
	YCC     bool   `json:"ycc,omitempty" jsonschema:"include the YCC domain code"`
}

// AdvancedSearchOutput is the output schema for the advanced_search tool.
type AdvancedSearchOutput struct {
	Matches []map[string]any `json:"matches"`
	Count   int              `json:"count"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Find translation-memory segments similar to a source sentence",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "advanced_search",
		Description: "Find similar segments and return only the selected provenance fields",
	}, s.handleAdvancedSearch)
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	records, err := s.ports.Search.Search(ctx, input.Query, limitOrDefault(input.Limit))
	if err != nil {
		return nil, SearchOutput{}, err
	}
	if records == nil {
		records = []domain.Record{}
	}
	return nil, SearchOutput{Matches: records, Count: len(records)}, nil
}

// handleAdvancedSearch handles the advanced_search tool invocation.
func (s *Server) handleAdvancedSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AdvancedSearchInput,
) (*mcp.CallToolResult, AdvancedSearchOutput, error) {
	fields := domain.FieldSet{
		Type:    input.Type,
		Domain:  input.Domain,
		Quality: input.Quality,
		YCC:     input.YCC,
	}
	rows, err := s.ports.Search.AdvancedSearch(ctx, input.Query, limitOrDefault(input.Limit), fields)
	if err != nil {
		return nil, AdvancedSearchOutput{}, err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return nil, AdvancedSearchOutput{Matches: rows, Count: len(rows)}, nil
}
