package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for tmsearch resources.
	uriScheme = "tmsearch://"

	mimeJSON = "application/json"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "status",
		Name:        "status",
		Description: "Loading state and size of the search index",
		MIMEType:    mimeJSON,
	}, s.handleStatusResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "segments/{queryId}",
		Name:        "segment",
		Description: "A stored translation-memory segment with its provenance",
		MIMEType:    mimeJSON,
	}, s.handleSegmentResource)
}

// handleStatusResource reports whether the server is ready to answer queries.
func (s *Server) handleStatusResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	status := domain.ServerStatus{State: "unknown"}
	if s.ports.Status != nil {
		status = s.ports.Status.Status()
	}
	return jsonResource(req.Params.URI, status)
}

// handleSegmentResource returns the segment stored under a query id.
func (s *Server) handleSegmentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Segment == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	// tmsearch://segments/{queryId}
	id, ok := extractQueryID(req.Params.URI)
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	rec, err := s.ports.Segment.Segment(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting segment: %w", err)
	}
	return jsonResource(req.Params.URI, rec)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: mimeJSON,
			Text:     string(data),
		}},
	}, nil
}

// extractQueryID extracts the query id from a URI like tmsearch://segments/{queryId}.
func extractQueryID(uri string) (int, bool) {
	const prefix = uriScheme + "segments/"

	if !strings.HasPrefix(uri, prefix) {
		return 0, false
	}
	id, err := strconv.Atoi(strings.TrimPrefix(uri, prefix))
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}
