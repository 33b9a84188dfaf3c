// Package rest provides the HTTP front end for fuzzy-match search.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/tmsearch/internal/core/ports/driving"
	"github.com/custodia-labs/tmsearch/internal/logger"
)

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("rest: search service is required")

const shutdownTimeout = 5 * time.Second

// Ports aggregates the driving ports served over HTTP.
type Ports struct {
	Search  driving.SearchService
	Status  driving.StatusService
	Segment driving.SegmentService

	// MCP, when set, is mounted under /mcp.
	MCP http.Handler
}

// Config configures the HTTP server.
type Config struct {
	Addr      string
	RateLimit float64
	Burst     int
}

// Server serves the search API.
type Server struct {
	cfg    Config
	engine *gin.Engine
}

// NewServer builds the router.
func NewServer(ports Ports, cfg Config) (*Server, error) {
	if ports.Search == nil {
		return nil, ErrMissingSearchService
	}
	if cfg.Addr == "" {
		cfg.Addr = ":5555"
	}
	return &Server{cfg: cfg, engine: newRouter(ports, cfg)}, nil
}

func newRouter(ports Ports, cfg Config) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), RequestLogger(), gzip.Gzip(gzip.DefaultCompression))

	h := &handlers{ports: ports}
	engine.GET("/", h.home)
	engine.GET("/healthz", h.health)

	api := engine.Group("")
	api.Use(RateLimit(cfg.RateLimit, cfg.Burst))
	api.GET("/search", h.search)
	api.GET("/advanced_search", h.advancedSearch)
	api.GET("/segments/:id", h.segment)

	if ports.MCP != nil {
		engine.Any("/mcp", gin.WrapH(ports.MCP))
	}
	return engine
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening on %s", s.cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
