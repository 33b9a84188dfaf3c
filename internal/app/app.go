// Package app wires configuration, adapters and services into a runnable engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/tmsearch/internal/adapters/driven/artifacts/file"
	configfile "github.com/custodia-labs/tmsearch/internal/adapters/driven/config/file"
	"github.com/custodia-labs/tmsearch/internal/adapters/driven/index/hnsw"
	"github.com/custodia-labs/tmsearch/internal/adapters/driven/index/qdrant"
	"github.com/custodia-labs/tmsearch/internal/adapters/driving/cli"
	"github.com/custodia-labs/tmsearch/internal/core/domain"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driven"
	"github.com/custodia-labs/tmsearch/internal/core/services"
	"github.com/custodia-labs/tmsearch/internal/embedding"
	"github.com/custodia-labs/tmsearch/internal/logger"
	"github.com/custodia-labs/tmsearch/internal/observability"
	"github.com/custodia-labs/tmsearch/internal/tokenizer"
)

// tracingFlushTimeout bounds the span flush on Close.
const tracingFlushTimeout = 5 * time.Second

// App holds the wired engine.
type App struct {
	Config domain.Config

	Query  *services.QueryServer
	Build  *services.BuildPipeline
	Ingest *services.IngestService

	store   driven.MetadataStore
	backend driven.IndexBackend
	tracing *observability.TracerProvider
}

// Load reads the configuration at path and wires the engine from it.
func Load(ctx context.Context, path, version string) (*App, error) {
	cfg, err := configfile.NewConfigStore(path).Load()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, version)
}

// New wires the engine from cfg. The metadata database is connected lazily.
func New(ctx context.Context, cfg domain.Config, version string) (*App, error) {
	tok, err := tokenizer.New(cfg.Language.SourceLang)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: %w", err)
	}
	trainer := embedding.NewTrainer(embedding.ConfigFrom(cfg.Training))

	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}

	tracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:    "tmsearch",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		_ = closeBackend(backend)
		return nil, fmt.Errorf("tracing: %w", err)
	}

	artifacts := file.NewStore(cfg.Serialization)
	store := newLazyStore(openMetadata(cfg.Database))

	logger.Debug("index backend %s, database %s", cfg.Index.Backend, cfg.Database.Driver)
	return &App{
		Config:  cfg,
		Query:   services.NewQueryServer(artifacts, trainer, backend, store, cfg.Database.CacheSize),
		Build:   services.NewBuildPipeline(cfg, tok, trainer, backend, artifacts, file.VectorCodec{}),
		Ingest:  services.NewIngestService(cfg, store),
		store:   store,
		backend: backend,
		tracing: tracing,
	}, nil
}

func newBackend(cfg domain.Config) (driven.IndexBackend, error) {
	switch cfg.Index.Backend {
	case domain.IndexBackendQdrant:
		b, err := qdrant.New(qdrant.ConfigFrom(cfg))
		if err != nil {
			return nil, fmt.Errorf("index backend: %w", err)
		}
		return b, nil
	case domain.IndexBackendHNSW:
		return hnsw.NewBackend(hnsw.ConfigFrom(cfg)), nil
	default:
		return nil, fmt.Errorf("%w: index backend %q", domain.ErrUnsupportedType, cfg.Index.Backend)
	}
}

func closeBackend(b driven.IndexBackend) error {
	if c, ok := b.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Services exposes the engine to the command line.
func (a *App) Services() *cli.Services {
	return &cli.Services{
		Config:  a.Config,
		Search:  a.Query,
		Status:  a.Query,
		Segment: a.Query,
		Build:   a.Build,
		Ingest:  a.Ingest,
		Loader:  a.Query,
		Close:   a.Close,
	}
}

// Close releases the index, the database connection and flushes traces.
func (a *App) Close() error {
	var errs []error
	errs = append(errs, a.Query.Close(), a.store.Close(), closeBackend(a.backend))

	ctx, cancel := context.WithTimeout(context.Background(), tracingFlushTimeout)
	defer cancel()
	errs = append(errs, a.tracing.Shutdown(ctx))
	return errors.Join(errs...)
}

// Opener adapts Load to the command line's service opener.
func Opener(version string) cli.Opener {
	return func(ctx context.Context, path string) (*cli.Services, error) {
		a, err := Load(ctx, path, version)
		if err != nil {
			return nil, err
		}
		return a.Services(), nil
	}
}
