package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driven"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driving"
	"github.com/custodia-labs/tmsearch/internal/logger"
	"github.com/custodia-labs/tmsearch/internal/observability"
)

// Ensure QueryServer implements the interfaces.
var (
	_ driving.SearchService  = (*QueryServer)(nil)
	_ driving.StatusService  = (*QueryServer)(nil)
	_ driving.SegmentService = (*QueryServer)(nil)
)

// ServerState is the loading state of a QueryServer.
type ServerState int32

// Loading states, in the order they are reached.
const (
	StateUnloaded ServerState = iota
	StateModelLoaded
	StateIndexLoaded
	StateReady
)

// String returns the string representation.
func (s ServerState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateModelLoaded:
		return "model_loaded"
	case StateIndexLoaded:
		return "index_loaded"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// QueryServer answers fuzzy-match queries against the persisted artifacts.
// It refuses queries until Load has reached StateReady.
type QueryServer struct {
	artifacts driven.ArtifactStore
	trainer   driven.EmbeddingTrainer
	backend   driven.IndexBackend
	store     driven.MetadataStore
	cache     *lru.Cache[int, domain.Record]

	loadMu    sync.Mutex
	state     atomic.Int32
	documents atomic.Int64
	dimension atomic.Int64

	// mu guards model and index. Searches hold the read lock so Close
	// waits for them before releasing the index.
	mu    sync.RWMutex
	model driven.EmbeddingModel
	index driven.VectorIndex
}

// NewQueryServer creates a query server. cacheSize bounds the record cache;
// zero or less disables it.
func NewQueryServer(
	artifacts driven.ArtifactStore,
	trainer driven.EmbeddingTrainer,
	backend driven.IndexBackend,
	store driven.MetadataStore,
	cacheSize int,
) *QueryServer {
	s := &QueryServer{
		artifacts: artifacts,
		trainer:   trainer,
		backend:   backend,
		store:     store,
	}
	if cacheSize > 0 {
		cache, err := lru.New[int, domain.Record](cacheSize)
		if err == nil {
			s.cache = cache
		}
	}
	return s
}

// State returns the current loading state.
func (s *QueryServer) State() ServerState {
	return ServerState(s.state.Load())
}

// Load reads the model and the index and checks them against the metadata store.
// On failure the server stays in the last state it reached.
func (s *QueryServer) Load(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	logger.Section("Query Server Load")
	if s.State() == StateReady {
		return nil
	}

	var model driven.EmbeddingModel
	if _, err := s.artifacts.Load(domain.ArtifactModel, func(r io.Reader) error {
		m, err := s.trainer.Decode(r)
		model = m
		return err
	}); err != nil {
		return fmt.Errorf("loading model: %w", err)
	}
	s.dimension.Store(int64(model.Dim()))
	s.state.Store(int32(StateModelLoaded))
	logger.Debug("Model loaded: dimension %d", model.Dim())

	var idx driven.VectorIndex
	if _, err := s.artifacts.Load(domain.ArtifactIndex, func(r io.Reader) error {
		loaded, err := s.backend.Load(ctx, r)
		idx = loaded
		return err
	}); err != nil {
		return fmt.Errorf("loading index: %w", err)
	}
	if idx.Dim() != model.Dim() {
		_ = idx.Close()
		return fmt.Errorf("loading index: %w: index dimension %d, model dimension %d",
			domain.ErrArtifactStale, idx.Dim(), model.Dim())
	}
	s.documents.Store(int64(idx.Len()))
	s.state.Store(int32(StateIndexLoaded))
	logger.Debug("Index loaded: %d documents", idx.Len())

	if err := s.store.ValidatePositions(ctx, idx.Len()); err != nil {
		_ = idx.Close()
		return fmt.Errorf("checking metadata: %w", err)
	}

	s.mu.Lock()
	s.model = model
	s.index = idx
	s.mu.Unlock()
	s.state.Store(int32(StateReady))
	logger.Info("query server ready: %d documents", idx.Len())
	return nil
}

// Status returns the current loading state.
func (s *QueryServer) Status() domain.ServerStatus {
	state := s.State()
	return domain.ServerStatus{
		State:     state.String(),
		Ready:     state == StateReady,
		Documents: int(s.documents.Load()),
		Dimension: int(s.dimension.Load()),
	}
}

// Segment fetches one record from the metadata store. It does not need the
// artifacts to be loaded.
func (s *QueryServer) Segment(ctx context.Context, queryID int) (domain.Record, error) {
	if queryID < 1 {
		return domain.Record{}, fmt.Errorf("%w: query_id %d", domain.ErrInvalidInput, queryID)
	}
	if rec, ok := s.cached(queryID); ok {
		return rec, nil
	}
	rows, err := s.store.Records(ctx, []int{queryID})
	if err != nil {
		return domain.Record{}, err
	}
	rec, ok := rows[queryID]
	if !ok {
		return domain.Record{}, fmt.Errorf("%w: query_id %d", domain.ErrNotFound, queryID)
	}
	rec.QueryID = queryID
	return rec, nil
}

// Close releases the loaded index.
func (s *QueryServer) Close() error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Store(int32(StateUnloaded))
	s.documents.Store(0)
	s.dimension.Store(0)
	if s.index == nil {
		return nil
	}
	err := s.index.Close()
	s.index = nil
	s.model = nil
	return err
}

// Search returns up to k records most similar to text, closest first.
func (s *QueryServer) Search(ctx context.Context, text string, k int) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return nil, domain.ErrNotReady
	}

	ctx, span := observability.StartSpan(ctx, "search", attribute.Int("search.k", k))
	defer span.End()

	records, err := s.search(ctx, text, k)
	observability.RecordError(span, err)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	span.SetAttributes(attribute.Int("search.results", len(records)))
	return records, nil
}

func (s *QueryServer) search(ctx context.Context, text string, k int) ([]domain.Record, error) {
	logger.Debug("Query: %q k=%d", text, k)
	if k <= 0 || s.index.Len() == 0 {
		return []domain.Record{}, nil
	}

	query, err := s.vectorizeQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	knnCtx, knnSpan := observability.StartSpan(ctx, "search.knn")
	hits, err := s.index.Search(knnCtx, query, k)
	observability.RecordError(knnSpan, err)
	knnSpan.End()
	if err != nil {
		return nil, err
	}

	return s.join(ctx, hits)
}

// vectorizeQuery averages the embeddings of the lowercased whitespace tokens
// that resolve. Tokens without any embedding are skipped.
func (s *QueryServer) vectorizeQuery(ctx context.Context, text string) ([]float32, error) {
	_, span := observability.StartSpan(ctx, "search.vectorize")
	defer span.End()

	dim := s.model.Dim()
	sum := make([]float32, dim)
	resolved := 0
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		emb, ok := s.model.Lookup(tok)
		if !ok || len(emb) != dim {
			logger.Debug("Query token %q unresolved", tok)
			continue
		}
		for i, x := range emb {
			sum[i] += x
		}
		resolved++
	}
	span.SetAttributes(attribute.Int("search.resolved_tokens", resolved))
	if resolved == 0 {
		observability.RecordError(span, domain.ErrNoResolvableTokens)
		return nil, domain.ErrNoResolvableTokens
	}
	for i := range sum {
		sum[i] /= float32(resolved)
	}
	return sum, nil
}

// join resolves the hits to records in one metadata round trip, keeping hit order.
func (s *QueryServer) join(ctx context.Context, hits []driven.VectorHit) ([]domain.Record, error) {
	ctx, span := observability.StartSpan(ctx, "search.join", attribute.Int("search.hits", len(hits)))
	defer span.End()

	found := make(map[int]domain.Record, len(hits))
	var missing []int
	for _, h := range hits {
		id := domain.QueryIDFor(h.Position)
		if rec, ok := s.cached(id); ok {
			found[id] = rec
			continue
		}
		missing = append(missing, id)
	}
	span.SetAttributes(attribute.Int("search.cache_misses", len(missing)))

	if len(missing) > 0 {
		rows, err := s.store.Records(ctx, missing)
		if err != nil {
			if !errors.Is(err, domain.ErrMetadataUnavailable) {
				err = fmt.Errorf("%w: %w", domain.ErrMetadataUnavailable, err)
			}
			observability.RecordError(span, err)
			return nil, err
		}
		for id, rec := range rows {
			found[id] = rec
			if s.cache != nil {
				s.cache.Add(id, rec)
			}
		}
	}

	records := make([]domain.Record, 0, len(hits))
	for i, h := range hits {
		id := domain.QueryIDFor(h.Position)
		rec, ok := found[id]
		if !ok {
			err := fmt.Errorf("%w: no metadata row for query_id %d", domain.ErrPositionMismatch, id)
			observability.RecordError(span, err)
			return nil, err
		}
		rec.QueryID = id
		rec.Rank = i + 1
		rec.Distance = h.Distance
		records = append(records, rec)
	}
	return records, nil
}

func (s *QueryServer) cached(id int) (domain.Record, bool) {
	if s.cache == nil {
		return domain.Record{}, false
	}
	return s.cache.Get(id)
}

// AdvancedSearch runs Search and projects each record onto the selected fields.
func (s *QueryServer) AdvancedSearch(
	ctx context.Context, text string, k int, fields domain.FieldSet,
) ([]map[string]any, error) {
	records, err := s.Search(ctx, text, k)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = r.Project(fields)
	}
	return out, nil
}
