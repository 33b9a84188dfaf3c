package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/tmsearch/internal/bm25"
	"github.com/custodia-labs/tmsearch/internal/core/domain"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driven"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driving"
	"github.com/custodia-labs/tmsearch/internal/corpus"
	"github.com/custodia-labs/tmsearch/internal/logger"
	"github.com/custodia-labs/tmsearch/internal/tokenizer"
	"github.com/custodia-labs/tmsearch/internal/vectorizer"
)

// Ensure BuildPipeline implements the interface.
var _ driving.BuildService = (*BuildPipeline)(nil)

// BuildContext carries the products of each pipeline stage.
// Stages take it by value and return an extended copy.
type BuildContext struct {
	BuildID string

	Tokens            [][]string
	CorpusFingerprint string

	Weights driven.TermWeights

	Model            driven.EmbeddingModel
	ModelFingerprint string

	Vectors            [][]float32
	VectorsFingerprint string
	Degraded           []int

	Index driven.VectorIndex

	Reused   []domain.ArtifactKind
	Computed []domain.ArtifactKind
}

func (c BuildContext) reused(kind domain.ArtifactKind) BuildContext {
	c.Reused = appendKind(c.Reused, kind)
	return c
}

func (c BuildContext) computed(kind domain.ArtifactKind) BuildContext {
	c.Computed = appendKind(c.Computed, kind)
	return c
}

func appendKind(kinds []domain.ArtifactKind, kind domain.ArtifactKind) []domain.ArtifactKind {
	out := make([]domain.ArtifactKind, len(kinds), len(kinds)+1)
	copy(out, kinds)
	return append(out, kind)
}

// Report summarises the context as a build report.
func (c BuildContext) Report() domain.BuildReport {
	r := domain.BuildReport{
		BuildID:   c.BuildID,
		Documents: len(c.Tokens),
		Degraded:  c.Degraded,
		Reused:    c.Reused,
		Computed:  c.Computed,
	}
	if c.Model != nil {
		r.Dimension = c.Model.Dim()
	}
	return r
}

type stage struct {
	name string
	run  func(context.Context, BuildContext) (BuildContext, error)
}

// BuildPipeline runs the offline stages tokenize, weight, embed, vectorize
// and index. Each persisted artifact records the fingerprint of its input and
// is reloaded instead of recomputed while that fingerprint still matches.
type BuildPipeline struct {
	cfg       domain.Config
	tokenizer driven.Tokenizer
	trainer   driven.EmbeddingTrainer
	backend   driven.IndexBackend
	artifacts driven.ArtifactStore
	codec     driven.VectorCodec
	newID     func() string
}

// NewBuildPipeline creates a new build pipeline.
func NewBuildPipeline(
	cfg domain.Config,
	tok driven.Tokenizer,
	trainer driven.EmbeddingTrainer,
	backend driven.IndexBackend,
	artifacts driven.ArtifactStore,
	codec driven.VectorCodec,
) *BuildPipeline {
	return &BuildPipeline{
		cfg:       cfg,
		tokenizer: tok,
		trainer:   trainer,
		backend:   backend,
		artifacts: artifacts,
		codec:     codec,
		newID:     uuid.NewString,
	}
}

func (p *BuildPipeline) stages() []stage {
	return []stage{
		{"tokenize", p.tokenize},
		{"weights", p.weigh},
		{"embed", p.embed},
		{"vectorize", p.vectorize},
		{"index", p.index},
	}
}

// Run executes every stage and returns what was reused and what was computed.
func (p *BuildPipeline) Run(ctx context.Context) (domain.BuildReport, error) {
	logger.Section("Build Pipeline")
	start := time.Now()

	bc := BuildContext{BuildID: p.newID()}
	logger.Debug("Build ID: %s", bc.BuildID)

	for _, st := range p.stages() {
		if err := ctx.Err(); err != nil {
			return bc.Report(), err
		}
		stageStart := time.Now()
		next, err := st.run(ctx, bc)
		if err != nil {
			return bc.Report(), fmt.Errorf("build: %s: %w", st.name, err)
		}
		bc = next
		logger.Debug("Stage %s done in %v", st.name, time.Since(stageStart))
	}

	if bc.Index != nil {
		if err := bc.Index.Close(); err != nil {
			logger.Warn("build: closing index: %v", err)
		}
	}

	report := bc.Report()
	if n := len(report.Degraded); n > 0 {
		logger.Error("build: %d of %d documents degraded to zero vectors at positions %v",
			n, report.Documents, report.Degraded)
	}
	logger.Info("build %s: %d documents, reused %v, computed %v in %v",
		report.BuildID, report.Documents, report.Reused, report.Computed, time.Since(start))
	return report, nil
}

func (p *BuildPipeline) tokenize(ctx context.Context, c BuildContext) (BuildContext, error) {
	lines, err := corpus.ReadLines(p.cfg.Training.SrcCorpusPath)
	if err != nil {
		return c, err
	}
	tokens, err := tokenizer.TokenizeCorpus(ctx, p.tokenizer, lines, p.cfg.Training.Workers)
	if err != nil {
		return c, err
	}
	c.Tokens = tokens
	c.CorpusFingerprint = corpus.Fingerprint(tokens, p.trainingSettings())
	logger.Debug("Tokenized %d documents", len(tokens))
	return c, nil
}

// trainingSettings lists every setting the model depends on besides the corpus.
func (p *BuildPipeline) trainingSettings() string {
	t := p.cfg.Training
	return fmt.Sprintf("lang=%s dim=%d window=%d min_count=%d negative=%d n=%d-%d buckets=%d epochs=%d lr=%g seed=%d",
		p.tokenizer.Language(), t.EmbeddingDim, t.Window, t.MinCount, t.Negative,
		t.MinN, t.MaxN, t.Buckets, t.TrainEpoch, t.LearningRate, t.Seed)
}

func (p *BuildPipeline) indexSettings() string {
	i := p.cfg.Index
	return fmt.Sprintf("backend=%s distance=%s m=%d ef_construction=%d collection=%s",
		i.Backend, p.cfg.Distance(), i.M, i.EfConstruction, i.QdrantCollection)
}

func (p *BuildPipeline) weigh(_ context.Context, c BuildContext) (BuildContext, error) {
	c.Weights = bm25.New(c.Tokens)
	return c, nil
}

func (p *BuildPipeline) embed(ctx context.Context, c BuildContext) (BuildContext, error) {
	kind := domain.ArtifactModel
	parent := c.CorpusFingerprint

	if p.reusable(kind, parent) {
		var model driven.EmbeddingModel
		h, err := p.artifacts.Load(kind, func(r io.Reader) error {
			m, err := p.trainer.Decode(r)
			model = m
			return err
		})
		if err == nil {
			c.Model = model
			c.ModelFingerprint = h.Checksum
			return c.reused(kind), nil
		}
		logger.Warn("build: reloading %s failed, recomputing: %v", kind, err)
	}

	model, err := p.trainer.Train(ctx, c.Tokens)
	if err != nil {
		return c, fmt.Errorf("training embeddings: %w", err)
	}
	h, err := p.artifacts.Save(kind, c.BuildID, parent, func(w io.Writer) error {
		return p.trainer.Encode(model, w)
	})
	if err != nil {
		return c, err
	}
	c.Model = model
	c.ModelFingerprint = h.Checksum
	return c.computed(kind), nil
}

func (p *BuildPipeline) vectorize(_ context.Context, c BuildContext) (BuildContext, error) {
	kind := domain.ArtifactVectors
	parent := derive(c.ModelFingerprint, c.CorpusFingerprint)
	dim := c.Model.Dim()

	if p.reusable(kind, parent) {
		var vectors [][]float32
		h, err := p.artifacts.Load(kind, func(r io.Reader) error {
			d, vs, err := p.codec.DecodeVectors(r)
			if err != nil {
				return err
			}
			if d != dim || len(vs) != len(c.Tokens) {
				return fmt.Errorf("%w: %d vectors of dimension %d, want %d of %d",
					domain.ErrArtifactStale, len(vs), d, len(c.Tokens), dim)
			}
			vectors = vs
			return nil
		})
		if err == nil {
			c.Vectors = vectors
			c.VectorsFingerprint = h.Checksum
			c.Degraded = zeroPositions(vectors)
			return c.reused(kind), nil
		}
		logger.Warn("build: reloading %s failed, recomputing: %v", kind, err)
	}

	vectors, report, err := vectorizer.Vectorize(c.Tokens, c.Model, c.Weights)
	if err != nil {
		return c, err
	}
	if fixed := vectorizer.Validate(vectors, dim); len(fixed) > 0 {
		report.Degraded = mergePositions(report.Degraded, fixed)
	}
	logger.Debug("Vectorized %d documents, %d degraded", len(vectors), len(report.Degraded))

	h, err := p.artifacts.Save(kind, c.BuildID, parent, func(w io.Writer) error {
		return p.codec.EncodeVectors(w, dim, vectors)
	})
	if err != nil {
		return c, err
	}
	c.Vectors = vectors
	c.VectorsFingerprint = h.Checksum
	c.Degraded = report.Degraded
	return c.computed(kind), nil
}

func (p *BuildPipeline) index(ctx context.Context, c BuildContext) (BuildContext, error) {
	kind := domain.ArtifactIndex
	parent := derive(c.VectorsFingerprint, p.indexSettings())

	if p.reusable(kind, parent) {
		var idx driven.VectorIndex
		_, err := p.artifacts.Load(kind, func(r io.Reader) error {
			loaded, err := p.backend.Load(ctx, r)
			idx = loaded
			return err
		})
		if err == nil && idx.Len() == len(c.Vectors) {
			c.Index = idx
			return c.reused(kind), nil
		}
		if err == nil {
			_ = idx.Close()
			err = fmt.Errorf("%w: index holds %d documents, want %d", domain.ErrArtifactStale, idx.Len(), len(c.Vectors))
		}
		logger.Warn("build: reloading %s failed, recomputing: %v", kind, err)
	}

	idx, err := p.backend.Build(ctx, c.Vectors)
	if err != nil {
		return c, fmt.Errorf("building index: %w", err)
	}
	if _, err := p.artifacts.Save(kind, c.BuildID, parent, func(w io.Writer) error {
		return p.backend.Save(idx, w)
	}); err != nil {
		_ = idx.Close()
		return c, err
	}
	c.Index = idx
	return c.computed(kind), nil
}

// reusable reports whether the persisted artifact was derived from parent.
func (p *BuildPipeline) reusable(kind domain.ArtifactKind, parent string) bool {
	if !p.artifacts.Exists(kind) {
		logger.Debug("No persisted %s", kind)
		return false
	}
	h, err := p.artifacts.Header(kind)
	if err != nil {
		logger.Warn("build: reading %s header: %v", kind, err)
		return false
	}
	if h.Parent != parent {
		logger.Info("build: %s is stale (built by %s), recomputing", kind, h.BuildID)
		return false
	}
	return true
}

// derive combines upstream fingerprints into a parent fingerprint.
func derive(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		io.WriteString(h, part) //nolint:errcheck
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func zeroPositions(vectors [][]float32) []int {
	var out []int
	for p, v := range vectors {
		zero := true
		for _, x := range v {
			if x != 0 {
				zero = false
				break
			}
		}
		if zero {
			out = append(out, p)
		}
	}
	return out
}

// mergePositions merges two ascending position lists without duplicates.
func mergePositions(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i] < b[j]):
			out = append(out, a[i])
			i++
		case i == len(a) || b[j] < a[i]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}
