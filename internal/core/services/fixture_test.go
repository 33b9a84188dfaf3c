package services

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/tmsearch/internal/adapters/driven/artifacts/file"
	"github.com/custodia-labs/tmsearch/internal/adapters/driven/index/hnsw"
	"github.com/custodia-labs/tmsearch/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/tmsearch/internal/core/domain"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driven"
	"github.com/custodia-labs/tmsearch/internal/tokenizer"
)

// --- Mock implementations ---

// tableModel resolves tokens from a fixed table.
type tableModel struct {
	Dimension int                  `json:"dim"`
	Rows      map[string][]float32 `json:"rows"`
}

func (m *tableModel) Lookup(token string) ([]float32, bool) {
	v, ok := m.Rows[token]
	return v, ok
}

func (m *tableModel) Dim() int { return m.Dimension }

// tableTrainer returns its table instead of training, counting calls.
type tableTrainer struct {
	mu     sync.Mutex
	model  *tableModel
	trains int
}

func (t *tableTrainer) Train(context.Context, [][]string) (driven.EmbeddingModel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trains++
	return t.model, nil
}

func (t *tableTrainer) Encode(model driven.EmbeddingModel, w io.Writer) error {
	return json.NewEncoder(w).Encode(model.(*tableModel))
}

func (t *tableTrainer) Decode(r io.Reader) (driven.EmbeddingModel, error) {
	var m tableModel
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (t *tableTrainer) Trains() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.trains
}

// Documents 0 and 2 lie along the first axis, 1 along the second and 3 along the third.
var (
	catSource = []string{
		"the cat sat",
		"dogs bark loudly",
		"a cat slept",
		"birds fly high",
	}
	catTarget = []string{
		"le chat était assis",
		"les chiens aboient fort",
		"un chat dormait",
		"les oiseaux volent haut",
	}
	catTable = map[string][]float32{
		"the":    {1, 0, 0},
		"cat":    {1, 0, 0},
		"sat":    {1, 0.1, 0},
		"a":      {1, 0, 0.1},
		"slept":  {1, 0, 0.1},
		"dogs":   {0, 1, 0},
		"bark":   {0, 1, 0.1},
		"loudly": {0.1, 1, 0},
		"birds":  {0, 0, 1},
		"fly":    {0.1, 0, 1},
		"high":   {0, 0.1, 1},
	}
)

type fixture struct {
	dir       string
	cfg       domain.Config
	trainer   *tableTrainer
	artifacts *file.Store
	store     *memory.MetadataStore
}

func newFixture(t *testing.T, src, tgt []string) *fixture {
	t.Helper()
	dir := t.TempDir()

	cfg := domain.DefaultConfig()
	cfg.Training.EmbeddingDim = 3
	cfg.Training.SrcCorpusPath = filepath.Join(dir, "src.txt")
	cfg.Training.TgtCorpusPath = filepath.Join(dir, "tgt.txt")
	cfg.Serialization = domain.SerializationConfig{
		ModelPath:  filepath.Join(dir, "model.bin"),
		VectorPath: filepath.Join(dir, "vectors.bin"),
		IndexPath:  filepath.Join(dir, "index.bin"),
	}

	f := &fixture{
		dir:       dir,
		cfg:       cfg,
		trainer:   &tableTrainer{model: &tableModel{Dimension: 3, Rows: catTable}},
		artifacts: file.NewStore(cfg.Serialization),
		store:     memory.NewMetadataStore(),
	}
	f.writeCorpus(t, src, tgt)
	return f
}

func (f *fixture) writeCorpus(t *testing.T, src, tgt []string) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.cfg.Training.SrcCorpusPath, []byte(joinLines(src)), 0o600))
	require.NoError(t, os.WriteFile(f.cfg.Training.TgtCorpusPath, []byte(joinLines(tgt)), 0o600))
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func (f *fixture) backend() *hnsw.Backend {
	return hnsw.NewBackend(hnsw.ConfigFrom(f.cfg))
}

func (f *fixture) pipeline(t *testing.T) *BuildPipeline {
	t.Helper()
	tok, err := tokenizer.New("eng")
	require.NoError(t, err)
	return NewBuildPipeline(f.cfg, tok, f.trainer, f.backend(), f.artifacts, file.VectorCodec{})
}

func (f *fixture) build(t *testing.T) domain.BuildReport {
	t.Helper()
	report, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	return report
}

func (f *fixture) ingest(t *testing.T) {
	t.Helper()
	_, err := NewIngestService(f.cfg, f.store).Ingest(context.Background(), domain.Provenance{
		Kind:    domain.SourceKindWebsite,
		URI:     "https://example.org/tm",
		Quality: "machine cleaned",
		Type:    "TM",
	})
	require.NoError(t, err)
}

func (f *fixture) server() *QueryServer {
	return NewQueryServer(f.artifacts, f.trainer, f.backend(), f.store, 16)
}

// ready builds, ingests and loads a query server.
func (f *fixture) ready(t *testing.T) *QueryServer {
	t.Helper()
	f.build(t)
	f.ingest(t)
	s := f.server()
	require.NoError(t, s.Load(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}
