package embedding

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driven"
	"github.com/custodia-labs/tmsearch/internal/logger"
)

const (
	unigramTableSize = 1_000_000
	unigramPower     = 0.75
	minLRFraction    = 1e-4
	negativeRetries  = 10
)

// Ensure Trainer implements the interface.
var _ driven.EmbeddingTrainer = (*Trainer)(nil)

// Trainer adapts Train to the EmbeddingTrainer port.
type Trainer struct {
	cfg Config
}

// NewTrainer creates a trainer with fixed hyper-parameters.
func NewTrainer(cfg Config) *Trainer {
	return &Trainer{cfg: cfg}
}

// Train fits a model over corpus.
func (t *Trainer) Train(ctx context.Context, corpus [][]string) (driven.EmbeddingModel, error) {
	m, err := Train(ctx, corpus, t.cfg)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Encode writes a model produced by this trainer.
func (t *Trainer) Encode(model driven.EmbeddingModel, w io.Writer) error {
	m, ok := model.(*Model)
	if !ok {
		return fmt.Errorf("%w: cannot encode %T", domain.ErrUnsupportedType, model)
	}
	return m.Encode(w)
}

// Decode reads a model written by Encode.
func (t *Trainer) Decode(r io.Reader) (driven.EmbeddingModel, error) {
	m, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Train runs skip-gram with negative sampling over the tokenized corpus.
// The result is deterministic for a given corpus and Seed.
func Train(ctx context.Context, corpus [][]string, cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	words, counts := buildVocab(corpus, cfg.MinCount)
	m := newModel(cfg, words)

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	bound := 1 / float32(cfg.Dim)
	for i := range m.input {
		m.input[i] = (rng.Float32()*2 - 1) * bound
	}

	logger.Debug("embedding: vocabulary %d words, %d buckets, dim %d", len(words), cfg.Buckets, cfg.Dim)
	if len(words) == 0 {
		return m, nil
	}

	s := newSession(m, cfg, counts, rng)
	if s.epochs != cfg.Epochs {
		logger.Debug("embedding: small corpus, training %d epochs instead of %d", s.epochs, cfg.Epochs)
	}
	for epoch := 0; epoch < s.epochs; epoch++ {
		for _, sentence := range corpus {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("training embeddings: %w", err)
			}
			s.sentence(sentence)
		}
		if (epoch+1)%max(1, s.epochs/10) == 0 || epoch+1 == s.epochs {
			logger.Debug("embedding: epoch %d/%d done (lr %.5f)", epoch+1, s.epochs, s.lr())
		}
	}
	return m, nil
}

// buildVocab keeps words seen at least minCount times, most frequent first.
func buildVocab(corpus [][]string, minCount int) ([]string, []int64) {
	freq := make(map[string]int64)
	for _, sentence := range corpus {
		for _, tok := range sentence {
			freq[tok]++
		}
	}

	words := make([]string, 0, len(freq))
	for w, c := range freq {
		if c >= int64(minCount) {
			words = append(words, w)
		}
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})

	counts := make([]int64, len(words))
	for i, w := range words {
		counts[i] = freq[w]
	}
	return words, counts
}

// session holds the mutable state of one training run.
type session struct {
	m   *Model
	cfg Config
	rng *rand.Rand

	output   []float32
	subwords [][]int
	table    []int32
	keep     []float64

	epochs    int
	total     int64
	processed int64

	hidden []float32
	grad   []float32
}

func newSession(m *Model, cfg Config, counts []int64, rng *rand.Rand) *session {
	s := &session{
		m:        m,
		cfg:      cfg,
		rng:      rng,
		output:   make([]float32, len(m.words)*cfg.Dim),
		subwords: make([][]int, len(m.words)),
		keep:     make([]float64, len(m.words)),
		hidden:   make([]float32, cfg.Dim),
		grad:     make([]float32, cfg.Dim),
	}

	var ntokens int64
	for _, c := range counts {
		ntokens += c
	}
	s.epochs = cfg.epochsFor(ntokens)
	s.total = ntokens * int64(s.epochs)
	subsample := cfg.subsamples(ntokens)

	for i, w := range m.words {
		s.subwords[i] = m.subwords(w)

		s.keep[i] = 1
		if subsample {
			f := float64(counts[i]) / float64(ntokens)
			s.keep[i] = math.Sqrt(cfg.Sample/f) + cfg.Sample/f
		}
	}

	s.table = unigramTable(counts)
	return s
}

// unigramTable lays out word ids proportionally to count^0.75.
func unigramTable(counts []int64) []int32 {
	var z float64
	for _, c := range counts {
		z += math.Pow(float64(c), unigramPower)
	}

	table := make([]int32, 0, unigramTableSize)
	for i, c := range counts {
		n := int(math.Pow(float64(c), unigramPower) / z * unigramTableSize)
		for j := 0; j < n; j++ {
			table = append(table, int32(i))
		}
	}
	if len(table) == 0 {
		for i := range counts {
			table = append(table, int32(i))
		}
	}
	return table
}

func (s *session) lr() float64 {
	progress := float64(s.processed) / float64(s.total)
	return s.cfg.LearningRate * math.Max(1-progress, minLRFraction)
}

func (s *session) sentence(tokens []string) {
	ids := make([]int, 0, len(tokens))
	for _, tok := range tokens {
		id, ok := s.m.vocab[tok]
		if !ok {
			continue
		}
		s.processed++
		if s.rng.Float64() > s.keep[id] {
			continue
		}
		ids = append(ids, id)
	}

	lr := float32(s.lr())
	for w := range ids {
		span := 1 + s.rng.IntN(s.cfg.Window)
		for c := w - span; c <= w+span; c++ {
			if c == w || c < 0 || c >= len(ids) {
				continue
			}
			s.update(s.subwords[ids[w]], ids[c], lr)
		}
	}
}

// update performs one SGD step predicting target from the input rows.
func (s *session) update(rows []int, target int, lr float32) {
	dim := s.cfg.Dim
	clear(s.hidden)
	clear(s.grad)

	for _, r := range rows {
		row := s.m.row(r)
		for i := 0; i < dim; i++ {
			s.hidden[i] += row[i]
		}
	}
	scale := 1 / float32(len(rows))
	for i := 0; i < dim; i++ {
		s.hidden[i] *= scale
	}

	s.logistic(target, 1, lr)
	for n := 0; n < s.cfg.Negative; n++ {
		neg, ok := s.negative(target)
		if !ok {
			break
		}
		s.logistic(neg, 0, lr)
	}

	for _, r := range rows {
		row := s.m.row(r)
		for i := 0; i < dim; i++ {
			row[i] += s.grad[i]
		}
	}
}

func (s *session) logistic(target int, label, lr float32) {
	dim := s.cfg.Dim
	out := s.output[target*dim : (target+1)*dim]

	var dot float32
	for i := 0; i < dim; i++ {
		dot += out[i] * s.hidden[i]
	}
	alpha := lr * (label - sigmoid(dot))
	for i := 0; i < dim; i++ {
		s.grad[i] += alpha * out[i]
		out[i] += alpha * s.hidden[i]
	}
}

func (s *session) negative(target int) (int, bool) {
	for i := 0; i < negativeRetries; i++ {
		neg := int(s.table[s.rng.IntN(len(s.table))])
		if neg != target {
			return neg, true
		}
	}
	return 0, false
}

func sigmoid(x float32) float32 {
	switch {
	case x > 8:
		return 1
	case x < -8:
		return 0
	}
	return float32(1 / (1 + math.Exp(-float64(x))))
}
