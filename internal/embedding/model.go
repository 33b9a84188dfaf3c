package embedding

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driven"
)

// Ensure Model implements the interface.
var _ driven.EmbeddingModel = (*Model)(nil)

// Model is a trained subword embedding table.
// It is read-only after training and safe for concurrent lookups.
type Model struct {
	dim     int
	minN    int
	maxN    int
	buckets int

	words []string
	vocab map[string]int

	// input holds len(words)+buckets rows of dim floats, row-major.
	input []float32
}

func newModel(cfg Config, words []string) *Model {
	m := &Model{
		dim:     cfg.Dim,
		minN:    cfg.MinN,
		maxN:    cfg.MaxN,
		buckets: cfg.Buckets,
		words:   words,
	}
	m.index()
	m.input = make([]float32, (len(words)+cfg.Buckets)*cfg.Dim)
	return m
}

func (m *Model) index() {
	m.vocab = make(map[string]int, len(m.words))
	for i, w := range m.words {
		m.vocab[w] = i
	}
}

// Dim returns the vector dimension.
func (m *Model) Dim() int {
	return m.dim
}

// VocabSize returns the number of whole-word rows.
func (m *Model) VocabSize() int {
	return len(m.words)
}

// Contains reports whether token is a vocabulary word.
func (m *Model) Contains(token string) bool {
	_, ok := m.vocab[token]
	return ok
}

// Lookup returns the mean of the word row (if any) and the token's n-gram rows.
// It returns false when no row resolves.
func (m *Model) Lookup(token string) ([]float32, bool) {
	if token == "" {
		return nil, false
	}
	rows := m.subwords(token)
	if len(rows) == 0 {
		return nil, false
	}

	vec := make([]float32, m.dim)
	for _, r := range rows {
		row := m.row(r)
		for i := range vec {
			vec[i] += row[i]
		}
	}
	scale := 1 / float32(len(rows))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, true
}

// subwords returns the input row ids composing token.
func (m *Model) subwords(token string) []int {
	var rows []int
	if id, ok := m.vocab[token]; ok {
		rows = append(rows, id)
	}
	if m.buckets == 0 {
		return rows
	}
	for _, g := range ngrams(token, m.minN, m.maxN) {
		rows = append(rows, len(m.words)+bucket(g, m.buckets))
	}
	return rows
}

func (m *Model) row(id int) []float32 {
	return m.input[id*m.dim : (id+1)*m.dim]
}

// modelWire is the serialised form of a Model.
type modelWire struct {
	Dim     int       `msgpack:"dim"`
	MinN    int       `msgpack:"min_n"`
	MaxN    int       `msgpack:"max_n"`
	Buckets int       `msgpack:"buckets"`
	Words   []string  `msgpack:"words"`
	Input   []float32 `msgpack:"input"`
}

// Encode writes the model as msgpack.
func (m *Model) Encode(w io.Writer) error {
	wire := modelWire{
		Dim:     m.dim,
		MinN:    m.minN,
		MaxN:    m.maxN,
		Buckets: m.buckets,
		Words:   m.words,
		Input:   m.input,
	}
	if err := msgpack.NewEncoder(w).Encode(&wire); err != nil {
		return fmt.Errorf("encoding embedding model: %w", err)
	}
	return nil
}

// Decode reads a model written by Encode.
func Decode(r io.Reader) (*Model, error) {
	var wire modelWire
	if err := msgpack.NewDecoder(r).Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: decoding embedding model: %v", domain.ErrArtifactCorrupt, err)
	}
	if wire.Dim <= 0 || len(wire.Input) != (len(wire.Words)+wire.Buckets)*wire.Dim {
		return nil, fmt.Errorf("%w: embedding table size does not match header", domain.ErrArtifactCorrupt)
	}

	m := &Model{
		dim:     wire.Dim,
		minN:    wire.MinN,
		maxN:    wire.MaxN,
		buckets: wire.Buckets,
		words:   wire.Words,
		input:   wire.Input,
	}
	m.index()
	return m, nil
}
