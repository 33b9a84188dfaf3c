// Package vectorizer turns tokenized corpus lines into fixed-dimension
// document vectors: the mean of each token's embedding scaled by its BM25 weight.
package vectorizer

import (
	"fmt"
	"math"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driven"
	"github.com/custodia-labs/tmsearch/internal/logger"
)

// Report summarises a vectorisation run.
type Report struct {
	// Degraded lists the positions replaced by a zero vector, ascending.
	Degraded []int
}

// Vectorize computes one vector per document. vectors[p] always has length model.Dim().
// Degraded documents are reported; a fatal outcome aborts with an error.
func Vectorize(corpus [][]string, model driven.EmbeddingModel, weights driven.TermWeights) ([][]float32, Report, error) {
	vectors := make([][]float32, len(corpus))
	var report Report

	for p, tokens := range corpus {
		out := Document(p, tokens, model, weights)
		if !out.Usable() {
			return nil, report, fmt.Errorf("%w: document %d: %s", domain.ErrDimensionMismatch, p, out.Reason)
		}
		if out.Status != domain.VectorOK {
			logger.Warn("vectorizer: document %d %s: %s", p, out.Status, out.Reason)
			report.Degraded = append(report.Degraded, p)
		}
		vectors[p] = out.Vector
	}
	return vectors, report, nil
}

// Document vectorises the tokens at position p. Any failure yields a
// degraded outcome carrying a zero vector.
func Document(p int, tokens []string, model driven.EmbeddingModel, weights driven.TermWeights) domain.VectorOutcome {
	dim := model.Dim()
	if dim <= 0 {
		return domain.VectorOutcome{
			Position: p,
			Status:   domain.VectorFatal,
			Reason:   fmt.Sprintf("model dimension %d", dim),
		}
	}
	degraded := func(reason string) domain.VectorOutcome {
		return domain.VectorOutcome{
			Position: p,
			Vector:   domain.ZeroVector(dim),
			Status:   domain.VectorDegraded,
			Reason:   reason,
		}
	}

	if len(tokens) == 0 {
		return degraded("empty document")
	}

	sum := make([]float64, dim)
	for _, tok := range tokens {
		emb, ok := model.Lookup(tok)
		if !ok {
			return degraded(fmt.Sprintf("no embedding for %q", tok))
		}
		if len(emb) != dim {
			return degraded(fmt.Sprintf("embedding for %q has dimension %d, want %d", tok, len(emb), dim))
		}
		w := weights.Weight(tok, p)
		for i, x := range emb {
			sum[i] += float64(x) * w
		}
	}

	vec := make([]float32, dim)
	n := float64(len(tokens))
	for i, s := range sum {
		v := s / n
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return degraded("non-finite component")
		}
		vec[i] = float32(v)
	}

	return domain.VectorOutcome{Position: p, Vector: vec, Status: domain.VectorOK}
}

// Validate replaces in place every vector whose length differs from dim or
// that holds a non-finite component, and returns the replaced positions.
func Validate(vectors [][]float32, dim int) []int {
	var fixed []int
	for p, v := range vectors {
		if conforms(v, dim) {
			continue
		}
		vectors[p] = domain.ZeroVector(dim)
		fixed = append(fixed, p)
	}
	if len(fixed) > 0 {
		logger.Warn("vectorizer: validation replaced %d vectors", len(fixed))
	}
	return fixed
}

func conforms(v []float32, dim int) bool {
	if len(v) != dim {
		return false
	}
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
