// Package bm25 computes Okapi BM25 term weights over a tokenized corpus.
package bm25

import (
	"math"

	"github.com/custodia-labs/tmsearch/internal/core/ports/driven"
)

// Default Okapi constants.
const (
	DefaultK1      = 1.5
	DefaultB       = 0.75
	DefaultEpsilon = 0.25
)

// Ensure Weighter implements the interface.
var _ driven.TermWeights = (*Weighter)(nil)

// Weighter holds corpus statistics computed once at construction.
// It is read-only afterwards and safe for concurrent use.
type Weighter struct {
	k1      float64
	b       float64
	epsilon float64

	// floored selects the raw Okapi IDF with negative values floored at
	// epsilon times the mean IDF instead of the non-negative log1p form.
	floored bool

	docFreqs  []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
}

// Option configures the weighter.
type Option func(*Weighter)

// WithK1 sets the term-frequency saturation constant.
func WithK1(k1 float64) Option {
	return func(w *Weighter) {
		if k1 > 0 {
			w.k1 = k1
		}
	}
}

// WithB sets the document-length normalisation constant.
func WithB(b float64) Option {
	return func(w *Weighter) {
		if b >= 0 && b <= 1 {
			w.b = b
		}
	}
}

// WithEpsilon switches to the raw Okapi IDF, log((N-n+0.5)/(n+0.5)), and floors
// negative values at eps times the mean IDF. Terms present in more than half of
// the documents then weigh almost nothing.
func WithEpsilon(eps float64) Option {
	return func(w *Weighter) {
		if eps >= 0 {
			w.epsilon = eps
			w.floored = true
		}
	}
}

// New computes document frequencies, term frequencies and lengths for corpus.
func New(corpus [][]string, opts ...Option) *Weighter {
	w := &Weighter{
		k1:       DefaultK1,
		b:        DefaultB,
		epsilon:  DefaultEpsilon,
		docFreqs: make([]map[string]int, len(corpus)),
		docLens:  make([]int, len(corpus)),
		idf:      make(map[string]float64),
	}
	for _, opt := range opts {
		opt(w)
	}

	df := make(map[string]int)
	total := 0
	for i, doc := range corpus {
		tf := make(map[string]int, len(doc))
		for _, tok := range doc {
			tf[tok]++
		}
		for tok := range tf {
			df[tok]++
		}
		w.docFreqs[i] = tf
		w.docLens[i] = len(doc)
		total += len(doc)
	}
	if len(corpus) > 0 {
		w.avgDocLen = float64(total) / float64(len(corpus))
	}

	w.computeIDF(df, len(corpus))
	return w
}

// computeIDF assigns log(1 + (N-n+0.5)/(n+0.5)), which stays positive for
// every term, or the floored raw form when WithEpsilon was given.
func (w *Weighter) computeIDF(df map[string]int, n int) {
	if len(df) == 0 {
		return
	}
	if !w.floored {
		for tok, freq := range df {
			w.idf[tok] = math.Log1p((float64(n-freq) + 0.5) / (float64(freq) + 0.5))
		}
		return
	}

	var sum float64
	var negative []string
	for tok, freq := range df {
		v := math.Log(float64(n-freq)+0.5) - math.Log(float64(freq)+0.5)
		w.idf[tok] = v
		sum += v
		if v < 0 {
			negative = append(negative, tok)
		}
	}

	floor := w.epsilon * sum / float64(len(df))
	for _, tok := range negative {
		w.idf[tok] = floor
	}
}

// Weight returns the BM25 weight of token in document doc.
// Unseen tokens and out-of-range documents weigh 0.
func (w *Weighter) Weight(token string, doc int) float64 {
	if doc < 0 || doc >= len(w.docFreqs) || w.avgDocLen == 0 {
		return 0
	}
	tf := float64(w.docFreqs[doc][token])
	if tf == 0 {
		return 0
	}
	norm := w.k1 * (1 - w.b + w.b*float64(w.docLens[doc])/w.avgDocLen)
	return w.idf[token] * (tf * (w.k1 + 1)) / (norm + tf)
}

// IDF returns the inverse document frequency of token, 0 if unseen.
func (w *Weighter) IDF(token string) float64 {
	return w.idf[token]
}

// Len returns the number of documents.
func (w *Weighter) Len() int {
	return len(w.docLens)
}

// AvgDocLen returns the mean document length in tokens.
func (w *Weighter) AvgDocLen() float64 {
	return w.avgDocLen
}
