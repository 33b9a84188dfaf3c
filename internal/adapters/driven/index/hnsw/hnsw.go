package hnsw

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driven"
)

const (
	maxLevel      = 31
	cancelStride  = 1024
	defaultSeed   = 42
	defaultM      = 16
	defaultEfCons = 200
	defaultEfSrch = 50
)

// Config configures graph construction and search.
type Config struct {
	// Dim is the vector dimension. Used for empty indexes; otherwise taken
	// from the vectors.
	Dim int

	// M is the maximum number of connections per node per layer (layer 0
	// allows 2*M).
	M int

	// EfConstruction is the candidate list size while building.
	EfConstruction int

	// EfSearch is the candidate list size while searching; raised to k when smaller.
	EfSearch int

	// Distance is "cosine" (default) or "l2".
	Distance string

	// Seed makes level assignment reproducible.
	Seed uint64
}

// ConfigFrom maps the engine configuration onto graph settings.
func ConfigFrom(cfg domain.Config) Config {
	return Config{
		Dim:            cfg.Training.EmbeddingDim,
		M:              cfg.Index.M,
		EfConstruction: cfg.Index.EfConstruction,
		EfSearch:       cfg.Index.EfSearch,
		Distance:       cfg.Distance(),
		Seed:           cfg.Training.Seed,
	}
}

func (c *Config) setDefaults() {
	if c.M < 2 {
		c.M = defaultM
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = defaultEfCons
	}
	if c.EfSearch <= 0 {
		c.EfSearch = defaultEfSrch
	}
	if c.Distance == "" {
		c.Distance = domain.DistanceCosine
	}
	if c.Seed == 0 {
		c.Seed = defaultSeed
	}
}

// maxConns returns the maximum number of connections at the given layer.
func (c *Config) maxConns(layer int) int {
	if layer == 0 {
		return c.M * 2
	}
	return c.M
}

// node is one document vector in the graph.
type node struct {
	vector  []float32
	level   int
	friends [][]uint32 // friends[layer] = neighbour ids at that layer
}

// Index is an immutable HNSW graph over document vectors.
// All methods are safe for concurrent use.
type Index struct {
	cfg      Config
	dist     distanceFunc
	nodes    []node
	entryID  int32 // -1 if empty
	maxLevel int
}

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Build inserts vectors[p] as node p and returns the finished graph.
// Every vector must have the same dimension.
func Build(ctx context.Context, vectors [][]float32, cfg Config) (*Index, error) {
	cfg.setDefaults()
	dist, err := distanceFor(cfg.Distance)
	if err != nil {
		return nil, err
	}
	if len(vectors) > 0 {
		cfg.Dim = len(vectors[0])
	}

	idx := &Index{
		cfg:     cfg,
		dist:    dist,
		nodes:   make([]node, 0, len(vectors)),
		entryID: -1,
	}

	b := builder{
		Index:    idx,
		rng:      rand.New(rand.NewPCG(cfg.Seed, cfg.Seed)),
		levelMul: 1.0 / math.Log(float64(cfg.M)),
	}
	for p, v := range vectors {
		if p%cancelStride == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("building index: %w", err)
			}
		}
		if len(v) != cfg.Dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d",
				domain.ErrDimensionMismatch, p, len(v), cfg.Dim)
		}
		b.insert(v)
	}
	return idx, nil
}

// Len returns the number of indexed documents.
func (h *Index) Len() int {
	return len(h.nodes)
}

// Dim returns the vector dimension.
func (h *Index) Dim() int {
	return h.cfg.Dim
}

// Close is a no-op for the in-memory graph.
func (h *Index) Close() error { return nil }

// builder holds the state needed only while inserting.
type builder struct {
	*Index
	rng      *rand.Rand
	levelMul float64
}

// randomLevel draws a layer with P(level >= l) = exp(-l * ln(M)).
func (b *builder) randomLevel() int {
	r := max(b.rng.Float64(), math.SmallestNonzeroFloat64)
	return min(int(-math.Log(r)*b.levelMul), maxLevel)
}

func (b *builder) insert(vector []float32) {
	vec := make([]float32, len(vector))
	copy(vec, vector)

	id := uint32(len(b.nodes))
	level := b.randomLevel()
	b.nodes = append(b.nodes, node{
		vector:  vec,
		level:   level,
		friends: make([][]uint32, level+1),
	})

	if b.entryID < 0 {
		b.entryID = int32(id)
		b.maxLevel = level
		return
	}

	cur := b.greedy(vec, uint32(b.entryID), b.maxLevel, level)

	ep := []uint32{cur}
	for lev := min(level, b.maxLevel); lev >= 0; lev-- {
		candidates := b.searchLayer(vec, ep, b.cfg.EfConstruction, lev)

		maxC := b.cfg.maxConns(lev)
		neighbours := b.selectClosest(vec, candidates, maxC)
		b.nodes[id].friends[lev] = neighbours

		for _, nID := range neighbours {
			nn := &b.nodes[nID]
			if lev >= len(nn.friends) {
				continue
			}
			nn.friends[lev] = append(nn.friends[lev], id)
			if len(nn.friends[lev]) > maxC {
				nn.friends[lev] = b.selectClosest(nn.vector, nn.friends[lev], maxC)
			}
		}
		ep = candidates
	}

	if level > b.maxLevel {
		b.entryID = int32(id)
		b.maxLevel = level
	}
}

// Search returns up to k nearest documents to query, closest first.
func (h *Index) Search(ctx context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	if len(h.nodes) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != h.cfg.Dim {
		return nil, fmt.Errorf("%w: query has dimension %d, want %d",
			domain.ErrDimensionMismatch, len(query), h.cfg.Dim)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ef := max(h.cfg.EfSearch, k)
	cur := h.greedy(query, uint32(h.entryID), h.maxLevel, 0)
	candidates := h.searchLayer(query, []uint32{cur}, ef, 0)

	hits := make([]driven.VectorHit, 0, len(candidates))
	for _, id := range candidates {
		hits = append(hits, driven.VectorHit{
			Position: int(id),
			Distance: h.dist(query, h.nodes[id].vector),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Position < hits[j].Position
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// greedy walks from entry down to layer floor+1, keeping only the single
// closest node per layer.
func (h *Index) greedy(query []float32, entry uint32, top, floor int) uint32 {
	cur := entry
	curDist := h.dist(query, h.nodes[cur].vector)

	for lev := top; lev > floor; lev-- {
		changed := true
		for changed {
			changed = false
			nd := &h.nodes[cur]
			if lev >= len(nd.friends) {
				break
			}
			for _, fID := range nd.friends[lev] {
				d := h.dist(query, h.nodes[fID].vector)
				if d < curDist {
					cur = fID
					curDist = d
					changed = true
				}
			}
		}
	}
	return cur
}

// searchLayer runs a beam search on one layer and returns up to ef node ids.
func (h *Index) searchLayer(query []float32, entryPoints []uint32, ef, layer int) []uint32 {
	visited := make(map[uint32]struct{}, ef*2)

	var candidates minDistHeap
	var results maxDistHeap

	for _, ep := range entryPoints {
		if _, seen := visited[ep]; seen {
			continue
		}
		visited[ep] = struct{}{}
		d := h.dist(query, h.nodes[ep].vector)
		heap.Push(&candidates, distItem{id: ep, dist: d})
		heap.Push(&results, distItem{id: ep, dist: d})
	}
	for results.Len() > ef {
		heap.Pop(&results)
	}

	for candidates.Len() > 0 {
		closest := heap.Pop(&candidates).(distItem)
		if results.Len() >= ef && closest.dist > results[0].dist {
			break
		}

		nd := &h.nodes[closest.id]
		if layer >= len(nd.friends) {
			continue
		}
		for _, fID := range nd.friends[layer] {
			if _, seen := visited[fID]; seen {
				continue
			}
			visited[fID] = struct{}{}

			d := h.dist(query, h.nodes[fID].vector)
			if results.Len() < ef || d < results[0].dist {
				heap.Push(&candidates, distItem{id: fID, dist: d})
				heap.Push(&results, distItem{id: fID, dist: d})
				if results.Len() > ef {
					heap.Pop(&results)
				}
			}
		}
	}

	out := make([]uint32, results.Len())
	for i := range out {
		out[i] = results[i].id
	}
	return out
}

// selectClosest returns up to n ids from candidates closest to query.
func (h *Index) selectClosest(query []float32, candidates []uint32, n int) []uint32 {
	if len(candidates) <= n {
		out := make([]uint32, len(candidates))
		copy(out, candidates)
		return out
	}

	items := make([]distItem, len(candidates))
	for i, id := range candidates {
		items[i] = distItem{id: id, dist: h.dist(query, h.nodes[id].vector)}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].dist != items[j].dist {
			return items[i].dist < items[j].dist
		}
		return items[i].id < items[j].id
	})

	out := make([]uint32, n)
	for i := range out {
		out[i] = items[i].id
	}
	return out
}
