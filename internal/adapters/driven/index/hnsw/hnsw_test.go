package hnsw

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
)

func testConfig() Config {
	return Config{M: 8, EfConstruction: 64, EfSearch: 32, Seed: 7}
}

// randVec generates a random unit vector.
func randVec(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	var norm float64
	for i := range v {
		x := float32(rng.NormFloat64())
		v[i] = x
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= float32(norm)
	}
	return v
}

func randVecs(n, dim int) [][]float32 {
	rng := rand.New(rand.NewPCG(1, 2))
	out := make([][]float32, n)
	for i := range out {
		out[i] = randVec(rng, dim)
	}
	return out
}

// bruteForce returns the top-k positions by exact distance.
func bruteForce(dist distanceFunc, vecs [][]float32, query []float32, k int) []int {
	pos := make([]int, len(vecs))
	for i := range pos {
		pos[i] = i
	}
	sort.SliceStable(pos, func(i, j int) bool {
		return dist(query, vecs[pos[i]]) < dist(query, vecs[pos[j]])
	})
	return pos[:min(k, len(pos))]
}

func TestBuild_SearchOrder(t *testing.T) {
	vectors := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0.9, 0.1, 0, 0},
	}
	idx, err := Build(context.Background(), vectors, testConfig())
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 4, idx.Dim())

	hits, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].Position)
	assert.Equal(t, 2, hits[1].Position)
	assert.LessOrEqual(t, hits[0].Distance, hits[1].Distance)
}

func TestBuild_SelfRetrieval(t *testing.T) {
	vectors := randVecs(300, 16)
	idx, err := Build(context.Background(), vectors, testConfig())
	require.NoError(t, err)

	found := 0
	for p, v := range vectors {
		hits, err := idx.Search(context.Background(), v, 1)
		require.NoError(t, err)
		if len(hits) == 1 && hits[0].Position == p {
			found++
		}
	}
	assert.GreaterOrEqual(t, float64(found)/float64(len(vectors)), 0.95)
}

func TestSearch_RecallAgainstBruteForce(t *testing.T) {
	vectors := randVecs(500, 12)
	idx, err := Build(context.Background(), vectors, testConfig())
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(9, 9))
	const k = 10
	total, hit := 0, 0
	for q := 0; q < 20; q++ {
		query := randVec(rng, 12)
		want := bruteForce(cosineDistance, vectors, query, k)
		got, err := idx.Search(context.Background(), query, k)
		require.NoError(t, err)

		set := make(map[int]bool, len(got))
		for _, h := range got {
			set[h.Position] = true
		}
		for _, p := range want {
			total++
			if set[p] {
				hit++
			}
		}
	}
	assert.GreaterOrEqual(t, float64(hit)/float64(total), 0.8)
}

func TestSearch_L2(t *testing.T) {
	cfg := testConfig()
	cfg.Distance = domain.DistanceL2
	vectors := [][]float32{{0, 0}, {10, 10}, {1, 1}}

	idx, err := Build(context.Background(), vectors, cfg)
	require.NoError(t, err)

	hits, err := idx.Search(context.Background(), []float32{0.2, 0.2}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []int{0, 2, 1}, []int{hits[0].Position, hits[1].Position, hits[2].Position})
	assert.InDelta(t, math.Sqrt(0.08), float64(hits[0].Distance), 1e-6)
}

func TestSearch_Empty(t *testing.T) {
	idx, err := Build(context.Background(), nil, Config{Dim: 4})
	require.NoError(t, err)
	assert.Zero(t, idx.Len())

	hits, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearch_KZeroAndOversized(t *testing.T) {
	idx, err := Build(context.Background(), randVecs(5, 4), testConfig())
	require.NoError(t, err)

	hits, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Search(context.Background(), []float32{1, 0, 0, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, hits, 5)
}

func TestDimensionMismatch(t *testing.T) {
	_, err := Build(context.Background(), [][]float32{{1, 2}, {1, 2, 3}}, testConfig())
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	idx, err := Build(context.Background(), [][]float32{{1, 2}}, testConfig())
	require.NoError(t, err)
	_, err = idx.Search(context.Background(), []float32{1, 2, 3}, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestBuild_UnsupportedDistance(t *testing.T) {
	cfg := testConfig()
	cfg.Distance = "hamming"
	_, err := Build(context.Background(), randVecs(3, 4), cfg)
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, randVecs(3, 4), testConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuild_Deterministic(t *testing.T) {
	vectors := randVecs(200, 8)

	a, err := Build(context.Background(), vectors, testConfig())
	require.NoError(t, err)
	b, err := Build(context.Background(), vectors, testConfig())
	require.NoError(t, err)

	var bufA, bufB bytes.Buffer
	require.NoError(t, a.Save(&bufA))
	require.NoError(t, b.Save(&bufB))
	assert.Equal(t, bufA.Bytes(), bufB.Bytes())
}

func TestSearch_Concurrent(t *testing.T) {
	vectors := randVecs(200, 8)
	idx, err := Build(context.Background(), vectors, testConfig())
	require.NoError(t, err)

	want := make([][]int, 20)
	for q := range want {
		hits, err := idx.Search(context.Background(), vectors[q], 5)
		require.NoError(t, err)
		for _, h := range hits {
			want[q] = append(want[q], h.Position)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8*len(want))
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for q := range want {
				hits, err := idx.Search(context.Background(), vectors[q], 5)
				if err != nil {
					errs <- err
					continue
				}
				got := make([]int, len(hits))
				for i, h := range hits {
					got[i] = h.Position
				}
				assert.Equal(t, want[q], got)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestSaveLoad(t *testing.T) {
	vectors := randVecs(100, 8)
	idx, err := Build(context.Background(), vectors, testConfig())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, idx.Save(&buf))

	loaded, err := Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, idx.Len(), loaded.Len())
	assert.Equal(t, idx.Dim(), loaded.Dim())

	for q := 0; q < 10; q++ {
		h1, err := idx.Search(context.Background(), vectors[q], 5)
		require.NoError(t, err)
		h2, err := loaded.Search(context.Background(), vectors[q], 5)
		require.NoError(t, err)
		assert.Equal(t, h1, h2)
	}
}

func TestSaveLoad_Empty(t *testing.T) {
	idx, err := Build(context.Background(), nil, Config{Dim: 3})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, idx.Save(&buf))

	loaded, err := Load(&buf)
	require.NoError(t, err)
	assert.Zero(t, loaded.Len())
	assert.Equal(t, 3, loaded.Dim())
}

func TestLoad_InvalidMagic(t *testing.T) {
	_, err := Load(bytes.NewReader([]byte("HNSW\x01\x00\x00\x00")))
	assert.ErrorIs(t, err, domain.ErrArtifactCorrupt)
}

func TestLoad_Truncated(t *testing.T) {
	idx, err := Build(context.Background(), randVecs(10, 4), testConfig())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, idx.Save(&buf))

	_, err = Load(bytes.NewReader(buf.Bytes()[:buf.Len()/2]))
	assert.ErrorIs(t, err, domain.ErrArtifactCorrupt)
}

// forgedHeader encodes an index header with no node data behind it.
func forgedHeader(t *testing.T, dim, m, count, maxLev uint32) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(indexMagic[:])
	for _, v := range []any{indexVersion, dim, m, uint32(64), uint32(32), codeCosine, uint64(7), count, maxLev, int32(0)} {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}
	return &buf
}

func TestLoad_ForgedHeader(t *testing.T) {
	tests := []struct {
		name                  string
		dim, m, count, maxLev uint32
	}{
		{"oversized dimension", maxIndexDim + 1, 8, 1, 0},
		{"oversized M", 4, maxIndexM + 1, 1, 0},
		{"oversized element count", 1 << 16, 8, 1 << 16, 0},
		{"oversized max level", 4, 8, 1, maxLevel + 1},
		{"count without nodes", 1, 8, 1 << 30, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(forgedHeader(t, tt.dim, tt.m, tt.count, tt.maxLev))
			assert.ErrorIs(t, err, domain.ErrArtifactCorrupt)
		})
	}
}

func TestLoad_TooManyFriends(t *testing.T) {
	buf := forgedHeader(t, 1, 2, 8, 0)
	for _, v := range []any{uint32(0), float32(1), uint32(5)} {
		require.NoError(t, binary.Write(buf, binary.LittleEndian, v))
	}

	_, err := Load(buf)
	assert.ErrorIs(t, err, domain.ErrArtifactCorrupt)
}

func TestBackend(t *testing.T) {
	b := NewBackend(testConfig())

	idx, err := b.Build(context.Background(), randVecs(20, 4))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, b.Save(idx, &buf))

	loaded, err := b.Load(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 20, loaded.Len())
	assert.NoError(t, loaded.Close())
}

func TestConfigFrom(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.Training.DistanceFun = "cosinesimil"

	got := ConfigFrom(cfg)
	assert.Equal(t, 100, got.Dim)
	assert.Equal(t, 16, got.M)
	assert.Equal(t, 200, got.EfConstruction)
	assert.Equal(t, domain.DistanceCosine, got.Distance)
}
