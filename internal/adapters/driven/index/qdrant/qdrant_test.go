package qdrant

import (
	"bytes"
	"context"
	"math"
	"sort"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
)

// fakeCollections records collection lifecycle calls.
type fakeCollections struct {
	pb.CollectionsClient
	exists  bool
	deleted int
	created *pb.CreateCollection
}

func (f *fakeCollections) CollectionExists(_ context.Context, _ *pb.CollectionExistsRequest, _ ...grpc.CallOption) (*pb.CollectionExistsResponse, error) {
	return &pb.CollectionExistsResponse{Result: &pb.CollectionExists{Exists: f.exists}}, nil
}

func (f *fakeCollections) Delete(_ context.Context, _ *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.deleted++
	f.exists = false
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (f *fakeCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.created = in
	f.exists = true
	return &pb.CollectionOperationResponse{Result: true}, nil
}

// fakePoints keeps points in memory and answers searches by brute force.
type fakePoints struct {
	pb.PointsClient
	points  map[uint64][]float32
	upserts int
}

func (f *fakePoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	if f.points == nil {
		f.points = make(map[uint64][]float32)
	}
	f.upserts++
	for _, p := range in.GetPoints() {
		f.points[p.GetId().GetNum()] = p.GetVectors().GetVector().GetData()
	}
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakePoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	var out []*pb.ScoredPoint
	for id, v := range f.points {
		out = append(out, &pb.ScoredPoint{
			Id:    &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: id}},
			Score: cosine(in.GetVector(), v),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if uint64(len(out)) > in.GetLimit() {
		out = out[:in.GetLimit()]
	}
	return &pb.SearchResponse{Result: out}, nil
}

func (f *fakePoints) Count(_ context.Context, _ *pb.CountPoints, _ ...grpc.CallOption) (*pb.CountResponse, error) {
	return &pb.CountResponse{Result: &pb.CountResult{Count: uint64(len(f.points))}}, nil
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func newTestBackend(batch int) (*Backend, *fakePoints, *fakeCollections) {
	points := &fakePoints{}
	collections := &fakeCollections{exists: true}
	b := newBackend(Config{Collection: "tm", Dim: 2, BatchSize: batch}, points, collections)
	return b, points, collections
}

func TestBuild_UpsertsPositions(t *testing.T) {
	b, points, collections := newTestBackend(2)

	vectors := [][]float32{{1, 0}, {0, 1}, {0.9, 0.1}}
	idx, err := b.Build(context.Background(), vectors)
	require.NoError(t, err)

	assert.Equal(t, 1, collections.deleted, "existing collection is recreated")
	require.NotNil(t, collections.created)
	params := collections.created.GetVectorsConfig().GetParams()
	assert.Equal(t, uint64(2), params.GetSize())
	assert.Equal(t, pb.Distance_Cosine, params.GetDistance())

	assert.Equal(t, 2, points.upserts, "three points in batches of two")
	assert.Len(t, points.points, 3)
	assert.Equal(t, 3, idx.Len())

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].Position)
	assert.Equal(t, 2, hits[1].Position)
	assert.InDelta(t, 0, hits[0].Distance, 1e-6)
}

func TestBuild_DimensionMismatch(t *testing.T) {
	b, _, _ := newTestBackend(10)
	_, err := b.Build(context.Background(), [][]float32{{1, 0}, {1}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestSearch_EmptyIndex(t *testing.T) {
	b, _, _ := newTestBackend(10)
	idx, err := b.Build(context.Background(), nil)
	require.NoError(t, err)

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSaveLoad(t *testing.T) {
	b, _, _ := newTestBackend(10)
	idx, err := b.Build(context.Background(), [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, b.Save(idx, &buf))

	loaded, err := b.Load(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
	assert.NoError(t, loaded.Close())
}

func TestLoad_StaleCollection(t *testing.T) {
	b, points, _ := newTestBackend(10)
	idx, err := b.Build(context.Background(), [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, b.Save(idx, &buf))

	delete(points.points, 1)
	_, err = b.Load(context.Background(), &buf)
	assert.ErrorIs(t, err, domain.ErrArtifactStale)
}

func TestLoad_Corrupt(t *testing.T) {
	b, _, _ := newTestBackend(10)
	_, err := b.Load(context.Background(), bytes.NewReader([]byte{0xc1}))
	assert.ErrorIs(t, err, domain.ErrArtifactCorrupt)
}

func TestClose_WithoutConnection(t *testing.T) {
	b, _, _ := newTestBackend(10)
	assert.NoError(t, b.Close())
}
