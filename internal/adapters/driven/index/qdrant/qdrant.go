// Package qdrant stores document vectors in a Qdrant collection and serves
// nearest-neighbour queries over gRPC. Point ids are corpus positions.
package qdrant

import (
	"context"
	"fmt"
	"io"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driven"
	"github.com/custodia-labs/tmsearch/internal/logger"
)

const defaultBatchSize = 256

// Config locates the collection.
type Config struct {
	Host       string
	Port       int
	Collection string
	Dim        int
	Distance   string
	BatchSize  int
}

// ConfigFrom maps the engine configuration onto Qdrant settings.
func ConfigFrom(cfg domain.Config) Config {
	return Config{
		Host:       cfg.Index.QdrantHost,
		Port:       cfg.Index.QdrantPort,
		Collection: cfg.Index.QdrantCollection,
		Dim:        cfg.Training.EmbeddingDim,
		Distance:   cfg.Distance(),
	}
}

// Ensure Backend implements the interface.
var _ driven.IndexBackend = (*Backend)(nil)

// Backend builds and reopens indexes held in Qdrant.
type Backend struct {
	cfg         Config
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
}

// New creates a backend. The connection is established lazily on first use.
func New(cfg Config) (*Backend, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	b := newBackend(cfg, pb.NewPointsClient(conn), pb.NewCollectionsClient(conn))
	b.conn = conn
	return b, nil
}

func newBackend(cfg Config, points pb.PointsClient, collections pb.CollectionsClient) *Backend {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Backend{cfg: cfg, points: points, collections: collections}
}

func (b *Backend) distance() pb.Distance {
	if b.cfg.Distance == domain.DistanceL2 {
		return pb.Distance_Euclid
	}
	return pb.Distance_Cosine
}

// Build recreates the collection and upserts vectors[p] as point p.
func (b *Backend) Build(ctx context.Context, vectors [][]float32) (driven.VectorIndex, error) {
	dim := b.cfg.Dim
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}

	exists, err := b.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: b.cfg.Collection})
	if err != nil {
		return nil, fmt.Errorf("qdrant collection exists: %w", err)
	}
	if exists.GetResult().GetExists() {
		if _, err := b.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: b.cfg.Collection}); err != nil {
			return nil, fmt.Errorf("qdrant delete collection: %w", err)
		}
	}
	_, err = b.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: b.cfg.Collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{Size: uint64(dim), Distance: b.distance()},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant create collection: %w", err)
	}

	wait := true
	for start := 0; start < len(vectors); start += b.cfg.BatchSize {
		end := min(start+b.cfg.BatchSize, len(vectors))
		points := make([]*pb.PointStruct, 0, end-start)
		for p := start; p < end; p++ {
			if len(vectors[p]) != dim {
				return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d",
					domain.ErrDimensionMismatch, p, len(vectors[p]), dim)
			}
			points = append(points, &pb.PointStruct{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(p)}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vectors[p]}}},
			})
		}
		_, err := b.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: b.cfg.Collection,
			Wait:           &wait,
			Points:         points,
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant upsert %d-%d: %w", start, end, err)
		}
		logger.Debug("qdrant: upserted %d/%d points", end, len(vectors))
	}

	return &Index{backend: b, count: len(vectors), dim: dim}, nil
}

// descriptor is what Save persists: the collection lives in Qdrant.
type descriptor struct {
	Collection string `msgpack:"collection"`
	Count      int    `msgpack:"count"`
	Dim        int    `msgpack:"dim"`
	Distance   string `msgpack:"distance"`
}

// Save writes a descriptor of the collection.
func (b *Backend) Save(index driven.VectorIndex, w io.Writer) error {
	idx, ok := index.(*Index)
	if !ok {
		return fmt.Errorf("%w: cannot save %T as qdrant", domain.ErrUnsupportedType, index)
	}
	d := descriptor{
		Collection: b.cfg.Collection,
		Count:      idx.count,
		Dim:        idx.dim,
		Distance:   b.cfg.Distance,
	}
	if err := msgpack.NewEncoder(w).Encode(&d); err != nil {
		return fmt.Errorf("encoding qdrant descriptor: %w", err)
	}
	return nil
}

// Load reopens the collection named by the descriptor and checks its size.
func (b *Backend) Load(ctx context.Context, r io.Reader) (driven.VectorIndex, error) {
	var d descriptor
	if err := msgpack.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: decoding qdrant descriptor: %v", domain.ErrArtifactCorrupt, err)
	}
	if d.Collection != b.cfg.Collection {
		return nil, fmt.Errorf("%w: descriptor names collection %q, configured %q",
			domain.ErrArtifactStale, d.Collection, b.cfg.Collection)
	}

	exact := true
	resp, err := b.points.Count(ctx, &pb.CountPoints{CollectionName: d.Collection, Exact: &exact})
	if err != nil {
		return nil, fmt.Errorf("qdrant count: %w", err)
	}
	if got := int(resp.GetResult().GetCount()); got != d.Count {
		return nil, fmt.Errorf("%w: collection %q holds %d points, descriptor records %d",
			domain.ErrArtifactStale, d.Collection, got, d.Count)
	}

	return &Index{backend: b, count: d.Count, dim: d.Dim}, nil
}

// Close releases the gRPC connection.
func (b *Backend) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

// Index is a handle on a populated collection.
type Index struct {
	backend *Backend
	count   int
	dim     int
}

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Search queries the collection. Cosine scores are converted to distances.
func (i *Index) Search(ctx context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	if i.count == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != i.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, want %d",
			domain.ErrDimensionMismatch, len(query), i.dim)
	}

	b := i.backend
	resp, err := b.points.Search(ctx, &pb.SearchPoints{
		CollectionName: b.cfg.Collection,
		Vector:         query,
		Limit:          uint64(k),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	cosine := b.distance() == pb.Distance_Cosine
	hits := make([]driven.VectorHit, len(resp.GetResult()))
	for j, pt := range resp.GetResult() {
		dist := pt.GetScore()
		if cosine {
			dist = 1 - dist
		}
		hits[j] = driven.VectorHit{Position: int(pt.GetId().GetNum()), Distance: dist}
	}
	return hits, nil
}

// Len returns the number of points.
func (i *Index) Len() int {
	return i.count
}

// Dim returns the vector dimension.
func (i *Index) Dim() int {
	return i.dim
}

// Close is a no-op; the backend owns the connection.
func (i *Index) Close() error { return nil }
