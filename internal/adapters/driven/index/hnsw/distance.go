package hnsw

import (
	"fmt"
	"math"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
)

// distanceFunc returns a non-negative distance; lower is closer.
type distanceFunc func(a, b []float32) float32

func distanceFor(name string) (distanceFunc, error) {
	switch name {
	case "", domain.DistanceCosine, "cosinesimil":
		return cosineDistance, nil
	case domain.DistanceL2:
		return l2Distance, nil
	default:
		return nil, fmt.Errorf("%w: distance %q", domain.ErrUnsupportedType, name)
	}
}

// cosineDistance returns 1 - cos(a, b). A zero vector has no direction and
// is treated as maximally distant.
func cosineDistance(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 2
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	sim = max(-1, min(1, sim))
	return float32(1 - sim)
}

func l2Distance(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}
