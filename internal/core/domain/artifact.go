package domain

import "time"

// ArtifactKind identifies one of the persisted build artifacts.
type ArtifactKind string

// The three independently persisted artifacts.
const (
	ArtifactModel   ArtifactKind = "model"
	ArtifactVectors ArtifactKind = "vectors"
	ArtifactIndex   ArtifactKind = "index"
)

// ArtifactHeader is the metadata stored in front of every artifact payload.
type ArtifactHeader struct {
	Kind    ArtifactKind `msgpack:"kind"`
	Version uint32       `msgpack:"version"`

	// BuildID identifies the build run that produced the artifact.
	BuildID string `msgpack:"build_id"`

	// Parent is the fingerprint of the upstream input the artifact was derived from.
	Parent string `msgpack:"parent"`

	// Checksum is the hex SHA-256 of the payload. It doubles as the artifact fingerprint.
	Checksum string `msgpack:"checksum"`

	CreatedAt time.Time `msgpack:"created_at"`
}

// BuildReport summarises one run of the build pipeline.
type BuildReport struct {
	BuildID   string
	Documents int
	Dimension int

	// Degraded lists positions whose vector was replaced by a zero vector.
	Degraded []int

	// Reused lists artifacts reloaded from disk instead of recomputed.
	Reused []ArtifactKind

	// Computed lists artifacts built during this run.
	Computed []ArtifactKind
}

// WasReused reports whether the given artifact was reloaded.
func (r BuildReport) WasReused(kind ArtifactKind) bool {
	for _, k := range r.Reused {
		if k == kind {
			return true
		}
	}
	return false
}
