package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown language, backend or driver.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrDimensionMismatch indicates a vector does not have the configured dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// Corpus Errors.

	// ErrCorpusMisaligned indicates the source and target corpus files differ in length.
	ErrCorpusMisaligned = errors.New("source and target corpus are not line-aligned")

	// Artifact Errors.

	// ErrArtifactMissing indicates a persisted artifact does not exist.
	// Serving cannot reach Ready until the build pipeline has run.
	ErrArtifactMissing = errors.New("artifact missing")

	// ErrArtifactCorrupt indicates a persisted artifact failed format or checksum checks.
	ErrArtifactCorrupt = errors.New("artifact corrupt")

	// ErrArtifactStale indicates an artifact was built from a different upstream artifact.
	ErrArtifactStale = errors.New("artifact stale")

	// Serving Errors.

	// ErrNotReady indicates the query server has not finished loading.
	ErrNotReady = errors.New("query server not ready")

	// ErrNoResolvableTokens indicates no query token has an embedding.
	ErrNoResolvableTokens = errors.New("no resolvable tokens in query")

	// ErrMetadataUnavailable indicates the metadata store could not answer.
	// It is distinct from an empty result.
	ErrMetadataUnavailable = errors.New("metadata unavailable")

	// ErrPositionMismatch indicates metadata rows no longer line up with index positions.
	ErrPositionMismatch = errors.New("metadata position mismatch")
)
