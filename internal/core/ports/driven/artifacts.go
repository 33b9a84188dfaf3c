package driven

import (
	"io"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
)

// ArtifactStore persists the build artifacts, each at its own location.
type ArtifactStore interface {
	// Exists reports whether the artifact has a persisted form.
	Exists(kind domain.ArtifactKind) bool

	// Header reads only the artifact header.
	Header(kind domain.ArtifactKind) (domain.ArtifactHeader, error)

	// Save writes the payload produced by write, recording its parent fingerprint.
	Save(kind domain.ArtifactKind, buildID, parent string, write func(io.Writer) error) (domain.ArtifactHeader, error)

	// Load verifies the artifact and streams its payload to read.
	Load(kind domain.ArtifactKind, read func(io.Reader) error) (domain.ArtifactHeader, error)
}

// VectorCodec serialises the document vector artifact.
type VectorCodec interface {
	// EncodeVectors writes the vectors; vectors[p] is position p.
	EncodeVectors(w io.Writer, dim int, vectors [][]float32) error

	// DecodeVectors reads vectors written by EncodeVectors and returns their dimension.
	DecodeVectors(r io.Reader) (int, [][]float32, error)
}
