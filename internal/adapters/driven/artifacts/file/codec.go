package file

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driven"
)

// Ensure VectorCodec implements the interface.
var _ driven.VectorCodec = VectorCodec{}

// VectorCodec is the msgpack codec for the vectors artifact.
type VectorCodec struct{}

// EncodeVectors implements driven.VectorCodec.
func (VectorCodec) EncodeVectors(w io.Writer, dim int, vectors [][]float32) error {
	return EncodeVectors(w, dim, vectors)
}

// DecodeVectors implements driven.VectorCodec.
func (VectorCodec) DecodeVectors(r io.Reader) (int, [][]float32, error) {
	return DecodeVectors(r)
}

// vectorsPayload is the serialised document vector list.
type vectorsPayload struct {
	Dim     int         `msgpack:"dim"`
	Vectors [][]float32 `msgpack:"vectors"`
}

// EncodeVectors writes the document vectors; vectors[p] is position p.
func EncodeVectors(w io.Writer, dim int, vectors [][]float32) error {
	if err := msgpack.NewEncoder(w).Encode(&vectorsPayload{Dim: dim, Vectors: vectors}); err != nil {
		return fmt.Errorf("encoding vectors: %w", err)
	}
	return nil
}

// DecodeVectors reads vectors written by EncodeVectors.
func DecodeVectors(r io.Reader) (int, [][]float32, error) {
	var p vectorsPayload
	if err := msgpack.NewDecoder(r).Decode(&p); err != nil {
		return 0, nil, fmt.Errorf("%w: decoding vectors: %v", domain.ErrArtifactCorrupt, err)
	}
	return p.Dim, p.Vectors, nil
}
