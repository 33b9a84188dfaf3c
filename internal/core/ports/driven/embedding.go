package driven

import (
	"context"
	"io"
)

// EmbeddingModel resolves tokens to dense vectors.
// A trained model is read-only and safe for concurrent lookups.
type EmbeddingModel interface {
	// Lookup returns the vector for token and whether anything resolved.
	Lookup(token string) ([]float32, bool)

	// Dim returns the vector dimension.
	Dim() int
}

// EmbeddingTrainer trains and serialises embedding models.
type EmbeddingTrainer interface {
	// Train fits a model over the tokenized corpus. It is a one-shot batch call.
	Train(ctx context.Context, corpus [][]string) (EmbeddingModel, error)

	// Encode writes a model trained by this trainer.
	Encode(model EmbeddingModel, w io.Writer) error

	// Decode reads a model previously written by Encode.
	Decode(r io.Reader) (EmbeddingModel, error)
}
