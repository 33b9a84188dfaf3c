package embedding

import (
	"fmt"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
)

// Config holds the trainer hyper-parameters.
type Config struct {
	Dim          int
	Window       int
	MinCount     int
	Negative     int
	MinN         int
	MaxN         int
	Buckets      int
	Epochs       int
	LearningRate float64

	// Sample is the sub-sampling threshold for frequent words. Zero disables it.
	// It is ignored when the corpus is too small for a single occurrence to
	// fall below the threshold.
	Sample float64

	// MinTokens is the least number of token positions a run visits. Small
	// corpora get extra epochs until it is reached. Zero disables it.
	MinTokens int64

	Seed uint64
}

// DefaultConfig returns skip-gram defaults matching the production index.
func DefaultConfig() Config {
	return Config{
		Dim:          100,
		Window:       10,
		MinCount:     5,
		Negative:     15,
		MinN:         2,
		MaxN:         5,
		Buckets:      200000,
		Epochs:       5,
		LearningRate: 0.05,
		Sample:       1e-4,
		MinTokens:    20000,
		Seed:         1,
	}
}

// ConfigFrom maps the [training] configuration section onto trainer settings.
func ConfigFrom(t domain.TrainingConfig) Config {
	cfg := DefaultConfig()
	cfg.Dim = t.EmbeddingDim
	cfg.Window = t.Window
	cfg.MinCount = t.MinCount
	cfg.Negative = t.Negative
	cfg.MinN = t.MinN
	cfg.MaxN = t.MaxN
	cfg.Buckets = t.Buckets
	cfg.Epochs = t.TrainEpoch
	cfg.LearningRate = t.LearningRate
	cfg.Seed = t.Seed
	return cfg
}

// Validate checks that the configuration can train a model.
func (c Config) Validate() error {
	switch {
	case c.Dim <= 0:
		return fmt.Errorf("%w: dim must be positive", domain.ErrInvalidInput)
	case c.Window <= 0:
		return fmt.Errorf("%w: window must be positive", domain.ErrInvalidInput)
	case c.Epochs <= 0:
		return fmt.Errorf("%w: epochs must be positive", domain.ErrInvalidInput)
	case c.Negative < 0 || c.Buckets < 0 || c.MinCount < 0 || c.MinTokens < 0:
		return fmt.Errorf("%w: negative, buckets, min_count and min_tokens must not be negative", domain.ErrInvalidInput)
	case c.MinN <= 0 || c.MaxN < c.MinN:
		return fmt.Errorf("%w: min_n/max_n out of range", domain.ErrInvalidInput)
	case c.LearningRate <= 0:
		return fmt.Errorf("%w: learning rate must be positive", domain.ErrInvalidInput)
	}
	return nil
}

// epochsFor returns the number of passes over a corpus of ntokens kept tokens.
func (c Config) epochsFor(ntokens int64) int {
	if ntokens <= 0 || c.MinTokens <= 0 {
		return c.Epochs
	}
	need := int((c.MinTokens + ntokens - 1) / ntokens)
	return max(c.Epochs, need)
}

// subsamples reports whether frequent-word sub-sampling applies to a corpus
// of ntokens tokens.
func (c Config) subsamples(ntokens int64) bool {
	return c.Sample > 0 && float64(ntokens)*c.Sample >= 1
}
