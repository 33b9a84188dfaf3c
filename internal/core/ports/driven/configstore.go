package driven

import "github.com/custodia-labs/tmsearch/internal/core/domain"

// ConfigStore provides access to the engine configuration.
// Implementations handle persistence (e.g., TOML files) and defaulting.
type ConfigStore interface {
	// Load reads, defaults and validates the configuration.
	Load() (domain.Config, error)

	// Save persists the configuration.
	Save(cfg domain.Config) error

	// Path returns the configuration file path.
	Path() string
}
