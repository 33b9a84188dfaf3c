package file

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driven"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "./config/search.toml"

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigStore reads and writes the engine configuration as TOML.
type ConfigStore struct {
	filePath string
}

// NewConfigStore creates a store for the file at path.
// If path is empty, DefaultPath is used.
func NewConfigStore(path string) *ConfigStore {
	if path == "" {
		path = DefaultPath
	}
	return &ConfigStore{filePath: path}
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}

// Load reads the file, applies defaults, resolves relative paths and validates.
// Unknown keys are rejected so that typos do not silently fall back to defaults.
func (s *ConfigStore) Load() (domain.Config, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Config{}, fmt.Errorf("%w: config file %s", domain.ErrNotFound, s.filePath)
		}
		return domain.Config{}, fmt.Errorf("reading config: %w", err)
	}

	var cfg domain.Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return domain.Config{}, fmt.Errorf("%w: %s: %s", domain.ErrInvalidInput, s.filePath, strict.String())
		}
		return domain.Config{}, fmt.Errorf("%w: parsing %s: %v", domain.ErrInvalidInput, s.filePath, err)
	}

	cfg.ApplyDefaults()
	s.resolvePaths(&cfg)
	if err := cfg.Validate(); err != nil {
		return domain.Config{}, err
	}
	return cfg, nil
}

// Save writes cfg to the file, creating its directory.
func (s *ConfigStore) Save(cfg domain.Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(s.filePath, data, 0600)
}

// resolvePaths makes every relative path relative to the config file.
func (s *ConfigStore) resolvePaths(cfg *domain.Config) {
	base := filepath.Dir(s.filePath)
	for _, p := range []*string{
		&cfg.Training.SrcCorpusPath,
		&cfg.Training.TgtCorpusPath,
		&cfg.Serialization.ModelPath,
		&cfg.Serialization.VectorPath,
		&cfg.Serialization.IndexPath,
		&cfg.Database.Path,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}
