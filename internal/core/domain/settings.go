package domain

import "fmt"

const unknownDescription = "Unknown"

// Distance names accepted in configuration.
const (
	DistanceCosine = "cosine"
	DistanceL2     = "l2"
)

// IndexBackend identifies the ApproximateIndex implementation.
type IndexBackend string

// Available index backends.
const (
	// IndexBackendHNSW is the in-process HNSW graph persisted to index_path.
	IndexBackendHNSW IndexBackend = "hnsw"

	// IndexBackendQdrant stores vectors in a Qdrant collection.
	IndexBackendQdrant IndexBackend = "qdrant"
)

// IsValid returns true if the backend is recognised.
func (b IndexBackend) IsValid() bool {
	return b == IndexBackendHNSW || b == IndexBackendQdrant
}

// DatabaseDriver identifies the MetadataStore implementation.
type DatabaseDriver string

// Available database drivers.
const (
	DatabaseSQLite   DatabaseDriver = "sqlite"
	DatabasePostgres DatabaseDriver = "postgres"

	// DatabaseMemory keeps segments in process memory. Nothing survives exit.
	DatabaseMemory DatabaseDriver = "memory"
)

// IsValid returns true if the driver is recognised.
func (d DatabaseDriver) IsValid() bool {
	return d == DatabaseSQLite || d == DatabasePostgres || d == DatabaseMemory
}

// LanguageConfig selects the language pair.
type LanguageConfig struct {
	SourceLang string `toml:"source_lang"`
	TargetLang string `toml:"target_lang"`
}

// TrainingConfig configures the corpus and the embedding trainer.
type TrainingConfig struct {
	SrcCorpusPath string  `toml:"src_corpus_path"`
	TgtCorpusPath string  `toml:"tgt_corpus_path"`
	EmbeddingDim  int     `toml:"embedding_dim"`
	DistanceFun   string  `toml:"distance_fun"`
	TrainEpoch    int     `toml:"train_epoch"`
	Window        int     `toml:"window"`
	MinCount      int     `toml:"min_count"`
	Negative      int     `toml:"negative"`
	MinN          int     `toml:"min_n"`
	MaxN          int     `toml:"max_n"`
	Buckets       int     `toml:"buckets"`
	LearningRate  float64 `toml:"learning_rate"`
	Seed          uint64  `toml:"seed"`
	Workers       int     `toml:"workers"`
}

// IndexConfig configures the ApproximateIndex.
type IndexConfig struct {
	Backend          IndexBackend `toml:"backend"`
	M                int          `toml:"m"`
	EfConstruction   int          `toml:"ef_construction"`
	EfSearch         int          `toml:"ef_search"`
	QdrantHost       string       `toml:"qdrant_host"`
	QdrantPort       int          `toml:"qdrant_port"`
	QdrantCollection string       `toml:"qdrant_collection"`
}

// SerializationConfig holds the artifact paths.
type SerializationConfig struct {
	ModelPath  string `toml:"fasttext_model_path"`
	VectorPath string `toml:"corpus_vector_path"`
	IndexPath  string `toml:"index_path"`
}

// DatabaseConfig configures the MetadataStore.
type DatabaseConfig struct {
	Driver    DatabaseDriver `toml:"driver"`
	Path      string         `toml:"path"`
	DSN       string         `toml:"dsn"`
	CacheSize int            `toml:"cache_size"`
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Addr      string  `toml:"addr"`
	RateLimit float64 `toml:"rate_limit"`
	Burst     int     `toml:"burst"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	OTLPEndpoint string  `toml:"otlp_endpoint"`
	SampleRate   float64 `toml:"sample_rate"`
}

// Config is the full engine configuration.
type Config struct {
	Language      LanguageConfig      `toml:"language"`
	Training      TrainingConfig      `toml:"training"`
	Index         IndexConfig         `toml:"index"`
	Serialization SerializationConfig `toml:"serialization"`
	Database      DatabaseConfig      `toml:"database"`
	Server        ServerConfig        `toml:"server"`
	Tracing       TracingConfig       `toml:"tracing"`
}

// DefaultConfig returns a configuration with the original training defaults.
func DefaultConfig() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Language.SourceLang == "" {
		c.Language.SourceLang = "eng"
	}
	if c.Language.TargetLang == "" {
		c.Language.TargetLang = "fra"
	}

	t := &c.Training
	if t.EmbeddingDim == 0 {
		t.EmbeddingDim = 100
	}
	if t.DistanceFun == "" {
		t.DistanceFun = DistanceCosine
	}
	if t.TrainEpoch == 0 {
		t.TrainEpoch = 5
	}
	if t.Window == 0 {
		t.Window = 10
	}
	if t.MinCount == 0 {
		t.MinCount = 5
	}
	if t.Negative == 0 {
		t.Negative = 15
	}
	if t.MinN == 0 {
		t.MinN = 2
	}
	if t.MaxN == 0 {
		t.MaxN = 5
	}
	if t.Buckets == 0 {
		t.Buckets = 200000
	}
	if t.LearningRate == 0 {
		t.LearningRate = 0.05
	}
	if t.Seed == 0 {
		t.Seed = 1
	}
	if t.Workers == 0 {
		t.Workers = 2
	}

	i := &c.Index
	if i.Backend == "" {
		i.Backend = IndexBackendHNSW
	}
	if i.M == 0 {
		i.M = 16
	}
	if i.EfConstruction == 0 {
		i.EfConstruction = 200
	}
	if i.EfSearch == 0 {
		i.EfSearch = 50
	}
	if i.QdrantHost == "" {
		i.QdrantHost = "localhost"
	}
	if i.QdrantPort == 0 {
		i.QdrantPort = 6334
	}
	if i.QdrantCollection == "" {
		i.QdrantCollection = "tm_segments"
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DatabaseSQLite
	}
	if c.Database.CacheSize == 0 {
		c.Database.CacheSize = 1024
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":5555"
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 50
	}
	if c.Server.Burst == 0 {
		c.Server.Burst = 100
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1.0
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Training.EmbeddingDim <= 0:
		return fmt.Errorf("%w: training.embedding_dim must be positive", ErrInvalidInput)
	case c.Training.MinN <= 0 || c.Training.MaxN < c.Training.MinN:
		return fmt.Errorf("%w: training.min_n/max_n out of range", ErrInvalidInput)
	case c.Training.DistanceFun != DistanceCosine && c.Training.DistanceFun != "cosinesimil" &&
		c.Training.DistanceFun != DistanceL2:
		return fmt.Errorf("%w: training.distance_fun %q", ErrUnsupportedType, c.Training.DistanceFun)
	case !c.Index.Backend.IsValid():
		return fmt.Errorf("%w: index.backend %q", ErrUnsupportedType, c.Index.Backend)
	case !c.Database.Driver.IsValid():
		return fmt.Errorf("%w: database.driver %q", ErrUnsupportedType, c.Database.Driver)
	case c.Database.Driver == DatabasePostgres && c.Database.DSN == "":
		return fmt.Errorf("%w: database.dsn is required for postgres", ErrInvalidInput)
	}
	return nil
}

// Distance returns the normalised distance function name.
// "cosinesimil" is accepted as an alias for cosine.
func (c *Config) Distance() string {
	if c.Training.DistanceFun == "cosinesimil" {
		return DistanceCosine
	}
	return c.Training.DistanceFun
}
