package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"ragpipe/internal/domain"
)

const (
	// DataDirName is the per-project directory holding config and store files.
	DataDirName = ".ragpipe"
	fileName    = "ragpipe.yaml"
)

// Config holds all configuration for the ingestion pipeline.
type Config struct {
	Splitter  SplitterConfig  `yaml:"splitter"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SplitterConfig holds chunking configuration. Sizes are counted in characters.
type SplitterConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Preset       string   `yaml:"preset"`               // "default", "markdown", "go"
	Separators   []string `yaml:"separators,omitempty"` // overrides the preset when set
}

// EmbeddingConfig holds embedding backend configuration.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"` // "openai", "ollama", "mock"
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"` // Environment variable for API key
	Dimension   int    `yaml:"dimension"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"` // parallel requests for one-prompt APIs (ollama)
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// StoreConfig selects the chunk store backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "bolt", "sqlite", "memory"
	Path   string `yaml:"path"`   // empty means <dir>/.ragpipe/chunks.<ext>
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK          int     `yaml:"top_k"`
	MinSimilarity float64 `yaml:"min_similarity"`
	CacheSize     int     `yaml:"cache_size"` // 0 disables the query cache
	CacheTTLSecs  int     `yaml:"cache_ttl_secs"`
}

// IngestConfig holds file discovery configuration.
type IngestConfig struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
	Workers  int      `yaml:"workers"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Splitter: SplitterConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			Preset:       "default",
		},
		Embedding: EmbeddingConfig{
			Provider:    "openai",
			Model:       "text-embedding-3-small",
			APIKeyEnv:   "OPENAI_API_KEY",
			Dimension:   1536,
			BatchSize:   100,
			Concurrency: 4,
			TimeoutSecs: 30,
			MaxRetries:  2,
		},
		Store: StoreConfig{
			Driver: "bolt",
		},
		Retrieve: RetrieveConfig{
			TopK:          5,
			MinSimilarity: 0.5,
			CacheSize:     100,
			CacheTTLSecs:  300,
		},
		Ingest: IngestConfig{
			Includes: []string{"**/*.md", "**/*.txt", "**/*.rst", "**/*.go", "**/*.pdf"},
			Excludes: []string{"**/node_modules/**", "**/vendor/**", "**/.git/**", "**/" + DataDirName + "/**"},
			Workers:  4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for ragpipe.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, fileName)
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, DataDirName, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	s := c.Splitter
	switch {
	case s.ChunkSize <= 0:
		return invalid("splitter.chunk_size", "must be positive, got %d", s.ChunkSize)
	case s.ChunkOverlap < 0:
		return invalid("splitter.chunk_overlap", "must not be negative, got %d", s.ChunkOverlap)
	case s.ChunkOverlap >= s.ChunkSize:
		return invalid("splitter.chunk_overlap", "must be smaller than chunk_size (%d >= %d)", s.ChunkOverlap, s.ChunkSize)
	}

	switch c.Embedding.Provider {
	case "openai", "ollama", "mock":
	default:
		return invalid("embedding.provider", "unknown provider %q", c.Embedding.Provider)
	}
	if c.Embedding.BatchSize < 0 {
		return invalid("embedding.batch_size", "must not be negative, got %d", c.Embedding.BatchSize)
	}
	if c.Embedding.Dimension < 0 {
		return invalid("embedding.dimension", "must not be negative, got %d", c.Embedding.Dimension)
	}

	switch c.Store.Driver {
	case "bolt", "sqlite", "memory":
	default:
		return invalid("store.driver", "unknown driver %q", c.Store.Driver)
	}

	if c.Retrieve.TopK < 0 {
		return invalid("retrieve.top_k", "must not be negative, got %d", c.Retrieve.TopK)
	}
	if c.Retrieve.MinSimilarity < -1 || c.Retrieve.MinSimilarity > 1 {
		return invalid("retrieve.min_similarity", "must be within [-1, 1], got %v", c.Retrieve.MinSimilarity)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return invalid("logging.format", "unknown format %q", c.Logging.Format)
	}

	return nil
}

func invalid(field, format string, args ...any) error {
	return &domain.ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// StorePath returns the store file for the configured driver, relative to dir
// unless an explicit path is configured.
func (c *Config) StorePath(dir string) string {
	if c.Store.Path != "" {
		if filepath.IsAbs(c.Store.Path) {
			return c.Store.Path
		}
		return filepath.Join(dir, c.Store.Path)
	}
	switch c.Store.Driver {
	case "sqlite":
		return filepath.Join(dir, DataDirName, "chunks.sqlite")
	default:
		return filepath.Join(dir, DataDirName, "chunks.db")
	}
}

// EnsureDataDir ensures the .ragpipe directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, DataDirName), 0755)
}
