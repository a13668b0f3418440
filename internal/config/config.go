// Package config loads and validates the Shelfmark configuration.
//
// Resolution order: built-in defaults, then the YAML config file, then
// SHELFMARK_* environment variables (highest priority).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	sherr "github.com/shelfmark/shelfmark/internal/errors"
)

// Config is the complete Shelfmark configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Paths      PathsConfig      `yaml:"paths"`
	Search     SearchConfig     `yaml:"search"`
	Vector     VectorConfig     `yaml:"vector"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	LogLevel   string           `yaml:"log_level"`
}

// PathsConfig locates the on-disk indexes and chunk database.
type PathsConfig struct {
	// DataDir holds the vector index, lexical index, and chunk database.
	DataDir string `yaml:"data_dir"`
}

// SearchConfig tunes retrieval and ranking.
type SearchConfig struct {
	// RRFConstant is the RRF smoothing parameter (k). Default: 60.
	// Higher values reduce the impact of rank differences.
	RRFConstant int `yaml:"rrf_constant"`

	// MaxConcurrency bounds parallel sub-query fusions. Default: 4.
	MaxConcurrency int `yaml:"max_concurrency"`

	// AdapterTimeout is the per-adapter-call deadline. Default: 5s.
	AdapterTimeout time.Duration `yaml:"adapter_timeout"`

	// DecayFactor is the geometric weight decay for the weighted
	// aggregation strategy, in (0,1]. Default: 0.7.
	DecayFactor float64 `yaml:"decay_factor"`

	// DefaultLimit is the result count when a query passes none. Default: 10.
	DefaultLimit int `yaml:"default_limit"`
}

// VectorConfig selects and tunes the vector backend.
type VectorConfig struct {
	// Backend is "hnsw" (in-process, default) or "qdrant" (remote).
	Backend string `yaml:"backend"`

	// Metric is the backend's native metric. HNSW supports cosine and l2,
	// Qdrant cosine and dot. Default: cosine.
	Metric string `yaml:"metric"`

	// QdrantAddr is the gRPC endpoint for the qdrant backend.
	QdrantAddr string `yaml:"qdrant_addr"`

	// QdrantCollection is the collection name for the qdrant backend.
	QdrantCollection string `yaml:"qdrant_collection"`

	// HNSWM is the HNSW max connections per layer. Default: 16.
	HNSWM int `yaml:"hnsw_m"`

	// HNSWEfSearch is the HNSW query-time search width. Default: 20.
	HNSWEfSearch int `yaml:"hnsw_ef_search"`
}

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama" (default) or "static" (deterministic, offline).
	Provider string `yaml:"provider"`

	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	OllamaHost string `yaml:"ollama_host"`
	CacheSize  int    `yaml:"cache_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: defaultDataDir(),
		},
		Search: SearchConfig{
			RRFConstant:    60,
			MaxConcurrency: 4,
			AdapterTimeout: 5 * time.Second,
			DecayFactor:    0.7,
			DefaultLimit:   10,
		},
		Vector: VectorConfig{
			Backend:          "hnsw",
			Metric:           "cosine",
			QdrantAddr:       "localhost:6334",
			QdrantCollection: "shelfmark",
			HNSWM:            16,
			HNSWEfSearch:     20,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			BatchSize:  32,
			OllamaHost: "http://localhost:11434",
			CacheSize:  1000,
		},
		LogLevel: "info",
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".shelfmark"
	}
	return home + "/.shelfmark"
}

// Load reads configuration from the given path, layering file values over
// defaults and environment variables over both. A missing file is not an
// error; an unreadable or invalid one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			// Defaults plus env only.
		} else if err != nil {
			return nil, sherr.New(sherr.ErrCodeConfigNotFound,
				fmt.Sprintf("cannot read config file %s", path), err)
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, sherr.ConfigError(
				fmt.Sprintf("invalid YAML in %s", path), err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides layers SHELFMARK_* environment variables on top.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHELFMARK_DATA_DIR"); v != "" {
		cfg.Paths.DataDir = v
	}
	if v := os.Getenv("SHELFMARK_RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.RRFConstant = n
		}
	}
	if v := os.Getenv("SHELFMARK_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.MaxConcurrency = n
		}
	}
	if v := os.Getenv("SHELFMARK_VECTOR_BACKEND"); v != "" {
		cfg.Vector.Backend = v
	}
	if v := os.Getenv("SHELFMARK_QDRANT_ADDR"); v != "" {
		cfg.Vector.QdrantAddr = v
	}
	if v := os.Getenv("SHELFMARK_EMBED_PROVIDER"); v != "" {
		cfg.Embeddings.Provider = v
	}
	if v := os.Getenv("SHELFMARK_OLLAMA_HOST"); v != "" {
		cfg.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("SHELFMARK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Validate checks the configuration, surfacing problems at startup instead
// of mid-query.
func (c *Config) Validate() error {
	if c.Search.RRFConstant <= 0 {
		return sherr.ConfigError(
			fmt.Sprintf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant), nil)
	}
	if c.Search.MaxConcurrency <= 0 {
		return sherr.ConfigError(
			fmt.Sprintf("search.max_concurrency must be positive, got %d", c.Search.MaxConcurrency), nil)
	}
	if c.Search.DecayFactor <= 0 || c.Search.DecayFactor > 1 {
		return sherr.ConfigError(
			fmt.Sprintf("search.decay_factor must be in (0,1], got %g", c.Search.DecayFactor), nil)
	}
	if c.Search.DefaultLimit <= 0 {
		return sherr.ConfigError(
			fmt.Sprintf("search.default_limit must be positive, got %d", c.Search.DefaultLimit), nil)
	}

	switch c.Vector.Backend {
	case "hnsw", "qdrant":
	default:
		return sherr.ConfigError(
			fmt.Sprintf("vector.backend must be hnsw or qdrant, got %q", c.Vector.Backend), nil)
	}

	switch c.Embeddings.Provider {
	case "ollama", "static":
	default:
		return sherr.ConfigError(
			fmt.Sprintf("embeddings.provider must be ollama or static, got %q", c.Embeddings.Provider), nil)
	}
	if c.Embeddings.Dimensions <= 0 {
		return sherr.ConfigError(
			fmt.Sprintf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions), nil)
	}

	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return sherr.ConfigError("cannot marshal config", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return sherr.ConfigError(fmt.Sprintf("cannot write config file %s", path), err)
	}
	return nil
}
