// Package config provides configuration loading for opsdocs.
//
// Configuration is assembled from hardcoded defaults, an optional YAML or
// TOML file, and OPSDOCS_* environment variables, in increasing order of
// precedence. Nothing outside this package reads the process environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

// Config holds the complete opsdocs configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Index         IndexConfig         `koanf:"index"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	Corpus        CorpusConfig        `koanf:"corpus"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	Provider  string   `koanf:"provider"`
	Model     string   `koanf:"model"`
	BaseURL   string   `koanf:"base_url"`
	APIKey    Secret   `koanf:"api_key"`
	Dimension int      `koanf:"dimension"`
	CacheDir  string   `koanf:"cache_dir"`
	Timeout   Duration `koanf:"timeout"`
	RateLimit float64  `koanf:"rate_limit"` // requests per second, 0 = unlimited
	Burst     int      `koanf:"burst"`
}

// IndexConfig controls where and how the vector index is persisted.
type IndexConfig struct {
	Dir           string `koanf:"dir"`
	Compress      bool   `koanf:"compress"`
	EncryptionKey Secret `koanf:"encryption_key"`
}

// RetrievalConfig holds chunking, ingestion and query defaults.
type RetrievalConfig struct {
	ChunkSize      int      `koanf:"chunk_size"`
	ChunkOverlap   int      `koanf:"chunk_overlap"`
	BatchSize      int      `koanf:"batch_size"`
	Concurrency    int      `koanf:"concurrency"`
	K              int      `koanf:"k"`
	ScoreThreshold float64  `koanf:"score_threshold"`
	QueryTimeout   Duration `koanf:"query_timeout"`
	IngestTimeout  Duration `koanf:"ingest_timeout"`
}

// CorpusConfig describes the document corpus on disk.
type CorpusConfig struct {
	Dir           string            `koanf:"dir"`
	Categories    map[string]string `koanf:"categories"` // sub-directory -> category
	Ignore        []string          `koanf:"ignore"`
	WatchDebounce Duration          `koanf:"watch_debounce"`
	RedactSecrets bool              `koanf:"redact_secrets"`
	RedactAllow   []string          `koanf:"redact_allow"` // regexps exempting documented example keys
}

// LoggingConfig holds the subset of logging settings exposed to users.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	Endpoint        string  `koanf:"endpoint"`
	Protocol        string  `koanf:"protocol"`
	Insecure        bool    `koanf:"insecure"`
	ServiceName     string  `koanf:"service_name"`
	SampleRate      float64 `koanf:"sample_rate"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9191,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Embeddings: EmbeddingsConfig{
			Provider: "hash",
			Model:    "text-embedding-3-small",
			Timeout:  Duration(30 * time.Second),
			Burst:    1,
		},
		Index: IndexConfig{
			Dir:      "vector_store",
			Compress: true,
		},
		Retrieval: RetrievalConfig{
			ChunkSize:      1000,
			ChunkOverlap:   200,
			BatchSize:      100,
			Concurrency:    1,
			K:              4,
			ScoreThreshold: 0.7,
			QueryTimeout:   Duration(30 * time.Second),
			IngestTimeout:  Duration(30 * time.Minute),
		},
		Corpus: CorpusConfig{
			Dir:           "data",
			Ignore:        []string{".*", "*.tmp", "*~"},
			WatchDebounce: Duration(2 * time.Second),
			RedactSecrets: true,
			RedactAllow:   []string{`EXAMPLE`},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			ServiceName: "opsdocs",
			SampleRate:  1.0,
		},
	}
}

var validProviders = map[string]bool{
	"openai":            true,
	"openai-compatible": true,
	"ollama":            true,
	"tei":               true,
	"fastembed":         true,
	"hash":              true,
}

// Validate validates the configuration.
//
// All failures wrap ragerr.ErrConfiguration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port: %d (must be 1-65535)", ragerr.ErrConfiguration, c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown timeout must be positive", ragerr.ErrConfiguration)
	}

	provider := strings.ToLower(c.Embeddings.Provider)
	if !validProviders[provider] {
		return fmt.Errorf("%w: unknown embeddings provider %q", ragerr.ErrConfiguration, c.Embeddings.Provider)
	}
	if c.Embeddings.Dimension < 0 {
		return fmt.Errorf("%w: embeddings dimension must be >= 0", ragerr.ErrConfiguration)
	}
	if c.Embeddings.RateLimit < 0 {
		return fmt.Errorf("%w: embeddings rate_limit must be >= 0", ragerr.ErrConfiguration)
	}

	if key := c.Index.EncryptionKey; key.IsSet() && len(key.Value()) != 32 {
		return fmt.Errorf("%w: index encryption_key must be exactly 32 bytes", ragerr.ErrConfiguration)
	}
	if c.Index.Dir == "" {
		return fmt.Errorf("%w: index dir is required", ragerr.ErrConfiguration)
	}

	if err := c.Retrieval.Validate(); err != nil {
		return err
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: logging format must be 'json' or 'console', got %q", ragerr.ErrConfiguration, c.Logging.Format)
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return fmt.Errorf("%w: service name required when telemetry is enabled", ragerr.ErrConfiguration)
	}
	return nil
}

// Validate checks retrieval parameters.
func (r RetrievalConfig) Validate() error {
	switch {
	case r.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk_size must be > 0, got %d", ragerr.ErrConfiguration, r.ChunkSize)
	case r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize:
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d", ragerr.ErrConfiguration, r.ChunkOverlap)
	case r.BatchSize < 1:
		return fmt.Errorf("%w: batch_size must be >= 1, got %d", ragerr.ErrConfiguration, r.BatchSize)
	case r.Concurrency < 1:
		return fmt.Errorf("%w: concurrency must be >= 1, got %d", ragerr.ErrConfiguration, r.Concurrency)
	case r.K < 1:
		return fmt.Errorf("%w: k must be >= 1, got %d", ragerr.ErrConfiguration, r.K)
	case r.ScoreThreshold < 0 || r.ScoreThreshold > 1:
		return fmt.Errorf("%w: score_threshold must be in [0, 1], got %v", ragerr.ErrConfiguration, r.ScoreThreshold)
	}
	return nil
}
