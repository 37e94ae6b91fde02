package retriever

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/opsdocs/internal/config"
	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

// Defaults applied by DefaultConfig.
const (
	DefaultChunkSize      = 1000
	DefaultChunkOverlap   = 200
	DefaultBatchSize      = 100
	DefaultK              = 4
	DefaultScoreThreshold = 0.7
)

// Config holds retriever settings. Every field except the persistence
// options can be overridden per call.
type Config struct {
	ChunkSize      int
	ChunkOverlap   int
	BatchSize      int
	Concurrency    int
	K              int
	ScoreThreshold float64
	QueryTimeout   time.Duration
	IngestTimeout  time.Duration

	// Recorded in the index metadata.
	EmbeddingProvider string
	EmbeddingModel    string

	Compress      bool
	EncryptionKey config.Secret
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      DefaultChunkSize,
		ChunkOverlap:   DefaultChunkOverlap,
		BatchSize:      DefaultBatchSize,
		Concurrency:    1,
		K:              DefaultK,
		ScoreThreshold: DefaultScoreThreshold,
		QueryTimeout:   30 * time.Second,
		Compress:       true,
	}
}

// FromSettings builds a Config from the loaded application config.
func FromSettings(c *config.Config) Config {
	return Config{
		ChunkSize:         c.Retrieval.ChunkSize,
		ChunkOverlap:      c.Retrieval.ChunkOverlap,
		BatchSize:         c.Retrieval.BatchSize,
		Concurrency:       c.Retrieval.Concurrency,
		K:                 c.Retrieval.K,
		ScoreThreshold:    c.Retrieval.ScoreThreshold,
		QueryTimeout:      c.Retrieval.QueryTimeout.Duration(),
		IngestTimeout:     c.Retrieval.IngestTimeout.Duration(),
		EmbeddingProvider: c.Embeddings.Provider,
		EmbeddingModel:    c.Embeddings.Model,
		Compress:          c.Index.Compress,
		EncryptionKey:     c.Index.EncryptionKey,
	}
}

// Validate checks every parameter. Failures wrap ragerr.ErrConfiguration.
func (c Config) Validate() error {
	if err := validateChunking(c.ChunkSize, c.ChunkOverlap, c.BatchSize); err != nil {
		return err
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be >= 1, got %d", ragerr.ErrConfiguration, c.Concurrency)
	}
	if err := validateQuery(c.K, c.ScoreThreshold); err != nil {
		return err
	}
	if c.QueryTimeout < 0 || c.IngestTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ragerr.ErrConfiguration)
	}
	if k := c.EncryptionKey; k.IsSet() && len(k.Value()) != 32 {
		return fmt.Errorf("%w: encryption key must be exactly 32 bytes", ragerr.ErrConfiguration)
	}
	return nil
}

func validateChunking(size, overlap, batch int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk_size must be > 0, got %d", ragerr.ErrConfiguration, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: chunk_overlap must be in [0, %d), got %d", ragerr.ErrConfiguration, size, overlap)
	}
	if batch < 1 {
		return fmt.Errorf("%w: batch_size must be >= 1, got %d", ragerr.ErrConfiguration, batch)
	}
	return nil
}

func validateQuery(k int, threshold float64) error {
	if k < 1 {
		return fmt.Errorf("%w: k must be >= 1, got %d", ragerr.ErrConfiguration, k)
	}
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w: score_threshold must be in [0, 1], got %g", ragerr.ErrConfiguration, threshold)
	}
	return nil
}
