package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1000, cfg.Retrieval.ChunkSize)
	assert.Equal(t, 200, cfg.Retrieval.ChunkOverlap)
	assert.Equal(t, 100, cfg.Retrieval.BatchSize)
	assert.Equal(t, 4, cfg.Retrieval.K)
	assert.InDelta(t, 0.7, cfg.Retrieval.ScoreThreshold, 1e-9)
	assert.Equal(t, "hash", cfg.Embeddings.Provider)
	assert.False(t, cfg.Observability.EnableTelemetry)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"zero chunk size", func(c *Config) { c.Retrieval.ChunkSize = 0 }, "chunk_size"},
		{"overlap equals size", func(c *Config) { c.Retrieval.ChunkOverlap = 1000 }, "chunk_overlap"},
		{"negative overlap", func(c *Config) { c.Retrieval.ChunkOverlap = -1 }, "chunk_overlap"},
		{"zero batch", func(c *Config) { c.Retrieval.BatchSize = 0 }, "batch_size"},
		{"zero k", func(c *Config) { c.Retrieval.K = 0 }, "k must be"},
		{"threshold above one", func(c *Config) { c.Retrieval.ScoreThreshold = 1.5 }, "score_threshold"},
		{"threshold below zero", func(c *Config) { c.Retrieval.ScoreThreshold = -0.1 }, "score_threshold"},
		{"zero concurrency", func(c *Config) { c.Retrieval.Concurrency = 0 }, "concurrency"},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "word2vec" }, "unknown embeddings provider"},
		{"short encryption key", func(c *Config) { c.Index.EncryptionKey = "short" }, "32 bytes"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ragerr.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("sk-live-123")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "sk-live-123", s.Value())

	b, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"[REDACTED]"}`, string(b))

	var back Secret
	require.NoError(t, json.Unmarshal([]byte(`"[REDACTED]"`), &back))
	assert.False(t, back.IsSet())
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))

	require.NoError(t, json.Unmarshal([]byte(`"2s"`), &d))
	assert.Equal(t, 2*time.Second, d.Duration())
}
