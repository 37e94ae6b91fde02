package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

// setupTestHome points HOME at a temp dir so the default path is isolated.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadWithFile_DefaultsWhenNoFile(t *testing.T) {
	setupTestHome(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	home := setupTestHome(t)
	path := filepath.Join(home, ".config", "opsdocs", "config.yaml")
	writeFile(t, path, `server:
  http_port: 8088
embeddings:
  provider: tei
  base_url: http://localhost:8080
  timeout: 5s
retrieval:
  chunk_size: 500
  chunk_overlap: 50
  score_threshold: 0.0
corpus:
  categories:
    ec2: compute
    s3: storage
`)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "tei", cfg.Embeddings.Provider)
	assert.Equal(t, 5*time.Second, cfg.Embeddings.Timeout.Duration())
	assert.Equal(t, 500, cfg.Retrieval.ChunkSize)
	assert.Equal(t, 50, cfg.Retrieval.ChunkOverlap)
	// explicit zero must survive, not be replaced by the 0.7 default
	assert.Zero(t, cfg.Retrieval.ScoreThreshold)
	// untouched fields keep defaults
	assert.Equal(t, 100, cfg.Retrieval.BatchSize)
	assert.Equal(t, "storage", cfg.Corpus.Categories["s3"])
}

func TestLoadWithFile_TOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opsdocs.toml")
	writeFile(t, path, `
[retrieval]
k = 8
batch_size = 25

[index]
dir = "/var/lib/opsdocs"
compress = false
`)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Retrieval.K)
	assert.Equal(t, 25, cfg.Retrieval.BatchSize)
	assert.Equal(t, "/var/lib/opsdocs", cfg.Index.Dir)
	assert.False(t, cfg.Index.Compress)
}

func TestLoadWithFile_EnvOverrides(t *testing.T) {
	setupTestHome(t)
	t.Setenv("OPSDOCS_RETRIEVAL_CHUNK_SIZE", "1500")
	t.Setenv("OPSDOCS_EMBEDDINGS_API_KEY", "sk-test")
	t.Setenv("OPSDOCS_SERVER_HTTP_PORT", "7000")

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, 1500, cfg.Retrieval.ChunkSize)
	assert.Equal(t, "sk-test", cfg.Embeddings.APIKey.Value())
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestLoadWithFile_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("explicit missing file", func(t *testing.T) {
		_, err := LoadWithFile(filepath.Join(dir, "missing.yaml"))
		require.Error(t, err)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := filepath.Join(dir, "cfg.ini")
		writeFile(t, path, "a=b")
		_, err := LoadWithFile(path)
		assert.ErrorIs(t, err, ragerr.ErrConfiguration)
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		writeFile(t, path, "retrieval:\n  chunk_size: 100\n  chunk_overlap: 100\n")
		_, err := LoadWithFile(path)
		assert.ErrorIs(t, err, ragerr.ErrConfiguration)
		assert.Contains(t, err.Error(), "chunk_overlap")
	})

	t.Run("world writable", func(t *testing.T) {
		path := filepath.Join(dir, "open.yaml")
		writeFile(t, path, "server:\n  http_port: 9000\n")
		require.NoError(t, os.Chmod(path, 0o666))
		_, err := LoadWithFile(path)
		assert.ErrorIs(t, err, ragerr.ErrConfiguration)
	})
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "retrieval.chunk_size", envKey("OPSDOCS_RETRIEVAL_CHUNK_SIZE"))
	assert.Equal(t, "server.http_port", envKey("OPSDOCS_SERVER_HTTP_PORT"))
	assert.Equal(t, "debug", envKey("OPSDOCS_DEBUG"))
}
