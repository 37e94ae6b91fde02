package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsdocs/internal/config"
	"github.com/fyrsmithlabs/opsdocs/internal/logging"
	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

// Embedder maps text to dense vectors.
//
// EmbedDocuments returns exactly one vector per input text, in input order.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Provider is an Embedder with a known output dimension and a lifecycle.
type Provider interface {
	Embedder
	// Dimension returns the embedding dimension, or 0 when it is only known
	// after the first call.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// Config holds everything needed to construct a provider. It is built
// from config.EmbeddingsConfig; providers never read the environment.
type Config struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    config.Secret
	Dimension int
	CacheDir  string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

// FromSettings converts the user-facing embeddings section.
func FromSettings(s config.EmbeddingsConfig) Config {
	return Config{
		Provider:  s.Provider,
		Model:     s.Model,
		BaseURL:   s.BaseURL,
		APIKey:    s.APIKey,
		Dimension: s.Dimension,
		CacheDir:  s.CacheDir,
		Timeout:   s.Timeout.Duration(),
		RateLimit: s.RateLimit,
		Burst:     s.Burst,
	}
}

// NewProvider creates the configured provider wrapped with rate limiting,
// metrics and error normalization.
func NewProvider(cfg Config, logger *logging.Logger) (Provider, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var (
		p   Provider
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "hash":
		p, err = NewHashProvider(cfg.Dimension)
	case "tei":
		p, err = NewTEIProvider(TEIConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, APIKey: cfg.APIKey, Dimension: cfg.Dimension, Timeout: timeout})
	case "openai":
		p, err = NewOpenAIProvider(OpenAIConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, APIKey: cfg.APIKey, Dimension: cfg.Dimension, Timeout: timeout})
	case "openai-compatible":
		p, err = NewCompatibleProvider(CompatibleConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, APIKey: cfg.APIKey, Dimension: cfg.Dimension})
	case "ollama":
		p, err = NewOllamaProvider(OllamaConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, Dimension: cfg.Dimension, Timeout: timeout})
	case "fastembed":
		p, err = NewFastEmbedProvider(FastEmbedConfig{Model: cfg.Model, CacheDir: cfg.CacheDir})
	default:
		return nil, fmt.Errorf("%w: unknown embeddings provider %q", ragerr.ErrConfiguration, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info(context.Background(), "embedding provider ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimension", p.Dimension()),
	)
	return Guard(p, GuardConfig{
		Name:      strings.ToLower(cfg.Provider),
		Model:     cfg.Model,
		RateLimit: cfg.RateLimit,
		Burst:     cfg.Burst,
		Logger:    logger,
	}), nil
}
