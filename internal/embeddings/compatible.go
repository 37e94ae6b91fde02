package embeddings

import (
	"context"
	"fmt"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	lcopenai "github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/opsdocs/internal/config"
	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

// CompatibleConfig configures an OpenAI-compatible endpoint (vLLM,
// LocalAI, LM Studio, Azure proxies) reached through langchaingo.
type CompatibleConfig struct {
	BaseURL   string
	Model     string
	APIKey    config.Secret
	Dimension int
	BatchSize int
}

// CompatibleProvider embeds through langchaingo's OpenAI client.
type CompatibleProvider struct {
	embedder *lcembeddings.EmbedderImpl
	dim      int
}

var _ Provider = (*CompatibleProvider)(nil)

// NewCompatibleProvider builds a langchaingo embedder for cfg.
func NewCompatibleProvider(cfg CompatibleConfig) (*CompatibleProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: openai-compatible base_url required", ragerr.ErrConfiguration)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: openai-compatible model required", ragerr.ErrConfiguration)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}

	// langchaingo refuses an empty token even for servers that ignore it.
	token := cfg.APIKey.Value()
	if token == "" {
		token = "unused"
	}

	llm, err := lcopenai.New(
		lcopenai.WithBaseURL(cfg.BaseURL),
		lcopenai.WithModel(cfg.Model),
		lcopenai.WithToken(token),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: creating openai-compatible client: %v", ragerr.ErrConfiguration, err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm,
		lcembeddings.WithBatchSize(cfg.BatchSize),
		lcembeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: creating embedder: %v", ragerr.ErrConfiguration, err)
	}
	return &CompatibleProvider{embedder: embedder, dim: cfg.Dimension}, nil
}

func (p *CompatibleProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embedder.EmbedDocuments(ctx, texts)
}

func (p *CompatibleProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.embedder.EmbedQuery(ctx, text)
}

func (p *CompatibleProvider) Dimension() int { return p.dim }

func (p *CompatibleProvider) Close() error { return nil }
