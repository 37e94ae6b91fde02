package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	ollama "github.com/ollama/ollama/api"

	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

// OllamaConfig configures a local Ollama server.
type OllamaConfig struct {
	BaseURL   string // default http://localhost:11434
	Model     string // e.g. nomic-embed-text
	Dimension int
	Timeout   time.Duration
}

// OllamaProvider embeds via the Ollama /api/embed endpoint.
type OllamaProvider struct {
	client *ollama.Client
	model  string
	dim    int
}

var _ Provider = (*OllamaProvider)(nil)

// NewOllamaProvider builds an Ollama client for cfg.
func NewOllamaProvider(cfg OllamaConfig) (*OllamaProvider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: ollama model required", ragerr.ErrConfiguration)
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ollama base URL: %v", ragerr.ErrConfiguration, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OllamaProvider{
		client: ollama.NewClient(u, &http.Client{Timeout: cfg.Timeout}),
		model:  cfg.Model,
		dim:    cfg.Dimension,
	}, nil
}

func (p *OllamaProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.Embed(ctx, &ollama.EmbedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	return resp.Embeddings, nil
}

func (p *OllamaProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embed(ctx, &ollama.EmbedRequest{Model: p.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings")
	}
	return resp.Embeddings[0], nil
}

func (p *OllamaProvider) Dimension() int { return p.dim }

func (p *OllamaProvider) Close() error { return nil }
