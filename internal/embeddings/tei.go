package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/opsdocs/internal/config"
	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

// TEIConfig configures a HuggingFace Text Embeddings Inference client.
type TEIConfig struct {
	BaseURL   string
	Model     string
	APIKey    config.Secret
	Dimension int
	Timeout   time.Duration
	// MaxBatch caps texts per request; TEI rejects batches above its
	// --max-client-batch-size (32 by default).
	MaxBatch int
}

// TEIProvider calls the TEI /embed endpoint.
type TEIProvider struct {
	cfg    TEIConfig
	client *http.Client
}

var _ Provider = (*TEIProvider)(nil)

type teiRequest struct {
	Inputs   interface{} `json:"inputs"`
	Truncate bool        `json:"truncate"`
}

// NewTEIProvider validates cfg and returns a provider.
func NewTEIProvider(cfg TEIConfig) (*TEIProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: tei base URL required", ragerr.ErrConfiguration)
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 32
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &TEIProvider{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (p *TEIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.cfg.MaxBatch {
		end := min(start+p.cfg.MaxBatch, len(texts))
		vecs, err := p.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (p *TEIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("tei returned %d vectors for one query", len(vecs))
	}
	return vecs[0], nil
}

func (p *TEIProvider) Dimension() int { return p.cfg.Dimension }

func (p *TEIProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *TEIProvider) embed(ctx context.Context, inputs interface{}) ([][]float32, error) {
	body, err := json.Marshal(teiRequest{Inputs: inputs, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey.IsSet() {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey.Value())
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tei request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tei status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decoding tei response: %w", err)
	}
	return vectors, nil
}
