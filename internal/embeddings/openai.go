package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/fyrsmithlabs/opsdocs/internal/config"
	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

// openAIMaxInputs is the per-request input limit of the embeddings endpoint.
const openAIMaxInputs = 2048

// OpenAIConfig configures the hosted OpenAI embeddings provider.
type OpenAIConfig struct {
	BaseURL   string // empty for api.openai.com
	Model     string
	APIKey    config.Secret
	Dimension int // 0 = model default; text-embedding-3-* accept a reduced size
	Timeout   time.Duration
}

// OpenAIProvider uses the official OpenAI Go SDK.
type OpenAIProvider struct {
	client openai.Client
	model  string
	dim    int
	// reduced is the explicitly requested output size, sent as dimensions.
	reduced int
}

var _ Provider = (*OpenAIProvider)(nil)

var openAIDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// NewOpenAIProvider validates cfg and builds the client.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("%w: openai api_key required", ragerr.ErrConfiguration)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey.Value()),
		option.WithMaxRetries(2),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	dim := cfg.Dimension
	if dim == 0 {
		dim = openAIDimensions[cfg.Model]
	}
	return &OpenAIProvider{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		dim:     dim,
		reduced: cfg.Dimension,
	}, nil
}

func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += openAIMaxInputs {
		end := min(start+openAIMaxInputs, len(texts))
		vecs, err := p.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *OpenAIProvider) Dimension() int { return p.dim }

func (p *OpenAIProvider) Close() error { return nil }

func (p *OpenAIProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(p.model),
	}
	if p.reduced > 0 {
		params.Dimensions = openai.Int(int64(p.reduced))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	// Data carries an index; do not rely on response order.
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("openai returned out-of-range index %d", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}
	return out, nil
}
