//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"

	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

// FastEmbedConfig configures local ONNX embedding.
type FastEmbedConfig struct {
	Model     string // default BAAI/bge-small-en-v1.5
	CacheDir  string // default ./local_cache
	MaxLength int    // default 512
	BatchSize int    // default 256
}

// FastEmbedProvider runs a BGE/MiniLM model in-process.
type FastEmbedProvider struct {
	mu        sync.Mutex
	model     *fastembed.FlagEmbedding
	dimension int
	batchSize int
}

var _ Provider = (*FastEmbedProvider)(nil)

var fastEmbedModels = map[string]struct {
	model fastembed.EmbeddingModel
	dim   int
}{
	"BAAI/bge-small-en-v1.5":                 {fastembed.BGESmallENV15, 384},
	"BAAI/bge-small-en":                      {fastembed.BGESmallEN, 384},
	"BAAI/bge-base-en-v1.5":                  {fastembed.BGEBaseENV15, 768},
	"BAAI/bge-base-en":                       {fastembed.BGEBaseEN, 768},
	"sentence-transformers/all-MiniLM-L6-v2": {fastembed.AllMiniLML6V2, 384},
}

// NewFastEmbedProvider loads (downloading on first use) the ONNX model.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	if cfg.Model == "" {
		cfg.Model = "BAAI/bge-small-en-v1.5"
	}
	spec, ok := fastEmbedModels[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported fastembed model %q", ragerr.ErrConfiguration, cfg.Model)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(".", "local_cache")
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = 512
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 256
	}

	showProgress := false
	model, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                spec.model,
		CacheDir:             cfg.CacheDir,
		MaxLength:            cfg.MaxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed: %w", err)
	}
	return &FastEmbedProvider{model: model, dimension: spec.dim, batchSize: cfg.BatchSize}, nil
}

// EmbedDocuments uses the "passage: " prefix expected by BGE models.
func (p *FastEmbedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil, fmt.Errorf("fastembed provider closed")
	}
	return p.model.PassageEmbed(texts, p.batchSize)
}

// EmbedQuery uses the "query: " prefix.
func (p *FastEmbedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil, fmt.Errorf("fastembed provider closed")
	}
	return p.model.QueryEmbed(text)
}

func (p *FastEmbedProvider) Dimension() int { return p.dimension }

func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil
	}
	err := p.model.Destroy()
	p.model = nil
	return err
}
