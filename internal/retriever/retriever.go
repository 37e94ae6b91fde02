// Package retriever orchestrates chunking, embedding, indexing and search.
//
// A Retriever is constructed once per process and shared. Queries run
// concurrently; ingestion, loading and saving are serialized. A fresh
// Ingest builds a new index beside the current one and swaps it in when
// done, so queries keep answering from the previous index meanwhile.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsdocs/internal/document"
	"github.com/fyrsmithlabs/opsdocs/internal/embeddings"
	"github.com/fyrsmithlabs/opsdocs/internal/logging"
	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
	"github.com/fyrsmithlabs/opsdocs/internal/vectorstore"
)

// Result is a retrieved chunk with its score in [0, 1].
type Result = vectorstore.SearchResult

// QueryOptions overrides the configured query defaults. Zero values keep
// the defaults; ScoreThreshold is a pointer so 0.0 can be requested.
type QueryOptions struct {
	K              int
	ScoreThreshold *float64
	Timeout        time.Duration
}

// Threshold returns a pointer for QueryOptions.ScoreThreshold.
func Threshold(v float64) *float64 { return &v }

// Retriever answers similarity queries over an ingested corpus.
type Retriever struct {
	cfg      Config
	embedder embeddings.Embedder
	logger   *logging.Logger

	// writeMu serializes Ingest, Append, Load and Save.
	writeMu sync.Mutex

	mu    sync.RWMutex
	index *vectorstore.Index
	meta  *vectorstore.Metadata
}

// New validates cfg and returns a Retriever with no index.
func New(cfg Config, embedder embeddings.Embedder, logger *logging.Logger) (*Retriever, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ragerr.ErrConfiguration)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Retriever{
		cfg:      cfg,
		embedder: embedder,
		logger:   logger.Named("retriever"),
	}, nil
}

// Config returns the effective configuration.
func (r *Retriever) Config() Config { return r.cfg }

// HasIndex reports whether an index is loaded or built.
func (r *Retriever) HasIndex() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index != nil
}

// Stats returns a copy of the current index metadata, or an error wrapping
// ragerr.ErrNotFound when there is no index.
func (r *Retriever) Stats() (*vectorstore.Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.index == nil {
		return nil, fmt.Errorf("%w: no index has been built or loaded", ragerr.ErrNotFound)
	}
	m := r.meta.Clone()
	m.ChunkCount = r.index.Count()
	m.Dimension = r.index.Dimension()
	return m, nil
}

// Query embeds text and returns up to k chunks scoring at least the
// threshold, best first. No match is an empty slice, not an error.
//
// Without an index Query fails with ragerr.ErrNotFound. Embedding failures
// wrap ragerr.ErrEmbeddingService and search failures ragerr.ErrIO; the
// timeout bounds both.
func (r *Retriever) Query(ctx context.Context, text string, opts QueryOptions) ([]Result, error) {
	k := opts.K
	if k == 0 {
		k = r.cfg.K
	}
	threshold := r.cfg.ScoreThreshold
	if opts.ScoreThreshold != nil {
		threshold = *opts.ScoreThreshold
	}
	if err := validateQuery(k, threshold); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: query text is empty", ragerr.ErrConfiguration)
	}

	r.mu.RLock()
	ix := r.index
	r.mu.RUnlock()
	if ix == nil {
		return nil, fmt.Errorf("%w: no index has been built or loaded", ragerr.ErrNotFound)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = r.cfg.QueryTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	vec, err := r.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, embeddingError(err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", ragerr.ErrEmbeddingService)
	}

	candidates, err := ix.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		if float64(c.Score) >= threshold {
			results = append(results, c)
		}
	}

	r.logger.Debug(ctx, "query served",
		zap.Int("k", k),
		zap.Float64("score_threshold", threshold),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)),
	)
	return results, nil
}

// Save persists the current index and its metadata into dir.
func (r *Retriever) Save(ctx context.Context, dir string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.RLock()
	ix, meta := r.index, r.meta.Clone()
	r.mu.RUnlock()
	if ix == nil {
		return fmt.Errorf("%w: no index to save", ragerr.ErrNotFound)
	}

	meta.UpdatedAt = time.Now().UTC()
	err := vectorstore.Save(ctx, ix, meta, dir, vectorstore.SaveOptions{
		Compress:      r.cfg.Compress,
		EncryptionKey: r.cfg.EncryptionKey.Value(),
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.index == ix {
		r.meta.UpdatedAt = meta.UpdatedAt
	}
	r.mu.Unlock()
	return nil
}

// Load replaces the current index with the one persisted in dir.
//
// A missing index wraps ragerr.ErrNotFound. An unreadable index, or one
// built with a different embedding dimension, wraps ragerr.ErrCorruptIndex
// and leaves the current index untouched. Corrupt indexes are never
// repaired; rebuild with Ingest.
func (r *Retriever) Load(ctx context.Context, dir string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	dim := 0
	if p, ok := r.embedder.(interface{ Dimension() int }); ok {
		dim = p.Dimension()
	}
	ix, meta, err := vectorstore.Load(ctx, dir, vectorstore.LoadOptions{
		EncryptionKey: r.cfg.EncryptionKey.Value(),
		Dimension:     dim,
		Logger:        r.logger.Underlying(),
	})
	if err != nil {
		return err
	}

	if meta.EmbeddingModel != "" && r.cfg.EmbeddingModel != "" && meta.EmbeddingModel != r.cfg.EmbeddingModel {
		r.logger.Warn(ctx, "index was built with a different embedding model",
			zap.String("index_model", meta.EmbeddingModel),
			zap.String("configured_model", r.cfg.EmbeddingModel),
		)
	}

	r.mu.Lock()
	r.index, r.meta = ix, meta
	r.mu.Unlock()
	return nil
}

// embeddingError makes sure err carries ragerr.ErrEmbeddingService.
func embeddingError(err error) error {
	if errors.Is(err, ragerr.ErrEmbeddingService) {
		return err
	}
	return fmt.Errorf("%w: %w", ragerr.ErrEmbeddingService, err)
}

func sourcesOf(docs []document.Document) (sources, categories []string) {
	for _, d := range docs {
		sources = append(sources, d.Source())
		if c := d.Category(); c != "" {
			categories = append(categories, c)
		}
	}
	return sources, categories
}
