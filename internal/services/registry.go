package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsdocs/internal/config"
	"github.com/fyrsmithlabs/opsdocs/internal/embeddings"
	"github.com/fyrsmithlabs/opsdocs/internal/logging"
	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
	"github.com/fyrsmithlabs/opsdocs/internal/retriever"
	"github.com/fyrsmithlabs/opsdocs/internal/secrets"
)

// Registry provides access to the shared opsdocs services.
type Registry interface {
	Retriever() *retriever.Retriever
	Indexer() *Indexer
	Logger() *logging.Logger
	// Close releases the embedding provider.
	Close() error
}

// Options configures the registry with service instances.
type Options struct {
	Retriever *retriever.Retriever
	Indexer   *Indexer
	Provider  embeddings.Provider
	Logger    *logging.Logger
}

type registry struct {
	retriever *retriever.Retriever
	indexer   *Indexer
	provider  embeddings.Provider
	logger    *logging.Logger
}

// NewRegistry creates a registry from already constructed services.
func NewRegistry(opts Options) Registry {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &registry{
		retriever: opts.Retriever,
		indexer:   opts.Indexer,
		provider:  opts.Provider,
		logger:    opts.Logger,
	}
}

func (r *registry) Retriever() *retriever.Retriever { return r.retriever }
func (r *registry) Indexer() *Indexer               { return r.indexer }
func (r *registry) Logger() *logging.Logger         { return r.logger }

func (r *registry) Close() error {
	if r.provider == nil {
		return nil
	}
	return r.provider.Close()
}

// Open constructs every service from cfg and loads the index in
// cfg.Index.Dir. A missing index is not an error: the registry starts
// empty and queries fail with ragerr.ErrNotFound until something is
// ingested. A corrupt index is returned as an error.
func Open(ctx context.Context, cfg *config.Config, logger *logging.Logger) (Registry, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	provider, err := embeddings.NewProvider(embeddings.FromSettings(cfg.Embeddings), logger)
	if err != nil {
		return nil, err
	}

	ret, err := retriever.New(retriever.FromSettings(cfg), provider, logger)
	if err != nil {
		_ = provider.Close()
		return nil, err
	}

	var redactor *secrets.Redactor
	if cfg.Corpus.RedactSecrets {
		redactor, err = secrets.New(secrets.Config{AllowList: cfg.Corpus.RedactAllow})
		if err != nil {
			_ = provider.Close()
			return nil, fmt.Errorf("%w: corpus.redact_allow: %v", ragerr.ErrConfiguration, err)
		}
	}

	indexer, err := NewIndexer(ret, IndexerConfig{
		IndexDir:   cfg.Index.Dir,
		CorpusDir:  cfg.Corpus.Dir,
		Categories: cfg.Corpus.Categories,
		Ignore:     cfg.Corpus.Ignore,
		Redactor:   redactor,
	}, logger)
	if err != nil {
		_ = provider.Close()
		return nil, err
	}

	switch err := ret.Load(ctx, cfg.Index.Dir); {
	case err == nil:
		stats, _ := ret.Stats()
		logger.Info(ctx, "index ready",
			zap.String("dir", cfg.Index.Dir),
			zap.Int("chunks", stats.ChunkCount),
			zap.Int("documents", stats.DocumentCount),
		)
	case errors.Is(err, ragerr.ErrNotFound):
		logger.Warn(ctx, "no index found; run ingest first", zap.String("dir", cfg.Index.Dir))
	default:
		_ = provider.Close()
		return nil, fmt.Errorf("loading index from %s: %w", cfg.Index.Dir, err)
	}

	return NewRegistry(Options{
		Retriever: ret,
		Indexer:   indexer,
		Provider:  provider,
		Logger:    logger,
	}), nil
}
