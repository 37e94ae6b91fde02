package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/opsdocs/internal/logging"
	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

// GuardConfig configures Guard.
type GuardConfig struct {
	Name      string
	Model     string
	RateLimit float64 // requests per second, 0 = unlimited
	Burst     int
	Logger    *logging.Logger
	Metrics   *Metrics
}

// guarded enforces the Embedder contract on top of any provider: one
// vector per text, a single dimension, and every failure wrapped in
// ragerr.ErrEmbeddingService. It never substitutes vectors.
type guarded struct {
	inner   Provider
	name    string
	model   string
	limiter *rate.Limiter
	metrics *Metrics
	logger  *logging.Logger

	mu  sync.Mutex
	dim int
}

var _ Provider = (*guarded)(nil)

// Guard wraps p with rate limiting, metrics and contract checks.
func Guard(p Provider, cfg GuardConfig) Provider {
	g := &guarded{
		inner:   p,
		name:    cfg.Name,
		model:   cfg.Model,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		dim:     p.Dimension(),
	}
	if g.logger == nil {
		g.logger = logging.NewNop()
	}
	if g.metrics == nil {
		g.metrics = NewMetrics(g.logger.Underlying())
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return g
}

func (g *guarded) EmbedDocuments(ctx context.Context, texts []string) (vecs [][]float32, err error) {
	start := time.Now()
	defer func() {
		g.metrics.RecordGeneration(ctx, g.model, "embed_documents", time.Since(start), len(texts), err)
	}()

	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts to embed", ragerr.ErrEmptyInput)
	}
	if err := g.wait(ctx); err != nil {
		return nil, g.fail(err)
	}

	vecs, err = g.inner.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, g.fail(err)
	}
	if len(vecs) != len(texts) {
		return nil, g.fail(fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), len(texts)))
	}
	for i, v := range vecs {
		if err := g.checkDim(v); err != nil {
			return nil, g.fail(fmt.Errorf("vector %d: %w", i, err))
		}
	}
	return vecs, nil
}

func (g *guarded) EmbedQuery(ctx context.Context, text string) (vec []float32, err error) {
	start := time.Now()
	defer func() {
		g.metrics.RecordGeneration(ctx, g.model, "embed_query", time.Since(start), 1, err)
	}()

	if text == "" {
		return nil, fmt.Errorf("%w: query text is empty", ragerr.ErrEmptyInput)
	}
	if err := g.wait(ctx); err != nil {
		return nil, g.fail(err)
	}

	vec, err = g.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, g.fail(err)
	}
	if err := g.checkDim(vec); err != nil {
		return nil, g.fail(err)
	}
	return vec, nil
}

// Dimension returns the provider's declared dimension, or the observed one.
func (g *guarded) Dimension() int {
	if d := g.inner.Dimension(); d > 0 {
		return d
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dim
}

func (g *guarded) Close() error {
	return g.inner.Close()
}

func (g *guarded) wait(ctx context.Context) error {
	if g.limiter == nil {
		return ctx.Err()
	}
	return g.limiter.Wait(ctx)
}

func (g *guarded) checkDim(v []float32) error {
	if len(v) == 0 {
		return errors.New("provider returned an empty vector")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dim == 0 {
		g.dim = len(v)
		return nil
	}
	if len(v) != g.dim {
		return fmt.Errorf("provider returned dimension %d, expected %d", len(v), g.dim)
	}
	return nil
}

func (g *guarded) fail(err error) error {
	g.logger.Warn(context.Background(), "embedding call failed",
		zap.String("provider", g.name),
		zap.String("model", g.model),
		zap.Error(err),
	)
	if errors.Is(err, ragerr.ErrEmbeddingService) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ragerr.ErrEmbeddingService, g.name, err)
}
