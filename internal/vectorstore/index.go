package vectorstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsdocs/internal/document"
	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

const (
	collectionName = "opsdocs"
	idPrefix       = "chunk-"
	// addConcurrency is the goroutine count chromem uses per AddDocuments.
	addConcurrency = 4
)

var tracer = otel.Tracer("opsdocs.vectorstore")

// errNoEmbedding guards against chromem embedding text on its own. Every
// document and query reaching the collection carries a vector.
var errNoEmbedding = errors.New("vectorstore: index does not embed text; supply vectors")

func noEmbed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

// Index is an appendable collection of embedded chunks.
//
// Index is safe for concurrent use; Append calls are serialized and
// searches see either the state before or after an append.
type Index struct {
	db     *chromem.DB
	col    *chromem.Collection
	logger *zap.Logger

	mu    sync.RWMutex
	dim   int
	count int
}

// NewIndex returns an empty index. Its dimension is fixed by the first Append.
func NewIndex(logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection(collectionName, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("%w: creating collection: %v", ragerr.ErrIO, err)
	}
	return &Index{db: db, col: col, logger: logger}, nil
}

// Build creates an index from a first batch. An empty batch fails with
// ragerr.ErrEmptyInput.
func Build(ctx context.Context, chunks []document.Chunk, vectors [][]float32, logger *zap.Logger) (*Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks to index", ragerr.ErrEmptyInput)
	}
	ix, err := NewIndex(logger)
	if err != nil {
		return nil, err
	}
	if err := ix.Append(ctx, chunks, vectors); err != nil {
		return nil, err
	}
	return ix, nil
}

// Count returns the number of chunks in the index.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.count
}

// Dimension returns the vector dimension, 0 for an empty index.
func (ix *Index) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

// Append adds a batch after the existing chunks. Existing chunks are never
// replaced: ordinals continue from Count().
func (ix *Index) Append(ctx context.Context, chunks []document.Chunk, vectors [][]float32) (err error) {
	ctx, span := tracer.Start(ctx, "Index.Append")
	defer span.End()
	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))
	start := time.Now()
	defer func() {
		observe("append", start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks but %d vectors", ragerr.ErrConfiguration, len(chunks), len(vectors))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	dim := ix.dim
	if dim == 0 {
		dim = len(vectors[0])
	}
	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		v := vectors[i]
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, index has %d", ErrDimensionMismatch, i, len(v), dim)
		}
		if isZero(v) {
			return fmt.Errorf("%w: vector %d has zero norm", ragerr.ErrConfiguration, i)
		}
		md := maps.Clone(c.Metadata)
		if md == nil {
			md = map[string]string{}
		}
		md[document.MetaChunkIndex] = strconv.Itoa(c.Index)
		docs[i] = chromem.Document{
			ID:        chunkID(ix.count + i),
			Content:   c.Content,
			Metadata:  md,
			Embedding: slices.Clone(v),
		}
	}

	if err := ix.col.AddDocuments(ctx, docs, addConcurrency); err != nil {
		// roll back whatever part of the batch landed so ordinals stay dense
		ids := make([]string, len(docs))
		for i := range docs {
			ids[i] = docs[i].ID
		}
		if derr := ix.col.Delete(context.WithoutCancel(ctx), nil, nil, ids...); derr != nil {
			ix.logger.Error("rollback of failed append", zap.Error(derr))
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: adding %d chunks: %w", ragerr.ErrIO, len(docs), ctxErr)
		}
		return fmt.Errorf("%w: adding %d chunks: %v", ragerr.ErrIO, len(docs), err)
	}

	ix.dim = dim
	ix.count += len(docs)
	indexChunks.Set(float64(ix.count))

	ix.logger.Debug("chunks appended",
		zap.Int("added", len(docs)),
		zap.Int("total", ix.count),
		zap.Int("dimension", dim),
	)
	return nil
}

// Search returns up to k chunks most similar to vec, best first. Ties are
// broken by insertion order so results are reproducible across reloads.
func (ix *Index) Search(ctx context.Context, vec []float32, k int) (results []SearchResult, err error) {
	ctx, span := tracer.Start(ctx, "Index.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))
	start := time.Now()
	defer func() {
		observe("search", start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", ragerr.ErrConfiguration, k)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.count == 0 {
		return nil, nil
	}
	if len(vec) != ix.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", ErrDimensionMismatch, len(vec), ix.dim)
	}
	if isZero(vec) {
		return nil, fmt.Errorf("%w: query vector has zero norm", ragerr.ErrConfiguration)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: search: %w", ragerr.ErrIO, err)
	}

	n := min(k, ix.count)
	raw, err := ix.col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", ragerr.ErrIO, err)
	}

	results = make([]SearchResult, 0, len(raw))
	for _, r := range raw {
		ord, err := ordinal(r.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ragerr.ErrCorruptIndex, err)
		}
		results = append(results, SearchResult{
			Chunk:   toChunk(r.Content, r.Metadata),
			Score:   ScoreFromCosine(r.Similarity),
			Ordinal: ord,
		})
	}
	slices.SortStableFunc(results, func(a, b SearchResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Ordinal, b.Ordinal)
	})

	span.SetAttributes(attribute.Int("result_count", len(results)))
	return results, nil
}

// Chunk returns the chunk stored at ordinal.
func (ix *Index) Chunk(ctx context.Context, ordinal int) (document.Chunk, error) {
	doc, err := ix.col.GetByID(ctx, chunkID(ordinal))
	if err != nil {
		return document.Chunk{}, fmt.Errorf("%w: chunk %d: %v", ragerr.ErrNotFound, ordinal, err)
	}
	return toChunk(doc.Content, doc.Metadata), nil
}

// Each calls fn for every chunk in insertion order, stopping at the first error.
func (ix *Index) Each(ctx context.Context, fn func(ordinal int, c document.Chunk) error) error {
	for i := 0; i < ix.Count(); i++ {
		c, err := ix.Chunk(ctx, i)
		if err != nil {
			return err
		}
		if err := fn(i, c); err != nil {
			return err
		}
	}
	return nil
}

// Chunks returns every chunk in insertion order.
func (ix *Index) Chunks(ctx context.Context) ([]document.Chunk, error) {
	out := make([]document.Chunk, 0, ix.Count())
	err := ix.Each(ctx, func(_ int, c document.Chunk) error {
		out = append(out, c)
		return nil
	})
	return out, err
}

func toChunk(content string, md map[string]string) document.Chunk {
	md = maps.Clone(md)
	idx, _ := strconv.Atoi(md[document.MetaChunkIndex])
	return document.Chunk{Content: content, Metadata: md, Index: idx}
}

func chunkID(ordinal int) string {
	return fmt.Sprintf("%s%08d", idPrefix, ordinal)
}

func ordinal(id string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(id, idPrefix))
	if err != nil || !strings.HasPrefix(id, idPrefix) {
		return 0, fmt.Errorf("unexpected chunk id %q", id)
	}
	return n, nil
}

func isZero(v []float32) bool {
	var s float64
	for _, f := range v {
		s += float64(f) * float64(f)
	}
	return s == 0 || math.IsNaN(s)
}
