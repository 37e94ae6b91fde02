package retriever

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/opsdocs/internal/chunker"
	"github.com/fyrsmithlabs/opsdocs/internal/document"
	"github.com/fyrsmithlabs/opsdocs/internal/logging"
	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
	"github.com/fyrsmithlabs/opsdocs/internal/vectorstore"
)

// Progress is reported after every committed batch.
type Progress struct {
	DocumentsDone  int `json:"documents_done"`
	DocumentsTotal int `json:"documents_total"`
	ChunksDone     int `json:"chunks_done"`
	ChunksTotal    int `json:"chunks_total"`
}

// IngestOptions overrides the configured chunking and batching for one
// call. Zero values keep the defaults; non-zero values are validated.
type IngestOptions struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	Concurrency  int
	// OverlapSet makes a zero ChunkOverlap explicit.
	OverlapSet bool
	Progress   func(Progress)
}

// IngestReport summarizes a completed ingestion.
type IngestReport struct {
	RunID       string        `json:"run_id"`
	IndexID     string        `json:"index_id"`
	Documents   int           `json:"documents"`
	Chunks      int           `json:"chunks"`
	Batches     int           `json:"batches"`
	IndexChunks int           `json:"index_chunks"`
	Duration    time.Duration `json:"duration"`
}

// IngestError reports a partially completed ingestion. The first
// DocumentsProcessed documents are fully indexed and usable; pass the
// remaining documents to Append to resume.
type IngestError struct {
	DocumentsProcessed int
	ChunksIndexed      int
	Err                error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest stopped after %d documents (%d chunks): %v",
		e.DocumentsProcessed, e.ChunksIndexed, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// Ingest builds a new index from docs and replaces the current one.
//
// Zero documents, or documents without any text, fail with
// ragerr.ErrEmptyCorpus. If embedding fails part way, the documents
// indexed so far replace the current index and an *IngestError is returned.
func (r *Retriever) Ingest(ctx context.Context, docs []document.Document, opts IngestOptions) (*IngestReport, error) {
	return r.ingest(ctx, docs, opts, true)
}

// Append adds docs to the current index, building one if none exists.
// Earlier chunks are never replaced.
func (r *Retriever) Append(ctx context.Context, docs []document.Document, opts IngestOptions) (*IngestReport, error) {
	return r.ingest(ctx, docs, opts, false)
}

type ingestRun struct {
	r      *Retriever
	docs   []document.Document
	chunks []document.Chunk
	// docEnd[i] is the number of chunks belonging to documents 0..i.
	docEnd   []int
	progress func(Progress)

	target    *vectorstore.Index
	committed int
	pending   [][]float32
	embedded  int
	batches   int
}

func (r *Retriever) ingest(ctx context.Context, docs []document.Document, opts IngestOptions, fresh bool) (*IngestReport, error) {
	size, overlap, batch, concurrency := r.resolve(opts)
	if err := validateChunking(size, overlap, batch); err != nil {
		return nil, err
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("%w: concurrency must be >= 1, got %d", ragerr.ErrConfiguration, concurrency)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no documents to ingest", ragerr.ErrEmptyCorpus)
	}
	for i, d := range docs {
		if d.Source() == "" {
			return nil, fmt.Errorf("%w: document %d has no source", ragerr.ErrConfiguration, i)
		}
	}

	chunks, err := chunker.Split(docs, size, overlap)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %d documents contain no text", ragerr.ErrEmptyCorpus, len(docs))
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	runID := uuid.NewString()
	ctx = logging.WithIngestRun(ctx, runID)
	if r.cfg.IngestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.IngestTimeout)
		defer cancel()
	}

	run := &ingestRun{
		r:        r,
		docs:     docs,
		chunks:   chunks,
		docEnd:   make([]int, len(docs)),
		progress: opts.Progress,
	}
	for _, c := range chunks {
		run.docEnd[c.Doc]++
	}
	for i := 1; i < len(run.docEnd); i++ {
		run.docEnd[i] += run.docEnd[i-1]
	}

	r.mu.RLock()
	prevIndex, prevMeta := r.index, r.meta.Clone()
	r.mu.RUnlock()
	if !fresh {
		run.target = prevIndex
	}

	start := time.Now()
	r.logger.Info(ctx, "ingest started",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", size),
		zap.Int("chunk_overlap", overlap),
		zap.Int("batch_size", batch),
		zap.Int("concurrency", concurrency),
		zap.Bool("append", !fresh),
	)

	runErr := run.execute(ctx, batch, concurrency)

	docsDone := run.docsDone(run.committed)
	if run.committed > 0 {
		meta := prevMeta
		if fresh || meta == nil {
			now := time.Now().UTC()
			meta = &vectorstore.Metadata{
				IndexID:   uuid.NewString(),
				CreatedAt: now,
			}
		}
		meta.UpdatedAt = time.Now().UTC()
		meta.DocumentCount += docsDone
		meta.BatchSize = batch
		meta.ChunkSize = size
		meta.ChunkOverlap = overlap
		meta.EmbeddingProvider = r.cfg.EmbeddingProvider
		meta.EmbeddingModel = r.cfg.EmbeddingModel
		sources, categories := sourcesOf(docs[:docsDone])
		meta.AddSources(sources...)
		meta.AddCategories(categories...)
		meta.ChunkCount = run.target.Count()
		meta.Dimension = run.target.Dimension()

		r.mu.Lock()
		r.index, r.meta = run.target, meta
		r.mu.Unlock()
	}

	if runErr != nil {
		r.logger.Error(ctx, "ingest failed",
			zap.Int("documents_processed", docsDone),
			zap.Int("chunks_indexed", run.committed),
			zap.Error(runErr),
		)
		return nil, &IngestError{
			DocumentsProcessed: docsDone,
			ChunksIndexed:      run.committed,
			Err:                runErr,
		}
	}

	r.mu.RLock()
	report := &IngestReport{
		RunID:       runID,
		IndexID:     r.meta.IndexID,
		Documents:   len(docs),
		Chunks:      len(chunks),
		Batches:     run.batches,
		IndexChunks: r.index.Count(),
		Duration:    time.Since(start),
	}
	r.mu.RUnlock()

	r.logger.Info(ctx, "ingest completed",
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.Chunks),
		zap.Int("index_chunks", report.IndexChunks),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (r *Retriever) resolve(opts IngestOptions) (size, overlap, batch, concurrency int) {
	size, overlap, batch, concurrency = r.cfg.ChunkSize, r.cfg.ChunkOverlap, r.cfg.BatchSize, r.cfg.Concurrency
	if opts.ChunkSize != 0 {
		size = opts.ChunkSize
	}
	if opts.ChunkOverlap != 0 || opts.OverlapSet {
		overlap = opts.ChunkOverlap
	}
	if opts.BatchSize != 0 {
		batch = opts.BatchSize
	}
	if opts.Concurrency != 0 {
		concurrency = opts.Concurrency
	}
	return size, overlap, batch, concurrency
}

// execute embeds batches, up to concurrency at a time, and commits them in
// order. It stops at the first failed batch; batches before it are kept.
func (run *ingestRun) execute(ctx context.Context, batch, concurrency int) error {
	total := (len(run.chunks) + batch - 1) / batch
	for first := 0; first < total; first += concurrency {
		last := min(first+concurrency, total)
		vecs := make([][][]float32, last-first)
		errs := make([]error, last-first)

		var g errgroup.Group
		g.SetLimit(concurrency)
		for b := first; b < last; b++ {
			g.Go(func() error {
				vecs[b-first], errs[b-first] = run.embedBatch(ctx, b, batch)
				return nil
			})
		}
		_ = g.Wait()

		for i := range vecs {
			if errs[i] != nil {
				return errs[i]
			}
			run.pending = append(run.pending, vecs[i]...)
			run.embedded += len(vecs[i])
			run.batches++
			if err := run.commit(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (run *ingestRun) embedBatch(ctx context.Context, b, batch int) ([][]float32, error) {
	lo := b * batch
	hi := min(lo+batch, len(run.chunks))
	texts := make([]string, hi-lo)
	for i := range texts {
		texts[i] = run.chunks[lo+i].Content
	}
	vecs, err := run.r.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, embeddingError(fmt.Errorf("batch %d: %w", b, err))
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: batch %d: got %d vectors for %d chunks",
			ragerr.ErrEmbeddingService, b, len(vecs), len(texts))
	}
	return vecs, nil
}

// commit indexes the embedded chunks of every document whose chunks are
// all embedded. Chunks of a partially embedded document wait for the next
// batch so the index always holds whole documents.
func (run *ingestRun) commit(ctx context.Context) error {
	done := run.docsDone(run.embedded)
	boundary := 0
	if done > 0 {
		boundary = run.docEnd[done-1]
	}
	n := boundary - run.committed
	if n <= 0 {
		return nil
	}

	chunks := run.chunks[run.committed:boundary]
	vecs := run.pending[:n]
	if run.target == nil {
		ix, err := vectorstore.Build(ctx, chunks, vecs, run.r.logger.Underlying())
		if err != nil {
			return err
		}
		run.target = ix
	} else if err := run.target.Append(ctx, chunks, vecs); err != nil {
		return err
	}
	run.committed = boundary
	run.pending = run.pending[n:]

	p := Progress{
		DocumentsDone:  done,
		DocumentsTotal: len(run.docs),
		ChunksDone:     run.committed,
		ChunksTotal:    len(run.chunks),
	}
	run.r.logger.Info(ctx, "ingest progress",
		zap.Int("documents_done", p.DocumentsDone),
		zap.Int("documents_total", p.DocumentsTotal),
		zap.Int("chunks_done", p.ChunksDone),
		zap.Int("chunks_total", p.ChunksTotal),
	)
	if run.progress != nil {
		run.progress(p)
	}
	return nil
}

// docsDone counts the leading documents whose chunks all fall below n.
func (run *ingestRun) docsDone(n int) int {
	return sort.Search(len(run.docEnd), func(i int) bool { return run.docEnd[i] > n })
}
