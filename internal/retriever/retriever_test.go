package retriever_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/opsdocs/internal/document"
	"github.com/fyrsmithlabs/opsdocs/internal/logging"
	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
	"github.com/fyrsmithlabs/opsdocs/internal/retriever"
)

func newRetriever(t *testing.T, e *conceptEmbedder, mutate ...func(*retriever.Config)) *retriever.Retriever {
	t.Helper()
	cfg := retriever.DefaultConfig()
	cfg.ChunkOverlap = 0
	for _, m := range mutate {
		m(&cfg)
	}
	r, err := retriever.New(cfg, e, logging.NewNop())
	require.NoError(t, err)
	return r
}

func cloudDocs() []document.Document {
	return []document.Document{
		document.New("AWS Lambda lets you run code without provisioning servers", "lambda.txt"),
		document.New("Amazon S3 is an object storage service", "s3.txt"),
	}
}

func TestQuery_LambdaRankedFirst(t *testing.T) {
	ctx := context.Background()
	r := newRetriever(t, &conceptEmbedder{})

	report, err := r.Ingest(ctx, cloudDocs(), retriever.IngestOptions{ChunkSize: 1000, OverlapSet: true})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 2, report.Chunks)

	results, err := r.Query(ctx, "serverless compute", retriever.QueryOptions{K: 2, ScoreThreshold: retriever.Threshold(0)})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "lambda.txt", results[0].Chunk.Source())
	assert.Equal(t, "s3.txt", results[1].Chunk.Source())
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestQuery_StrictThresholdReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	r := newRetriever(t, &conceptEmbedder{})
	_, err := r.Ingest(ctx, cloudDocs(), retriever.IngestOptions{})
	require.NoError(t, err)

	results, err := r.Query(ctx, "vpc subnet routing", retriever.QueryOptions{ScoreThreshold: retriever.Threshold(1.0)})
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestQuery_DefaultThresholdFilters(t *testing.T) {
	ctx := context.Background()
	r := newRetriever(t, &conceptEmbedder{})
	_, err := r.Ingest(ctx, cloudDocs(), retriever.IngestOptions{})
	require.NoError(t, err)

	// default threshold 0.7 keeps the lambda chunk only
	results, err := r.Query(ctx, "serverless compute", retriever.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "lambda.txt", results[0].Chunk.Source())
	for _, res := range results {
		assert.GreaterOrEqual(t, res.Score, float32(0.7))
	}
}

func TestIngest_EmptyCorpus(t *testing.T) {
	ctx := context.Background()
	r := newRetriever(t, &conceptEmbedder{})

	_, err := r.Ingest(ctx, nil, retriever.IngestOptions{})
	assert.ErrorIs(t, err, ragerr.ErrEmptyCorpus)

	_, err = r.Ingest(ctx, []document.Document{document.New("", "empty.txt")}, retriever.IngestOptions{})
	assert.ErrorIs(t, err, ragerr.ErrEmptyCorpus)
	assert.False(t, r.HasIndex())
}

func TestIngest_InvalidParameters(t *testing.T) {
	ctx := context.Background()
	e := &conceptEmbedder{}
	r := newRetriever(t, e)

	tests := []struct {
		name string
		opts retriever.IngestOptions
		docs []document.Document
	}{
		{"overlap equals size", retriever.IngestOptions{ChunkSize: 10, ChunkOverlap: 10}, cloudDocs()},
		{"negative batch", retriever.IngestOptions{BatchSize: -1}, cloudDocs()},
		{"missing source", retriever.IngestOptions{}, []document.Document{{Content: "text"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Ingest(ctx, tt.docs, tt.opts)
			assert.ErrorIs(t, err, ragerr.ErrConfiguration)
		})
	}
	assert.Zero(t, e.calls.Load(), "validation must happen before any embedding call")
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*retriever.Config)
	}{
		{"zero chunk size", func(c *retriever.Config) { c.ChunkSize = 0 }},
		{"overlap too large", func(c *retriever.Config) { c.ChunkOverlap = c.ChunkSize }},
		{"zero batch", func(c *retriever.Config) { c.BatchSize = 0 }},
		{"zero k", func(c *retriever.Config) { c.K = 0 }},
		{"threshold above one", func(c *retriever.Config) { c.ScoreThreshold = 1.5 }},
		{"negative threshold", func(c *retriever.Config) { c.ScoreThreshold = -0.1 }},
		{"zero concurrency", func(c *retriever.Config) { c.Concurrency = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := retriever.DefaultConfig()
			tt.mutate(&cfg)
			_, err := retriever.New(cfg, &conceptEmbedder{}, nil)
			assert.ErrorIs(t, err, ragerr.ErrConfiguration)
		})
	}

	_, err := retriever.New(retriever.DefaultConfig(), nil, nil)
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
}

func TestQuery_Errors(t *testing.T) {
	ctx := context.Background()
	r := newRetriever(t, &conceptEmbedder{})

	_, err := r.Query(ctx, "lambda", retriever.QueryOptions{})
	assert.ErrorIs(t, err, ragerr.ErrNotFound)

	_, err = r.Ingest(ctx, cloudDocs(), retriever.IngestOptions{})
	require.NoError(t, err)

	_, err = r.Query(ctx, "   ", retriever.QueryOptions{})
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
	_, err = r.Query(ctx, "lambda", retriever.QueryOptions{K: -1})
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
	_, err = r.Query(ctx, "lambda", retriever.QueryOptions{ScoreThreshold: retriever.Threshold(2)})
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
}

func TestQuery_EmbeddingFailureIsNotEmpty(t *testing.T) {
	ctx := context.Background()
	e := &queryFailEmbedder{}
	r, err := retriever.New(retriever.DefaultConfig(), e, nil)
	require.NoError(t, err)
	_, err = r.Ingest(ctx, cloudDocs(), retriever.IngestOptions{})
	require.NoError(t, err)

	results, err := r.Query(ctx, "lambda", retriever.QueryOptions{})
	assert.Nil(t, results)
	assert.ErrorIs(t, err, ragerr.ErrEmbeddingService)
	assert.Equal(t, ragerr.KindEmbeddingService, ragerr.KindOf(err))
}

func TestQuery_CanceledContext(t *testing.T) {
	r := newRetriever(t, &conceptEmbedder{})
	_, err := r.Ingest(context.Background(), cloudDocs(), retriever.IngestOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Query(ctx, "lambda", retriever.QueryOptions{})
	assert.ErrorIs(t, err, ragerr.ErrEmbeddingService)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSaveLoad_IdenticalResults(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "vector_store")
	r := newRetriever(t, &conceptEmbedder{})

	docs := append(cloudDocs(),
		document.New("Configure a VPC subnet with custom routing tables", "vpc.txt"),
		document.New("S3 buckets store objects; Lambda functions can read buckets", "mixed.txt"),
	)
	_, err := r.Ingest(ctx, docs, retriever.IngestOptions{})
	require.NoError(t, err)
	opts := retriever.QueryOptions{K: 4, ScoreThreshold: retriever.Threshold(0)}
	want, err := r.Query(ctx, "s3 storage for lambda code", opts)
	require.NoError(t, err)
	require.NoError(t, r.Save(ctx, dir))

	loaded := newRetriever(t, &conceptEmbedder{})
	require.NoError(t, loaded.Load(ctx, dir))
	got, err := loaded.Query(ctx, "s3 storage for lambda code", opts)
	require.NoError(t, err)

	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Chunk.Content, got[i].Chunk.Content)
		assert.Equal(t, want[i].Chunk.Source(), got[i].Chunk.Source())
		assert.InDelta(t, want[i].Score, got[i].Score, 1e-6)
	}

	before, err := r.Stats()
	require.NoError(t, err)
	after, err := loaded.Stats()
	require.NoError(t, err)
	assert.Equal(t, before.IndexID, after.IndexID)
	assert.Equal(t, 4, after.DocumentCount)
	assert.Equal(t, []string{"lambda.txt", "mixed.txt", "s3.txt", "vpc.txt"}, after.Sources)
}

func TestLoad_Errors(t *testing.T) {
	ctx := context.Background()
	r := newRetriever(t, &conceptEmbedder{})

	err := r.Load(ctx, filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, ragerr.ErrNotFound)

	err = r.Save(ctx, t.TempDir())
	assert.ErrorIs(t, err, ragerr.ErrNotFound)

	dir := t.TempDir()
	_, err = r.Ingest(ctx, cloudDocs(), retriever.IngestOptions{})
	require.NoError(t, err)
	require.NoError(t, r.Save(ctx, dir))

	wide, err := retriever.New(retriever.DefaultConfig(), &wideEmbedder{}, nil)
	require.NoError(t, err)
	err = wide.Load(ctx, dir)
	assert.ErrorIs(t, err, ragerr.ErrCorruptIndex)
	assert.False(t, wide.HasIndex())
}

func TestAppend_PreservesEarlierDocuments(t *testing.T) {
	ctx := context.Background()
	r := newRetriever(t, &conceptEmbedder{})
	docs := cloudDocs()

	_, err := r.Ingest(ctx, docs[:1], retriever.IngestOptions{})
	require.NoError(t, err)
	report, err := r.Append(ctx, docs[1:], retriever.IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.IndexChunks)

	results, err := r.Query(ctx, "lambda serverless", retriever.QueryOptions{K: 1, ScoreThreshold: retriever.Threshold(0)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "lambda.txt", results[0].Chunk.Source())

	stats, err := r.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.DocumentCount)
	assert.Equal(t, 2, stats.ChunkCount)
	assert.Equal(t, []string{"lambda.txt", "s3.txt"}, stats.Sources)
}

func TestAppend_WithoutIndexBuilds(t *testing.T) {
	r := newRetriever(t, &conceptEmbedder{})
	_, err := r.Append(context.Background(), cloudDocs(), retriever.IngestOptions{})
	require.NoError(t, err)
	assert.True(t, r.HasIndex())
}

func TestIngest_ReplacesIndex(t *testing.T) {
	ctx := context.Background()
	r := newRetriever(t, &conceptEmbedder{})
	docs := cloudDocs()

	first, err := r.Ingest(ctx, docs[:1], retriever.IngestOptions{})
	require.NoError(t, err)
	second, err := r.Ingest(ctx, docs[1:], retriever.IngestOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, first.IndexID, second.IndexID)

	stats, err := r.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ChunkCount)
	assert.Equal(t, []string{"s3.txt"}, stats.Sources)
}

func TestIngest_BatchesAndProgress(t *testing.T) {
	ctx := context.Background()
	e := &conceptEmbedder{}
	r := newRetriever(t, e)

	var docs []document.Document
	for i := range 5 {
		docs = append(docs, document.New(fmt.Sprintf("lambda note %d", i), fmt.Sprintf("note-%d.txt", i)))
	}

	var progress []retriever.Progress
	report, err := r.Ingest(ctx, docs, retriever.IngestOptions{
		BatchSize: 2,
		Progress:  func(p retriever.Progress) { progress = append(progress, p) },
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Batches)
	assert.EqualValues(t, 3, e.calls.Load())

	require.Len(t, progress, 3)
	assert.Equal(t, retriever.Progress{DocumentsDone: 2, DocumentsTotal: 5, ChunksDone: 2, ChunksTotal: 5}, progress[0])
	assert.Equal(t, retriever.Progress{DocumentsDone: 5, DocumentsTotal: 5, ChunksDone: 5, ChunksTotal: 5}, progress[2])
}

func TestIngest_ParallelBatchesKeepOrder(t *testing.T) {
	ctx := context.Background()
	r := newRetriever(t, &conceptEmbedder{}, func(c *retriever.Config) { c.Concurrency = 4 })

	var docs []document.Document
	for i := range 9 {
		docs = append(docs, document.New("lambda", fmt.Sprintf("doc-%d.txt", i)))
	}
	_, err := r.Ingest(ctx, docs, retriever.IngestOptions{BatchSize: 1})
	require.NoError(t, err)

	// identical vectors tie; ties come back in insertion order
	results, err := r.Query(ctx, "lambda", retriever.QueryOptions{K: 9, ScoreThreshold: retriever.Threshold(0)})
	require.NoError(t, err)
	require.Len(t, results, 9)
	for i, res := range results {
		assert.Equal(t, fmt.Sprintf("doc-%d.txt", i), res.Chunk.Source())
	}
}

func TestIngest_PartialFailureIsResumable(t *testing.T) {
	ctx := context.Background()
	e := &conceptEmbedder{failAt: 2}
	r := newRetriever(t, e)

	docs := append(cloudDocs(), document.New("VPC network basics", "vpc.txt"))
	_, err := r.Ingest(ctx, docs, retriever.IngestOptions{BatchSize: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ragerr.ErrEmbeddingService)

	var ingestErr *retriever.IngestError
	require.True(t, errors.As(err, &ingestErr))
	assert.Equal(t, 1, ingestErr.DocumentsProcessed)
	assert.Equal(t, 1, ingestErr.ChunksIndexed)

	// the partial index answers queries
	require.True(t, r.HasIndex())
	results, err := r.Query(ctx, "lambda", retriever.QueryOptions{ScoreThreshold: retriever.Threshold(0)})
	require.NoError(t, err)
	require.Len(t, results, 1)

	e.failAt = 0
	_, err = r.Append(ctx, docs[ingestErr.DocumentsProcessed:], retriever.IngestOptions{BatchSize: 1})
	require.NoError(t, err)
	stats, err := r.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ChunkCount)
	assert.Equal(t, 3, stats.DocumentCount)
}

func TestIngest_FailureKeepsWholeDocuments(t *testing.T) {
	ctx := context.Background()
	e := &conceptEmbedder{failAt: 2}
	r := newRetriever(t, e)

	docs := []document.Document{
		document.New("s3 storage", "s3.txt"),
		document.New("lambda lambda lambda lambda", "lambda.txt"),
	}
	// chunk size 10 splits the second document across batches
	_, err := r.Ingest(ctx, docs, retriever.IngestOptions{ChunkSize: 10, BatchSize: 2})
	var ingestErr *retriever.IngestError
	require.True(t, errors.As(err, &ingestErr))
	assert.Equal(t, 1, ingestErr.DocumentsProcessed)
	assert.Equal(t, 1, ingestErr.ChunksIndexed)

	stats, err := r.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ChunkCount)
	assert.Equal(t, []string{"s3.txt"}, stats.Sources)
}

func TestIngest_FirstBatchFailureKeepsPreviousIndex(t *testing.T) {
	ctx := context.Background()
	e := &conceptEmbedder{}
	r := newRetriever(t, e)
	_, err := r.Ingest(ctx, cloudDocs(), retriever.IngestOptions{})
	require.NoError(t, err)
	before, err := r.Stats()
	require.NoError(t, err)

	e.failAt = e.calls.Load() + 1
	_, err = r.Ingest(ctx, []document.Document{document.New("vpc", "vpc.txt")}, retriever.IngestOptions{})
	require.ErrorIs(t, err, ragerr.ErrEmbeddingService)

	after, err := r.Stats()
	require.NoError(t, err)
	assert.Equal(t, before.IndexID, after.IndexID)
	assert.Equal(t, 2, after.ChunkCount)
}

func TestConcurrentQueriesDuringAppend(t *testing.T) {
	ctx := context.Background()
	r := newRetriever(t, &conceptEmbedder{})
	_, err := r.Ingest(ctx, cloudDocs(), retriever.IngestOptions{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				res, err := r.Query(ctx, "lambda", retriever.QueryOptions{K: 1, ScoreThreshold: retriever.Threshold(0)})
				assert.NoError(t, err)
				assert.Len(t, res, 1)
			}
		}()
	}
	for i := range 5 {
		_, err := r.Append(ctx, []document.Document{document.New("vpc network", fmt.Sprintf("vpc-%d.txt", i))}, retriever.IngestOptions{})
		require.NoError(t, err)
	}
	wg.Wait()

	stats, err := r.Stats()
	require.NoError(t, err)
	assert.Equal(t, 7, stats.ChunkCount)
}
