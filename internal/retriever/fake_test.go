package retriever_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"unicode"
)

// concepts maps keywords onto axes so relevance is predictable in tests.
var concepts = map[string]int{
	"lambda": 0, "serverless": 0, "compute": 0, "code": 0, "servers": 0, "run": 0, "functions": 0,
	"s3": 1, "storage": 1, "object": 1, "bucket": 1, "buckets": 1,
	"vpc": 2, "network": 2, "subnet": 2, "routing": 2,
}

const conceptDim = 4

// conceptEmbedder is a deterministic keyword embedder. The last axis is a
// small constant so no text embeds to the zero vector.
type conceptEmbedder struct {
	calls  atomic.Int32
	failAt int32 // 1-based EmbedDocuments call that fails, 0 = never
}

func (e *conceptEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	n := e.calls.Add(1)
	if e.failAt > 0 && n >= e.failAt {
		return nil, errors.New("upstream returned 503")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embedConcepts(t)
	}
	return out, nil
}

func (e *conceptEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return embedConcepts(text), nil
}

func (e *conceptEmbedder) Dimension() int { return conceptDim }

func embedConcepts(text string) []float32 {
	v := make([]float32, conceptDim)
	v[conceptDim-1] = 0.1
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if axis, ok := concepts[w]; ok {
			v[axis]++
		}
	}
	return v
}

// queryFailEmbedder indexes fine but cannot embed queries.
type queryFailEmbedder struct{ conceptEmbedder }

func (e *queryFailEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("connection refused")
}

// wideEmbedder reports a different dimension than conceptEmbedder.
type wideEmbedder struct{ conceptEmbedder }

func (e *wideEmbedder) Dimension() int { return 8 }
