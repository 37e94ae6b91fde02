package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

// DefaultHashDimension is used when no dimension is configured.
const DefaultHashDimension = 512

// HashProvider is an offline, deterministic embedder based on signed
// feature hashing of words and character trigrams. It needs no model or
// network and is meant for development, tests and air-gapped demos; its
// notion of similarity is lexical, not semantic.
type HashProvider struct {
	dim int
}

var _ Provider = (*HashProvider)(nil)

// NewHashProvider returns a HashProvider producing dim-sized vectors.
func NewHashProvider(dim int) (*HashProvider, error) {
	if dim == 0 {
		dim = DefaultHashDimension
	}
	if dim < 8 {
		return nil, fmt.Errorf("%w: hash dimension must be >= 8, got %d", ragerr.ErrConfiguration, dim)
	}
	return &HashProvider{dim: dim}, nil
}

func (h *HashProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h *HashProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.embed(text), nil
}

func (h *HashProvider) Dimension() int { return h.dim }

func (h *HashProvider) Close() error { return nil }

func (h *HashProvider) embed(text string) []float32 {
	vec := make([]float64, h.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h.add(vec, "w:"+w, 1.0)
		padded := []rune("#" + w + "#")
		for i := 0; i+3 <= len(padded); i++ {
			h.add(vec, "g:"+string(padded[i:i+3]), 0.5)
		}
	}
	if len(words) == 0 {
		h.add(vec, "raw:"+text, 1.0)
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, h.dim)
	if norm == 0 {
		// every feature cancelled out; fall back to a fixed unit vector
		out[0] = 1
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func (h *HashProvider) add(vec []float64, feature string, weight float64) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}
