package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/opsdocs/internal/document"
	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

// ErrDimensionMismatch reports vectors whose size differs from the index.
var ErrDimensionMismatch = fmt.Errorf("%w: dimension mismatch", ragerr.ErrCorruptIndex)

// SearchResult is a chunk with its similarity score in [0, 1].
type SearchResult struct {
	Chunk   document.Chunk `json:"chunk"`
	Score   float32        `json:"score"`
	Ordinal int            `json:"ordinal"`
}

// ScoreFromCosine maps cosine similarity in [-1, 1] to [0, 1].
func ScoreFromCosine(cos float32) float32 {
	s := (1 + cos) / 2
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}
