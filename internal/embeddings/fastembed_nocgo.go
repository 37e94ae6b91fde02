//go:build !cgo

package embeddings

import (
	"fmt"

	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

// FastEmbedConfig configures local ONNX embedding.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
	BatchSize int
}

// NewFastEmbedProvider always fails: ONNX runtime bindings need cgo.
func NewFastEmbedProvider(_ FastEmbedConfig) (Provider, error) {
	return nil, fmt.Errorf("%w: fastembed requires a cgo build; use the tei, ollama or openai provider", ragerr.ErrConfiguration)
}
