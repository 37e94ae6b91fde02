package ragerr_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ragerr.Kind
	}{
		{"nil", nil, ""},
		{"configuration", fmt.Errorf("%w: chunk_size must be > 0", ragerr.ErrConfiguration), ragerr.KindConfiguration},
		{"empty corpus", ragerr.ErrEmptyCorpus, ragerr.KindEmptyCorpus},
		{"empty input", fmt.Errorf("build: %w", ragerr.ErrEmptyInput), ragerr.KindEmptyInput},
		{"not found", fmt.Errorf("%w: /tmp/x", ragerr.ErrNotFound), ragerr.KindNotFound},
		{"corrupt", fmt.Errorf("%w: dimension 3 != 4", ragerr.ErrCorruptIndex), ragerr.KindCorruptIndex},
		{"io", fmt.Errorf("%w: rename failed", ragerr.ErrIO), ragerr.KindIO},
		{
			name: "embedding timeout reports embedding kind",
			err:  fmt.Errorf("%w: %w", ragerr.ErrEmbeddingService, context.DeadlineExceeded),
			want: ragerr.KindEmbeddingService,
		},
		{"bare deadline", context.DeadlineExceeded, ragerr.KindTimeout},
		{"bare cancel", context.Canceled, ragerr.KindCanceled},
		{"unknown", errors.New("boom"), ragerr.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ragerr.KindOf(tt.err))
		})
	}
}
