// Package ragerr defines the error kinds shared by the retrieval engine.
//
// Every failure surfaced by the chunker, embedders, vector index, index
// store and retriever wraps exactly one of the sentinels below, so callers
// can branch with errors.Is and API layers can report a stable kind.
package ragerr

import (
	"context"
	"errors"
)

// Sentinel error kinds.
var (
	// ErrConfiguration indicates invalid parameters, rejected before any work begins.
	ErrConfiguration = errors.New("configuration error")

	// ErrEmptyCorpus indicates an ingestion call with zero documents.
	ErrEmptyCorpus = errors.New("empty corpus")

	// ErrEmptyInput indicates an index build with nothing to index.
	ErrEmptyInput = errors.New("empty input")

	// ErrEmbeddingService indicates the embedding backend failed.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrIO indicates a persistence or search execution failure.
	ErrIO = errors.New("io error")

	// ErrNotFound indicates a missing index.
	ErrNotFound = errors.New("not found")

	// ErrCorruptIndex indicates an index that cannot be used as stored.
	ErrCorruptIndex = errors.New("corrupt index")
)

// Kind is the machine-checkable name of an error kind.
type Kind string

const (
	KindConfiguration    Kind = "configuration"
	KindEmptyCorpus      Kind = "empty_corpus"
	KindEmptyInput       Kind = "empty_input"
	KindEmbeddingService Kind = "embedding_service"
	KindIO               Kind = "io"
	KindNotFound         Kind = "not_found"
	KindCorruptIndex     Kind = "corrupt_index"
	KindTimeout          Kind = "timeout"
	KindCanceled         Kind = "canceled"
	KindUnknown          Kind = "unknown"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrConfiguration, KindConfiguration},
	{ErrEmptyCorpus, KindEmptyCorpus},
	{ErrEmptyInput, KindEmptyInput},
	{ErrEmbeddingService, KindEmbeddingService},
	{ErrNotFound, KindNotFound},
	{ErrCorruptIndex, KindCorruptIndex},
	{ErrIO, KindIO},
}

// KindOf returns the kind of err. Domain sentinels take precedence over
// context errors so an embedding timeout still reports as embedding_service.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return KindUnknown
}
