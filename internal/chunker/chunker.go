// Package chunker splits documents into overlapping, size-bounded chunks.
//
// Sizes are measured in runes. For each chunk the splitter looks for the
// largest boundary that keeps the chunk within size: a paragraph break,
// then a sentence break, then a word break, then a hard cut. Chunks are
// sliced verbatim (no trimming), so adjacent chunks of one document share
// exactly overlap runes.
package chunker

import (
	"fmt"
	"maps"
	"strconv"

	"github.com/fyrsmithlabs/opsdocs/internal/document"
	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

// Defaults used when callers do not override them.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// separators in order of preference. A chunk ends right after the separator.
var separators = [][]string{
	{"\n\n"},
	{". ", "! ", "? ", ".\n", "\n"},
	{" ", "\t"},
}

// Validate checks size and overlap.
func Validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk_size must be > 0, got %d", ragerr.ErrConfiguration, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: chunk_overlap must satisfy 0 <= overlap < chunk_size (%d), got %d",
			ragerr.ErrConfiguration, size, overlap)
	}
	return nil
}

// Split chunks every document. Overlap never crosses document boundaries
// and empty documents produce no chunks.
func Split(docs []document.Document, size, overlap int) ([]document.Chunk, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}

	var out []document.Chunk
	for i, doc := range docs {
		for j, span := range spans([]rune(doc.Content), size, overlap) {
			md := maps.Clone(doc.Metadata)
			if md == nil {
				md = map[string]string{}
			}
			md[document.MetaChunkIndex] = strconv.Itoa(j)
			md[document.MetaStartIndex] = strconv.Itoa(span.start)
			out = append(out, document.Chunk{
				Content:  span.text,
				Metadata: md,
				Doc:      i,
				Index:    j,
			})
		}
	}
	return out, nil
}

type span struct {
	start int
	text  string
}

func spans(runes []rune, size, overlap int) []span {
	var out []span
	n := len(runes)
	start := 0
	for n > 0 {
		if n-start <= size {
			out = append(out, span{start, string(runes[start:])})
			break
		}
		end := cut(runes, start, size, overlap)
		out = append(out, span{start, string(runes[start:end])})
		start = end - overlap
	}
	return out
}

// cut picks the end of the chunk starting at start. The end must lie in
// (start+overlap, start+size] so the next chunk always advances.
func cut(runes []rune, start, size, overlap int) int {
	lo, hi := start+overlap+1, start+size
	for _, level := range separators {
		best := -1
		for _, sep := range level {
			if end := lastBoundary(runes, []rune(sep), lo, hi); end > best {
				best = end
			}
		}
		if best >= 0 {
			return best
		}
	}
	return hi
}

// lastBoundary returns the largest end in [lo, hi] such that runes[:end]
// ends with sep, or -1.
func lastBoundary(runes, sep []rune, lo, hi int) int {
	for end := hi; end >= lo; end-- {
		if end < len(sep) {
			break
		}
		if hasSuffixAt(runes, sep, end) {
			return end
		}
	}
	return -1
}

func hasSuffixAt(runes, sep []rune, end int) bool {
	base := end - len(sep)
	for k, r := range sep {
		if runes[base+k] != r {
			return false
		}
	}
	return true
}
