package document

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

// ErrUnsupported is returned when no strategy accepts a file.
var ErrUnsupported = fmt.Errorf("%w: unsupported document type", ragerr.ErrConfiguration)

// errNoText marks a strategy that ran but produced nothing to index.
var errNoText = errors.New("no text extracted")

// Loader is one strategy for turning a file into documents.
type Loader interface {
	// Name identifies the strategy in metadata and results.
	Name() string
	// Supports reports whether the strategy can attempt path.
	Supports(path string, mime *mimetype.MIME) bool
	Load(ctx context.Context, path string) ([]Document, error)
}

// Attempt records one strategy that was tried.
type Attempt struct {
	Strategy string `json:"strategy"`
	Err      error  `json:"-"`
}

// LoadResult describes how a file was loaded.
type LoadResult struct {
	Path      string     `json:"path"`
	MIME      string     `json:"mime"`
	Strategy  string     `json:"strategy"`
	Documents []Document `json:"-"`
	Attempts  []Attempt  `json:"attempts,omitempty"`
}

// LoadError is returned when every supporting strategy failed.
type LoadError struct {
	Path     string
	Attempts []Attempt
}

func (e *LoadError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %v", a.Strategy, a.Err)
	}
	return fmt.Sprintf("loading %s failed (%s)", e.Path, strings.Join(parts, "; "))
}

func (e *LoadError) Unwrap() error { return ragerr.ErrIO }

// Chain tries its strategies in order. The first supporting strategy that
// returns at least one non-empty document wins.
type Chain struct {
	loaders []Loader
}

// NewChain returns a chain over loaders, tried in the given order.
func NewChain(loaders ...Loader) *Chain {
	return &Chain{loaders: loaders}
}

// DefaultChain handles PDF (per page, then whole text), HTML and text.
func DefaultChain() *Chain {
	return NewChain(
		&PDFPageLoader{},
		&PDFTextLoader{},
		&HTMLLoader{},
		&TextLoader{},
	)
}

// Strategies returns the strategy names in order.
func (c *Chain) Strategies() []string {
	names := make([]string, len(c.loaders))
	for i, l := range c.loaders {
		names[i] = l.Name()
	}
	return names
}

// Load loads path with the first strategy that succeeds and stamps every
// document with the strategy name.
func (c *Chain) Load(ctx context.Context, path string) (*LoadResult, error) {
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: detecting type of %s: %v", ragerr.ErrIO, path, err)
	}

	res := &LoadResult{Path: path, MIME: mime.String()}
	for _, l := range c.loaders {
		if !l.Supports(path, mime) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		docs, err := l.Load(ctx, path)
		if err == nil {
			docs = nonEmpty(docs)
			if len(docs) == 0 {
				err = errNoText
			}
		}
		if err != nil {
			res.Attempts = append(res.Attempts, Attempt{Strategy: l.Name(), Err: err})
			continue
		}

		res.Strategy = l.Name()
		res.Attempts = append(res.Attempts, Attempt{Strategy: l.Name()})
		for i := range docs {
			docs[i] = docs[i].WithMetadata(MetaLoader, l.Name())
			if docs[i].Source() == "" {
				docs[i] = docs[i].WithMetadata(MetaSource, path)
			}
		}
		res.Documents = docs
		return res, nil
	}

	if len(res.Attempts) == 0 {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupported, filepath.Base(path), mime.String())
	}
	return nil, &LoadError{Path: path, Attempts: res.Attempts}
}

func nonEmpty(docs []Document) []Document {
	out := docs[:0]
	for _, d := range docs {
		if strings.TrimSpace(d.Content) != "" {
			out = append(out, d)
		}
	}
	return out
}

func hasExt(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// isText reports whether mime is text/plain or derives from it.
func isText(mime *mimetype.MIME) bool {
	for m := mime; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
