package document

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsdocs/internal/ignore"
	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

// DirOptions controls LoadDir.
type DirOptions struct {
	// Categories maps a top-level sub-directory to a category. Unmapped
	// sub-directories use their own name; files at the root get none.
	Categories map[string]string
	Ignore     *ignore.Matcher
	Chain      *Chain
	Logger     *zap.Logger
}

// FileResult is the outcome for one file.
type FileResult struct {
	Path      string `json:"path"`
	Strategy  string `json:"strategy,omitempty"`
	Documents int    `json:"documents"`
	Error     string `json:"error,omitempty"`
}

// DirResult holds every loaded document and the per-file outcomes.
type DirResult struct {
	Documents []Document   `json:"-"`
	Files     []FileResult `json:"files"`
	Failed    int          `json:"failed"`
}

// LoadDir walks dir in lexical order and loads every file that is not
// ignored. Sources are recorded relative to dir. A file that cannot be
// loaded is reported in the result and skipped.
func LoadDir(ctx context.Context, dir string, opts DirOptions) (*DirResult, error) {
	if opts.Chain == nil {
		opts.Chain = DefaultChain()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return nil, fmt.Errorf("%w: corpus directory %s", ragerr.ErrNotFound, dir)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ragerr.ErrIO, err)
	case !info.IsDir():
		return nil, fmt.Errorf("%w: %s is not a directory", ragerr.ErrConfiguration, dir)
	}

	res := &DirResult{}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if opts.Ignore.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() || d.Name() == ignore.FileName {
			return nil
		}

		fr := FileResult{Path: filepath.ToSlash(rel)}
		lr, err := opts.Chain.Load(ctx, path)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			fr.Error = err.Error()
			res.Failed++
			res.Files = append(res.Files, fr)
			logger.Warn("skipping document", zap.String("path", fr.Path), zap.Error(err))
			return nil
		}

		category := categoryFor(rel, opts.Categories)
		for _, doc := range lr.Documents {
			doc = doc.WithMetadata(MetaSource, fr.Path)
			if category != "" {
				doc = doc.WithMetadata(MetaCategory, category)
			}
			res.Documents = append(res.Documents, doc)
		}
		fr.Strategy = lr.Strategy
		fr.Documents = len(lr.Documents)
		res.Files = append(res.Files, fr)
		logger.Debug("document loaded",
			zap.String("path", fr.Path),
			zap.String("strategy", fr.Strategy),
			zap.Int("documents", fr.Documents),
		)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: walking %s: %v", ragerr.ErrIO, dir, err)
	}
	return res, nil
}

// LoadPaths loads individual files and directories. Directories are walked
// with LoadDir; files keep the path as given for their source.
func LoadPaths(ctx context.Context, paths []string, opts DirOptions) (*DirResult, error) {
	if opts.Chain == nil {
		opts.Chain = DefaultChain()
	}
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	res := &DirResult{}
	for _, p := range sorted {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ragerr.ErrNotFound, p)
			}
			return nil, fmt.Errorf("%w: %v", ragerr.ErrIO, err)
		}
		if info.IsDir() {
			sub, err := LoadDir(ctx, p, opts)
			if err != nil {
				return nil, err
			}
			for i := range sub.Files {
				sub.Files[i].Path = filepath.ToSlash(filepath.Join(p, sub.Files[i].Path))
			}
			for _, d := range sub.Documents {
				res.Documents = append(res.Documents, d.WithMetadata(MetaSource, filepath.ToSlash(filepath.Join(p, d.Source()))))
			}
			res.Files = append(res.Files, sub.Files...)
			res.Failed += sub.Failed
			continue
		}

		fr := FileResult{Path: filepath.ToSlash(p)}
		lr, err := opts.Chain.Load(ctx, p)
		if err != nil {
			fr.Error = err.Error()
			res.Failed++
		} else {
			fr.Strategy = lr.Strategy
			fr.Documents = len(lr.Documents)
			for _, d := range lr.Documents {
				res.Documents = append(res.Documents, d.WithMetadata(MetaSource, fr.Path))
			}
		}
		res.Files = append(res.Files, fr)
	}
	return res, nil
}

func categoryFor(rel string, mapping map[string]string) string {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return ""
	}
	if c, ok := mapping[parts[0]]; ok {
		return c
	}
	return parts[0]
}
