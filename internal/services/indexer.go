package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsdocs/internal/document"
	"github.com/fyrsmithlabs/opsdocs/internal/ignore"
	"github.com/fyrsmithlabs/opsdocs/internal/logging"
	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
	"github.com/fyrsmithlabs/opsdocs/internal/retriever"
	"github.com/fyrsmithlabs/opsdocs/internal/secrets"
)

// IndexerConfig locates the corpus and the persisted index.
type IndexerConfig struct {
	IndexDir   string
	CorpusDir  string
	Categories map[string]string
	Ignore     []string

	// Redactor scrubs credentials from documents before chunking; nil
	// disables redaction.
	Redactor *secrets.Redactor
}

// IndexReport is the outcome of an indexing run.
type IndexReport struct {
	Ingest *retriever.IngestReport `json:"ingest,omitempty"`
	Files  []document.FileResult   `json:"files"`
	Failed int                     `json:"failed_files"`
	Saved  bool                    `json:"saved"`

	// Redacted counts credential matches removed per rule ID.
	Redacted map[string]int `json:"redacted,omitempty"`
}

// Indexer loads files, feeds them to the retriever and saves the index.
type Indexer struct {
	r      *retriever.Retriever
	cfg    IndexerConfig
	chain  *document.Chain
	logger *logging.Logger
}

// NewIndexer validates cfg and returns an Indexer.
func NewIndexer(r *retriever.Retriever, cfg IndexerConfig, logger *logging.Logger) (*Indexer, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: retriever is required", ragerr.ErrConfiguration)
	}
	if cfg.IndexDir == "" {
		return nil, fmt.Errorf("%w: index dir is required", ragerr.ErrConfiguration)
	}
	if _, err := ignore.New(cfg.Ignore); err != nil {
		return nil, fmt.Errorf("%w: %v", ragerr.ErrConfiguration, err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Indexer{r: r, cfg: cfg, chain: document.DefaultChain(), logger: logger.Named("indexer")}, nil
}

// CorpusDir returns the configured corpus directory.
func (ix *Indexer) CorpusDir() string { return ix.cfg.CorpusDir }

// Rebuild ingests the whole corpus directory into a fresh index and saves it.
func (ix *Indexer) Rebuild(ctx context.Context, opts retriever.IngestOptions) (*IndexReport, error) {
	dirOpts, err := ix.dirOptions(ix.cfg.CorpusDir)
	if err != nil {
		return nil, err
	}
	loaded, err := document.LoadDir(ctx, ix.cfg.CorpusDir, dirOpts)
	if err != nil {
		return nil, err
	}
	return ix.index(ctx, loaded, opts, ix.r.Ingest)
}

// IngestPaths builds a fresh index from files or directories, replacing the
// current one, and saves it.
func (ix *Indexer) IngestPaths(ctx context.Context, paths []string, opts retriever.IngestOptions) (*IndexReport, error) {
	return ix.loadPaths(ctx, paths, opts, ix.r.Ingest)
}

// AddPaths appends files or directories to the current index and saves it.
func (ix *Indexer) AddPaths(ctx context.Context, paths []string, opts retriever.IngestOptions) (*IndexReport, error) {
	return ix.loadPaths(ctx, paths, opts, ix.r.Append)
}

func (ix *Indexer) loadPaths(ctx context.Context, paths []string, opts retriever.IngestOptions, ingest ingestFunc) (*IndexReport, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no paths given", ragerr.ErrEmptyCorpus)
	}
	dirOpts, err := ix.dirOptions("")
	if err != nil {
		return nil, err
	}
	loaded, err := document.LoadPaths(ctx, paths, dirOpts)
	if err != nil {
		return nil, err
	}
	return ix.index(ctx, loaded, opts, ingest)
}

// Refresh appends the corpus-relative paths reported by document.Watch.
// Changed documents are appended as new chunks; earlier chunks of the
// same source stay in the index until the next Rebuild.
func (ix *Indexer) Refresh(ctx context.Context, changed []string) (*IndexReport, error) {
	paths := make([]string, 0, len(changed))
	for _, rel := range changed {
		p := filepath.Join(ix.cfg.CorpusDir, filepath.FromSlash(rel))
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return &IndexReport{}, nil
	}
	return ix.AddPaths(ctx, paths, retriever.IngestOptions{})
}

type ingestFunc func(context.Context, []document.Document, retriever.IngestOptions) (*retriever.IngestReport, error)

func (ix *Indexer) index(ctx context.Context, loaded *document.DirResult, opts retriever.IngestOptions, ingest ingestFunc) (*IndexReport, error) {
	report := &IndexReport{Files: loaded.Files, Failed: loaded.Failed}
	if len(loaded.Documents) == 0 {
		return report, fmt.Errorf("%w: no loadable documents (%d files failed)", ragerr.ErrEmptyCorpus, loaded.Failed)
	}

	report.Redacted = ix.redact(ctx, loaded.Documents)

	ir, ingestErr := ingest(ctx, loaded.Documents, opts)
	report.Ingest = ir

	var partial *retriever.IngestError
	if ingestErr != nil && !(errors.As(ingestErr, &partial) && partial.ChunksIndexed > 0) {
		return report, ingestErr
	}

	if err := ix.r.Save(ctx, ix.cfg.IndexDir); err != nil {
		return report, errors.Join(ingestErr, err)
	}
	report.Saved = true
	ix.logger.Info(ctx, "index saved",
		zap.String("dir", ix.cfg.IndexDir),
		zap.Int("files", len(loaded.Files)),
		zap.Int("failed_files", loaded.Failed),
	)
	return report, ingestErr
}

// redact scrubs docs in place and logs where credentials were found.
func (ix *Indexer) redact(ctx context.Context, docs []document.Document) map[string]int {
	if ix.cfg.Redactor == nil {
		return nil
	}
	var counts map[string]int
	for i := range docs {
		out, findings := ix.cfg.Redactor.Redact(docs[i].Content)
		if len(findings) == 0 {
			continue
		}
		docs[i].Content = out
		if counts == nil {
			counts = make(map[string]int)
		}
		byRule := secrets.CountByRule(findings)
		rules := make([]string, 0, len(byRule))
		for id, n := range byRule {
			counts[id] += n
			rules = append(rules, id)
		}
		slices.Sort(rules)
		ix.logger.Warn(ctx, "redacted credentials from document",
			zap.String("source", docs[i].Metadata[document.MetaSource]),
			zap.Int("matches", len(findings)),
			zap.Strings("rules", rules),
		)
	}
	return counts
}

func (ix *Indexer) dirOptions(root string) (document.DirOptions, error) {
	var (
		m   *ignore.Matcher
		err error
	)
	if root != "" {
		m, err = ignore.Load(root, ix.cfg.Ignore)
	} else {
		m, err = ignore.New(ix.cfg.Ignore)
	}
	if err != nil {
		return document.DirOptions{}, fmt.Errorf("%w: %v", ragerr.ErrConfiguration, err)
	}
	return document.DirOptions{
		Categories: ix.cfg.Categories,
		Ignore:     m,
		Chain:      ix.chain,
		Logger:     ix.logger.Underlying(),
	}, nil
}

// IgnoreMatcher returns the matcher used for the corpus directory.
func (ix *Indexer) IgnoreMatcher() (*ignore.Matcher, error) {
	opts, err := ix.dirOptions(ix.cfg.CorpusDir)
	return opts.Ignore, err
}
