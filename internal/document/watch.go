package document

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsdocs/internal/ignore"
)

// WatchOptions controls Watch.
type WatchOptions struct {
	// Debounce is the quiet period after the last change before fn runs.
	Debounce time.Duration
	Ignore   *ignore.Matcher
	Logger   *zap.Logger
}

// Watch calls fn with the corpus-relative paths that changed under dir,
// once changes have been quiet for the debounce period. Sub-directories
// created while watching are watched too. Watch blocks until ctx is done.
func Watch(ctx context.Context, dir string, opts WatchOptions, fn func(ctx context.Context, changed []string)) error {
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	if err := addTree(w, dir, opts.Ignore); err != nil {
		return err
	}

	timer := time.NewTimer(opts.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			rel, err := filepath.Rel(dir, ev.Name)
			if err != nil || rel == "." {
				continue
			}
			info, statErr := os.Stat(ev.Name)
			isDir := statErr == nil && info.IsDir()
			if opts.Ignore.Match(rel, isDir) || filepath.Base(rel) == ignore.FileName {
				continue
			}
			if isDir && ev.Has(fsnotify.Create) {
				if err := addTree(w, ev.Name, nil); err != nil {
					logger.Warn("watching new directory", zap.String("path", rel), zap.Error(err))
				}
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			pending[filepath.ToSlash(rel)] = struct{}{}
			timer.Reset(opts.Debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)
			logger.Info("corpus changed", zap.Strings("paths", changed))
			fn(ctx, changed)
		}
	}
}

func addTree(w *fsnotify.Watcher, root string, m *ignore.Matcher) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, _ := filepath.Rel(root, path); rel != "." && m.Match(rel, true) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
