package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/opsdocs/internal/document"
	httpserver "github.com/fyrsmithlabs/opsdocs/internal/http"
	"github.com/fyrsmithlabs/opsdocs/internal/services"
)

var serveFlags struct {
	watch       bool
	allowIngest bool
	host        string
	port        int
}

func init() {
	f := serveCmd.Flags()
	f.BoolVar(&serveFlags.watch, "watch", false, "re-index corpus files when they change")
	f.BoolVar(&serveFlags.allowIngest, "allow-ingest", true, "enable POST /api/v1/ingest for paths inside the corpus directory")
	f.StringVar(&serveFlags.host, "host", "", "listen address (default: config)")
	f.IntVar(&serveFlags.port, "port", 0, "listen port (default: config)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query API over HTTP",
	Long: `Start the HTTP API:

  GET  /health          liveness and whether an index is loaded
  GET  /metrics         Prometheus metrics
  POST /api/v1/query    {"query": "...", "k": 4, "score_threshold": 0.7}
  GET  /api/v1/index    index metadata
  POST /api/v1/ingest   {"paths": ["..."]} appends files from the corpus

With --watch, files added or changed under the corpus directory are
appended to the index after a short debounce.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()
		return runServe(cmd.Context(), a)
	},
}

func runServe(ctx context.Context, a *app) error {
	logger := a.logger.Underlying()
	indexer := a.registry.Indexer()

	httpCfg := &httpserver.Config{
		Host: a.cfg.Server.Host,
		Port: a.cfg.Server.Port,
		MaxK: 50,
	}
	if serveFlags.host != "" {
		httpCfg.Host = serveFlags.host
	}
	if serveFlags.port != 0 {
		httpCfg.Port = serveFlags.port
	}
	var ingester httpserver.Ingester
	if serveFlags.allowIngest && indexer.CorpusDir() != "" {
		root, err := filepath.Abs(indexer.CorpusDir())
		if err != nil {
			return fmt.Errorf("resolving corpus dir: %w", err)
		}
		httpCfg.AllowedRoots = []string{root}
		ingester = indexer
	}

	srv, err := httpserver.NewServer(a.registry.Retriever(), ingester, logger, httpCfg)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if serveFlags.watch {
		g.Go(func() error {
			return watchCorpus(gctx, a, indexer)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server shutdown complete")
	return nil
}

func watchCorpus(ctx context.Context, a *app, indexer *services.Indexer) error {
	m, err := indexer.IgnoreMatcher()
	if err != nil {
		return err
	}
	opts := document.WatchOptions{
		Debounce: a.cfg.Corpus.WatchDebounce.Duration(),
		Ignore:   m,
		Logger:   a.logger.Underlying(),
	}
	return document.Watch(ctx, indexer.CorpusDir(), opts, func(ctx context.Context, changed []string) {
		report, err := indexer.Refresh(ctx, changed)
		if err != nil {
			a.logger.Error(ctx, "re-index after change failed", zap.Strings("files", changed), zap.Error(err))
			return
		}
		if report.Ingest != nil {
			a.logger.Info(ctx, "re-indexed changed files",
				zap.Strings("files", changed),
				zap.Int("index_chunks", report.Ingest.IndexChunks),
			)
		}
	})
}
