// Package main implements the opsdocs CLI: build the documentation index,
// query it, and serve it over HTTP or MCP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsdocs/internal/config"
	"github.com/fyrsmithlabs/opsdocs/internal/logging"
	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
	"github.com/fyrsmithlabs/opsdocs/internal/services"
	"github.com/fyrsmithlabs/opsdocs/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	// configPath is the config file; empty uses ~/.config/opsdocs/config.yaml
	configPath string
	// logLevel overrides logging.level from the config file
	logLevel string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "opsdocs",
	Short: "Semantic search over cloud operations documentation",
	Long: `opsdocs indexes a corpus of cloud operations documents (PDF, HTML,
Markdown, text) into a local vector index and retrieves the passages most
relevant to a question, for an answer synthesizer to build on.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ~/.config/opsdocs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "opsdocs by Fyrsmith Labs\n")
		fmt.Fprintf(out, "Version:    %s\n", version)
		fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
		fmt.Fprintf(out, "Build Date: %s\n", buildDate)
	},
}

// exitCode maps an error kind to a process exit status.
func exitCode(err error) int {
	switch ragerr.KindOf(err) {
	case ragerr.KindConfiguration:
		return 2
	case ragerr.KindNotFound:
		return 3
	case ragerr.KindEmbeddingService:
		return 4
	case ragerr.KindCorruptIndex:
		return 5
	case ragerr.KindEmptyCorpus, ragerr.KindEmptyInput:
		return 6
	default:
		return 1
	}
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// app holds what every index-backed command needs.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	tel      *telemetry.Telemetry
	registry services.Registry
}

// openApp loads config, starts telemetry and logging, and opens the
// services. stdoutLogs is false for commands that print results or speak a
// protocol on stdout.
func openApp(ctx context.Context, stdoutLogs bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Observability, version))
	if err != nil {
		return nil, err
	}

	logCfg, err := logging.FromSettings(cfg.Logging, tel.LoggerProvider() != nil)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("%w: %v", ragerr.ErrConfiguration, err)
	}
	logCfg.Output.Stderr = !stdoutLogs
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	for _, reason := range tel.Health().Reasons {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", reason))
	}

	reg, err := services.Open(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, tel: tel, registry: reg}, nil
}

// Close releases the services and flushes logs and telemetry.
func (a *app) Close() error {
	errs := []error{a.registry.Close()}
	_ = a.logger.Sync()
	errs = append(errs, a.tel.Shutdown(context.Background()))
	return errors.Join(errs...)
}
