// Package logging provides structured logging for opsdocs.
//
// Logger wraps Zap with:
//   - a Trace level (-2, below Debug)
//   - stdout and optional OpenTelemetry output
//   - context fields (trace_id, request.id, ingest.run)
//   - key and pattern based secret redaction
//   - per-level sampling (errors never sampled)
//
// Usage:
//
//	cfg, err := logging.FromSettings(appCfg.Logging, false)
//	logger, err := logging.NewLogger(cfg, nil)
//	defer logger.Sync()
//
//	ctx = logging.WithIngestRun(ctx, runID)
//	logger.Info(ctx, "batch indexed", zap.Int("chunks", n))
//
// Tests use NewTestLogger and its Assert helpers.
package logging
