// Package telemetry sets up OpenTelemetry tracing, metrics and logs for
// opsdocs.
//
// Telemetry is off by default. When enabled, spans, metrics and log records
// are exported over OTLP (gRPC or HTTP) to a collector:
//
//	observability:
//	  enable_telemetry: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc
//	  sample_rate: 0.25
//
// New installs the providers globally so instrumentation that uses
// otel.Tracer and otel.Meter picks them up. LoggerProvider feeds the otelzap
// bridge in internal/logging.
//
// Telemetry failures never stop the process. A provider that cannot be
// created leaves the instance degraded and the global no-op in place.
//
// Tests use NewTestTelemetry, which records spans and metrics in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	_, span := tt.Tracer("test").Start(ctx, "retriever.query")
//	span.End()
//	tt.AssertSpanExists(t, "retriever.query")
package telemetry
