// Package observability carries the ambient instrumentation shared by the chat
// agent: structured logging with secret redaction, Prometheus metrics and
// OpenTelemetry tracing.
//
// # Logging
//
// NewLogger returns a *slog.Logger whose handler redacts API keys, bearer tokens
// and JWTs, and attaches correlation IDs found on the context:
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	ctx = observability.AddSessionID(ctx, "sess-1")
//	logger.InfoContext(ctx, "turn started")
//
// # Metrics
//
// Metrics registers the chatagent_* collectors on a Registerer. All recording
// methods accept a nil receiver, so components can be built without metrics.
//
// # Tracing
//
// NewTracer exports spans over OTLP/gRPC when an endpoint is configured and is a
// no-op otherwise. Like Metrics, a nil *Tracer is usable.
package observability
