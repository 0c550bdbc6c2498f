// Package telemetry provides logging, tracing and metrics for workflow runs.
//
// A Telemetry bundle is built once from Config and shared by the engine, the
// tool sandbox and the HTTP server:
//
//	tel, err := telemetry.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// Logging uses zerolog. Every component derives a child logger with
// ComponentLogger, and the engine tags run-scoped entries with RunLogger.
//
// Tracing uses OpenTelemetry. A run opens a "workflow.run" span; each stage
// invocation opens a "workflow.stage.<name>" child span and each external
// tool a "tool.<name>" span. Exporters are stdout, OTLP over gRPC, or none.
//
// Metrics use a private Prometheus registry exposed through Metrics.Handler.
// All Record methods are safe on a nil or disabled collector, and every
// Telemetry method is safe on a nil bundle.
package telemetry
