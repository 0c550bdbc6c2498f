package telemetry

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles logging, tracing and metrics.
// A nil *Telemetry is valid and records nothing.
type Telemetry struct {
	Logger  zerolog.Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// New creates a telemetry bundle from configuration.
func New(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// Shutdown flushes pending telemetry.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.Tracer.Shutdown(ctx)
}

// Scope is an instrumented operation: a span plus a timer.
type Scope struct {
	Ctx   context.Context
	span  trace.Span
	timer *Timer
}

// End finishes the span, recording err when non-nil.
func (s *Scope) End(err error) {
	if s.span == nil {
		return
	}
	if err != nil {
		RecordError(s.span, err)
	} else {
		RecordSuccess(s.span)
	}
	s.span.End()
}

// StartRun opens the root scope of a workflow run and counts it as active.
func (t *Telemetry) StartRun(ctx context.Context, runID string) *Scope {
	if t == nil {
		return &Scope{Ctx: ctx, timer: NewTimer()}
	}
	t.Metrics.RecordRunStarted()
	if t.Tracer == nil {
		return &Scope{Ctx: ctx, timer: NewTimer()}
	}
	spanCtx, span := t.Tracer.StartRunSpan(ctx, runID)
	return &Scope{Ctx: spanCtx, span: span, timer: NewTimer()}
}

// EndRun closes a run scope and records its final status.
func (t *Telemetry) EndRun(s *Scope, status string, err error) {
	if s.span != nil {
		s.span.SetAttributes(AttrRunStatus.String(status))
	}
	s.End(err)
	if t != nil {
		t.Metrics.RecordRunCompleted(status, s.timer.Duration())
	}
}

// StartStage opens a scope for one stage invocation.
func (t *Telemetry) StartStage(ctx context.Context, stage string, attempt int) *Scope {
	if t == nil || t.Tracer == nil {
		return &Scope{Ctx: ctx, timer: NewTimer()}
	}
	spanCtx, span := t.Tracer.StartStageSpan(ctx, stage, attempt)
	return &Scope{Ctx: spanCtx, span: span, timer: NewTimer()}
}

// EndStage closes a stage scope and records the stage outcome.
func (t *Telemetry) EndStage(s *Scope, stage, outcome string, err error) {
	if s.span != nil {
		s.span.SetAttributes(AttrOutcome.String(outcome))
	}
	s.End(err)
	if t != nil {
		t.Metrics.RecordStage(stage, outcome, s.timer.Duration())
	}
}

// ToolRun executes fn inside a tool span. It is used by the sandbox runner.
func (t *Telemetry) ToolRun(ctx context.Context, tool string, args []string, fn func(context.Context) error) error {
	if t == nil || t.Tracer == nil {
		return fn(ctx)
	}
	spanCtx, span := t.Tracer.StartToolSpan(ctx, tool, args...)
	defer span.End()

	err := fn(spanCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		RecordError(span, err)
	} else if err == nil {
		RecordSuccess(span)
	}
	return err
}

// MetricsOrNil returns the metrics collector, or nil for a nil bundle.
func (t *Telemetry) MetricsOrNil() *Metrics {
	if t == nil {
		return nil
	}
	return t.Metrics
}
