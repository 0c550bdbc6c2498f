package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for workflow runs.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	activeRuns    prometheus.Gauge

	// Stage metrics
	stageInvocations *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec

	// Retry metrics
	generationAttempts *prometheus.CounterVec
	budgetExhaustions  *prometheus.CounterVec

	// Finding metrics
	violations    *prometheus.CounterVec
	degradations  *prometheus.CounterVec
	errorsByClass *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
// A disabled configuration yields a collector whose Record methods are no-ops.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of workflow runs started",
			},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of workflow runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of workflow runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active workflow runs",
			},
		),

		stageInvocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_invocations_total",
				Help:      "Total number of stage invocations by outcome",
			},
			[]string{"stage", "outcome"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of stage invocations in seconds",
				Buckets:   buckets,
			},
			[]string{"stage"},
		),

		generationAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_attempts_total",
				Help:      "Total number of generation attempts by mode",
			},
			[]string{"mode"},
		),
		budgetExhaustions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "budget_exhaustions_total",
				Help:      "Total number of runs stopped by a retry ceiling",
			},
			[]string{"reason"},
		),

		violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "violations_total",
				Help:      "Total number of policy violations reported by scans",
			},
			[]string{"severity"},
		),
		degradations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collaborator_degradations_total",
				Help:      "Total number of collaborators that fell back to a degraded result",
			},
			[]string{"stage"},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of workflow errors by class",
			},
			[]string{"class"},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.activeRuns,
		m.stageInvocations,
		m.stageDuration,
		m.generationAttempts,
		m.budgetExhaustions,
		m.violations,
		m.degradations,
		m.errorsByClass,
	)

	return m, nil
}

// Run Metrics

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted() {
	if m == nil || m.runsStarted == nil {
		return
	}
	m.runsStarted.Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m == nil || m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// Stage Metrics

// RecordStage records one stage invocation.
func (m *Metrics) RecordStage(stage, outcome string, duration time.Duration) {
	if m == nil || m.stageInvocations == nil {
		return
	}
	m.stageInvocations.WithLabelValues(stage, outcome).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// Retry Metrics

// RecordGenerationAttempt records a generation attempt in creation or remediation mode.
func (m *Metrics) RecordGenerationAttempt(mode string) {
	if m == nil || m.generationAttempts == nil {
		return
	}
	m.generationAttempts.WithLabelValues(mode).Inc()
}

// RecordBudgetExhausted records a run stopped by a retry ceiling.
func (m *Metrics) RecordBudgetExhausted(reason string) {
	if m == nil || m.budgetExhaustions == nil {
		return
	}
	m.budgetExhaustions.WithLabelValues(reason).Inc()
}

// Finding Metrics

// RecordViolations records the violations of one scan by severity.
func (m *Metrics) RecordViolations(bySeverity map[string]int) {
	if m == nil || m.violations == nil {
		return
	}
	for severity, count := range bySeverity {
		m.violations.WithLabelValues(severity).Add(float64(count))
	}
}

// RecordDegraded records a collaborator that returned its fallback result.
func (m *Metrics) RecordDegraded(stage string) {
	if m == nil || m.degradations == nil {
		return
	}
	m.degradations.WithLabelValues(stage).Inc()
}

// RecordError records an error by class.
func (m *Metrics) RecordError(class string) {
	if m == nil || m.errorsByClass == nil || class == "" {
		return
	}
	m.errorsByClass.WithLabelValues(class).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry exposes the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
