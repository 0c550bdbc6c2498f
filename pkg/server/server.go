// Package server exposes workflow runs over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/openfroyo/infraforge/pkg/config"
	"github.com/openfroyo/infraforge/pkg/policy"
	"github.com/openfroyo/infraforge/pkg/report"
	"github.com/openfroyo/infraforge/pkg/telemetry"
	"github.com/openfroyo/infraforge/pkg/workflow"
)

// WorkflowRunner runs one workflow to completion.
type WorkflowRunner interface {
	Run(ctx context.Context, request string) (*workflow.State, error)
}

// ArtifactScanner evaluates security policies against Terraform source.
type ArtifactScanner interface {
	ScanArtifact(ctx context.Context, artifact string, evalCtx *policy.Context) (*policy.Report, error)
}

// PolicyLister lists the loaded security policies.
type PolicyLister interface {
	ListPolicies() []policy.Policy
}

// Server is the HTTP API.
type Server struct {
	echo      *echo.Echo
	runner    WorkflowRunner
	scanner   ArtifactScanner
	policies  PolicyLister
	telemetry *telemetry.Telemetry
	cfg       config.ServerConfig
	slots     chan struct{}
	logger    zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithScanner enables POST /api/v1/scan.
func WithScanner(s ArtifactScanner) Option {
	return func(srv *Server) { srv.scanner = s }
}

// WithPolicies enables GET /api/v1/policies.
func WithPolicies(p PolicyLister) Option {
	return func(srv *Server) { srv.policies = p }
}

// WithTelemetry enables GET /metrics when the bundle carries metrics.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(srv *Server) { srv.telemetry = t }
}

// New creates the server. At most cfg.MaxConcurrentRuns workflow runs execute
// at once; further generate requests are rejected with 429.
func New(runner WorkflowRunner, cfg config.ServerConfig, logger zerolog.Logger, opts ...Option) (*Server, error) {
	if runner == nil {
		return nil, errors.New("workflow runner is required")
	}
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 1
	}

	s := &Server{
		runner: runner,
		cfg:    cfg,
		slots:  make(chan struct{}, cfg.MaxConcurrentRuns),
		logger: telemetry.ComponentLogger(logger, "http"),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.logRequests)
	s.echo = e

	s.registerRoutes()
	return s, nil
}

func (s *Server) logRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.logger.Info().
			Str("method", c.Request().Method).
			Str("uri", c.Request().RequestURI).
			Int("status", c.Response().Status).
			Dur("duration", time.Since(start)).
			Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
			Msg("HTTP request")
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if m := s.telemetry.MetricsOrNil(); m != nil {
		s.echo.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/generate", s.handleGenerate)
	if s.scanner != nil {
		v1.POST("/scan", s.handleScan)
	}
	if s.policies != nil {
		v1.GET("/policies", s.handlePolicies)
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// GenerateRequest is the request body for POST /api/v1/generate.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// ScanRequest is the request body for POST /api/v1/scan.
type ScanRequest struct {
	Terraform   string `json:"terraform_code"`
	Environment string `json:"environment,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	RunsActive  int    `json:"runs_active"`
	RunsAllowed int    `json:"runs_allowed"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		RunsActive:  len(s.slots),
		RunsAllowed: cap(s.slots),
	})
}

func (s *Server) handleGenerate(c echo.Context) error {
	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt field is required")
	}

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	default:
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many concurrent runs")
	}

	state, err := s.runner.Run(c.Request().Context(), req.Prompt)
	if err != nil {
		if errors.Is(err, workflow.ErrEmptyRequest) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error().Err(err).Msg("Workflow run failed to start")
		return echo.NewHTTPError(http.StatusInternalServerError, "workflow run failed")
	}

	s.logger.Info().
		Str("run_id", state.RunID).
		Str("status", string(state.Status)).
		Int("retries", state.RetryCount).
		Msg("Workflow run finished")
	return c.JSON(http.StatusOK, report.FromState(state))
}

func (s *Server) handleScan(c echo.Context) error {
	var req ScanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Terraform) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "terraform_code field is required")
	}

	rep, err := s.scanner.ScanArtifact(c.Request().Context(), req.Terraform, &policy.Context{
		Environment: req.Environment,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, rep)
}

func (s *Server) handlePolicies(c echo.Context) error {
	return c.JSON(http.StatusOK, s.policies.ListPolicies())
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.echo.Server.ReadTimeout = s.cfg.ReadTimeout
	s.echo.Server.WriteTimeout = s.cfg.WriteTimeout
	s.logger.Info().Str("addr", s.cfg.Address).Msg("Starting HTTP server")
	if err := s.echo.Start(s.cfg.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight runs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}
