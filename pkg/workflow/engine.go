package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/infraforge/pkg/plan"
	"github.com/openfroyo/infraforge/pkg/telemetry"
)

// maxErrorMessage bounds error text copied into state, keeping remediation
// context small regardless of tool verbosity.
const maxErrorMessage = 500

// Config holds the engine limits.
type Config struct {
	// MaxRetries is the global ceiling on generation attempts.
	MaxRetries int

	// StreakThreshold is the highest tolerated streak per violation identity.
	StreakThreshold int

	// MaxStageFailures is the per-stage failure ceiling. Zero disables it.
	MaxStageFailures int

	// RunTimeout is the wall-clock ceiling of one run. Zero disables it.
	RunTimeout time.Duration
}

// DefaultConfig returns the default engine limits.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      DefaultMaxRetries,
		StreakThreshold: DefaultStreakThreshold,
		RunTimeout:      15 * time.Minute,
	}
}

// Engine executes workflow runs. An Engine holds no per-run state, so one
// Engine may serve concurrent Run calls; each call owns its own State.
type Engine struct {
	registry   *StageRegistry
	router     *Router
	budget     *RetryBudget
	builder    *ContextBuilder
	normalizer *Normalizer
	telemetry  *telemetry.Telemetry
	logger     zerolog.Logger
	runTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithTelemetry attaches tracing and metrics.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(e *Engine) {
		e.telemetry = t
	}
}

// WithAddressExtractor replaces the resource address extractor used for
// modification directives.
func WithAddressExtractor(fn AddressExtractor) Option {
	return func(e *Engine) {
		e.builder = NewContextBuilder(fn)
	}
}

// NewEngine creates an engine over a stage registry.
func NewEngine(registry *StageRegistry, cfg Config, logger zerolog.Logger, opts ...Option) *Engine {
	budget := NewRetryBudget(cfg.MaxRetries, cfg.StreakThreshold, cfg.MaxStageFailures)
	e := &Engine{
		registry:   registry,
		router:     NewRouter(budget, registry),
		budget:     budget,
		builder:    NewContextBuilder(nil),
		normalizer: NewNormalizer(),
		logger:     telemetry.ComponentLogger(logger, "workflow"),
		runTimeout: cfg.RunTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Budget returns the engine's retry budget.
func (e *Engine) Budget() *RetryBudget {
	return e.budget
}

// Run executes one workflow for request until a terminal status. The returned
// error is non-nil only for an unusable request; workflow failures are
// reported through State.Status and State.Failure.
func (e *Engine) Run(ctx context.Context, request string) (*State, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return nil, ErrEmptyRequest
	}

	state := NewState(request)
	logger := telemetry.RunLogger(e.logger, state.RunID)

	if e.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.runTimeout)
		defer cancel()
	}

	run := e.telemetry.StartRun(ctx, state.RunID)
	ctx = run.Ctx

	logger.Info().Int("max_retries", e.budget.MaxRetries).Msg("Workflow run started")

	for state.Status == StatusRunning {
		if err := ctx.Err(); err != nil {
			state.fail(NewBudgetExhaustedError("run deadline exceeded").
				WithCode(ErrCodeDeadline).WithDetail("cause", err.Error()))
			break
		}

		decision := e.router.Decide(state)
		if decision.Terminal {
			state.Status = decision.Status
			if decision.Reason != nil {
				state.Failure = decision.Reason
			}
			break
		}

		e.step(ctx, state, decision.Stage, logger)
	}

	state.FinishedAt = time.Now()
	e.finish(state, logger)

	var runErr error
	if state.Failure != nil {
		runErr = state.Failure
	}
	e.telemetry.EndRun(run, string(state.Status), runErr)
	return state, nil
}

func (e *Engine) finish(s *State, logger zerolog.Logger) {
	metrics := e.telemetry.MetricsOrNil()
	if s.Failure != nil {
		metrics.RecordError(string(s.Failure.Class))
		if s.Failure.Class == ErrorClassBudgetExhausted {
			metrics.RecordBudgetExhausted(s.Failure.Code)
		}
		s.Logs = append(s.Logs, fmt.Sprintf("[workflow] failed: %s", s.Failure.Message))
		logger.Warn().
			Str("class", string(s.Failure.Class)).
			Str("code", s.Failure.Code).
			Int("retry_count", s.RetryCount).
			Msg(s.Failure.Message)
		return
	}

	s.Logs = append(s.Logs, fmt.Sprintf("[workflow] %s after %d generation attempt(s)", s.Status, s.RetryCount))
	logger.Info().
		Str("status", string(s.Status)).
		Int("retry_count", s.RetryCount).
		Dur("duration", s.FinishedAt.Sub(s.StartedAt)).
		Msg("Workflow run finished")
}

// step invokes the collaborator of one stage and merges its output.
func (e *Engine) step(ctx context.Context, s *State, stage Stage, logger zerolog.Logger) {
	spec, err := e.registry.Spec(stage)
	if err != nil {
		s.fail(NewError(ErrorClassStructural, err.Error(), nil).WithStage(stage))
		return
	}

	attempt := s.RetryCount
	if stage == StageGenerate {
		attempt++
	}
	scope := e.telemetry.StartStage(ctx, string(stage), attempt)
	stageLogger := logger.With().Str("stage", string(stage)).Int("attempt", attempt).Logger()

	result, err := e.invoke(scope.Ctx, s, spec)
	if err != nil {
		if spec.Recovery == RecoveryDegrade {
			stageLogger.Warn().Err(err).Msg("Collaborator degraded to fallback")
			s.Logf(stage, "%s: %v", ErrorClassCollaboratorDegraded, err)
			e.telemetry.MetricsOrNil().RecordDegraded(string(stage))
			result = fallbackResult(stage)
		} else {
			e.mergeFailure(s, stage, err)
			stageLogger.Warn().Err(err).Msg("Collaborator failed")
			e.telemetry.EndStage(scope, string(stage), "error", err)
			return
		}
	}

	outcome := e.merge(s, result)
	stageLogger.Debug().Str("outcome", outcome).Msg("Stage completed")
	e.telemetry.EndStage(scope, string(stage), outcome, nil)
}

var errEmptyArtifact = errors.New("generator returned an empty artifact")

// invoke calls the collaborator of spec. A degradable stage without a
// collaborator returns its fallback result.
func (e *Engine) invoke(ctx context.Context, s *State, spec StageSpec) (StageResult, error) {
	c := e.registry.Collaborators()
	in := ArtifactInput{
		Artifact:    s.Artifact,
		Request:     s.Request,
		Assumptions: copyAssumptions(s.Assumptions),
		Plan:        s.Plan,
	}

	if !spec.Enabled && spec.Recovery == RecoveryDegrade {
		return fallbackResult(spec.Stage), nil
	}

	switch spec.Stage {
	case StageClarify:
		return c.Clarifier.Clarify(ctx, s.Request)
	case StagePlan:
		return c.Planner.Plan(ctx, s.Request, copyAssumptions(s.Assumptions))
	case StageGenerate:
		gen := e.builder.Build(s)
		if err := gen.Validate(); err != nil {
			return nil, err
		}
		e.telemetry.MetricsOrNil().RecordGenerationAttempt(string(gen.Mode))
		res, err := c.Generator.Generate(ctx, gen)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(res.Artifact) == "" {
			return nil, errEmptyArtifact
		}
		return res, nil
	case StageValidateSyntax:
		return c.SyntaxValidator.ValidateSyntax(ctx, in)
	case StageValidateCompleteness:
		return c.CompletenessChecker.CheckCompleteness(ctx, in)
	case StageValidateDeep:
		return c.DeepValidator.ValidateDeep(ctx, in)
	case StageScanSecurity:
		return c.Scanner.Scan(ctx, in)
	case StageParse:
		return c.GraphParser.ParseGraph(ctx, in)
	case StageEstimateCost:
		return c.CostEstimator.EstimateCost(ctx, in)
	case StageGenerateConfig:
		return c.ConfigGenerator.GenerateConfig(ctx, in)
	default:
		return nil, fmt.Errorf("no collaborator for stage %s", spec.Stage)
	}
}

// mergeFailure converts a collaborator error into a generation_failure syntax
// error. A failed generation still counts as an attempt; the previous artifact
// and its findings are kept for the next remediation context.
func (e *Engine) mergeFailure(s *State, stage Stage, err error) {
	werr := NewStructuralError(stage, err)
	e.telemetry.MetricsOrNil().RecordError(string(werr.Class))

	s.StageFailures[stage]++
	if stage == StageGenerate {
		s.RetryCount++
		s.Checked = map[Stage]bool{}
	} else {
		s.Checked[stage] = true
	}
	s.SyntaxError = &SyntaxError{
		Kind:    SyntaxKindGenerationFailure,
		Message: truncate(fmt.Sprintf("%s failed: %v", stage, err)),
	}
	s.Logf(stage, "%s: %v", ErrorClassStructural, err)
}

// merge applies one stage result to the state and returns the outcome label.
func (e *Engine) merge(s *State, result StageResult) string {
	switch r := result.(type) {
	case ClarifyResult:
		return e.mergeClarify(s, r)

	case PlanResult:
		p := r.Plan
		if p == nil {
			p = plan.Empty()
		}
		s.Plan = p
		s.Logf(StagePlan, "planned %d component(s) for %s infrastructure", len(p.Components), p.InfrastructureType)
		return "ok"

	case GenerateResult:
		s.Artifact = r.Artifact
		s.SyntaxError = nil
		s.Violations = []ViolationRecord{}
		s.CompletenessGap = nil
		s.RetryCount++
		s.Checked = map[Stage]bool{}
		s.Logf(StageGenerate, "attempt %d produced %d bytes", s.RetryCount, len(r.Artifact))
		return "ok"

	case SyntaxResult:
		s.Checked[StageValidateSyntax] = true
		if r.Error != "" {
			s.SyntaxError = &SyntaxError{Kind: SyntaxKindInvalid, Message: truncate(r.Error)}
			s.StageFailures[StageValidateSyntax]++
			s.Logf(StageValidateSyntax, "%s: %s", ErrorClassSyntax, s.SyntaxError.Message)
			return "failed"
		}
		s.SyntaxError = nil
		s.Logf(StageValidateSyntax, "syntax valid")
		return "ok"

	case CompletenessResult:
		s.Checked[StageValidateCompleteness] = true
		if len(r.Missing) > 0 {
			s.CompletenessGap = append([]string(nil), r.Missing...)
			s.StageFailures[StageValidateCompleteness]++
			s.Logf(StageValidateCompleteness, "%s: %s", ErrorClassCompleteness, strings.Join(r.Missing, "; "))
			return "failed"
		}
		s.CompletenessGap = nil
		s.Logf(StageValidateCompleteness, "all required components present")
		return "ok"

	case DeepResult:
		s.Checked[StageValidateDeep] = true
		if r.Error != "" {
			s.SyntaxError = &SyntaxError{Kind: SyntaxKindDeepValidation, Message: truncate(r.Error)}
			s.StageFailures[StageValidateDeep]++
			s.Logf(StageValidateDeep, "%s: %s", ErrorClassSyntax, s.SyntaxError.Message)
			return "failed"
		}
		s.PlannedResources = r.PlannedResources
		s.Logf(StageValidateDeep, "plan creates %d resource(s)", r.PlannedResources)
		return "ok"

	case ScanResult:
		s.Checked[StageScanSecurity] = true
		violations := e.normalizer.Normalize(r.RawFindings)
		s.Violations = violations
		e.budget.Observe(s, violations)
		if len(violations) > 0 {
			e.telemetry.MetricsOrNil().RecordViolations(CountBySeverity(violations))
			s.StageFailures[StageScanSecurity]++
			s.Logf(StageScanSecurity, "%s: %d violation(s)", ErrorClassPolicy, len(violations))
			return "failed"
		}
		s.Logf(StageScanSecurity, "no violations")
		return "ok"

	case ParseResult:
		s.Checked[StageParse] = true
		g := r.Graph
		s.Graph = &g
		s.Logf(StageParse, "graph has %d node(s) and %d edge(s)", len(g.Nodes), len(g.Edges))
		return "ok"

	case CostResult:
		s.Checked[StageEstimateCost] = true
		cost := r.MonthlyCost
		if cost == "" {
			cost = CostUnavailable
		}
		s.MonthlyCost = cost
		if r.Unavailable {
			e.telemetry.MetricsOrNil().RecordDegraded(string(StageEstimateCost))
			s.Logf(StageEstimateCost, "%s: %s", ErrorClassCollaboratorDegraded, cost)
			return "degraded"
		}
		s.Logf(StageEstimateCost, "estimated %s", cost)
		return "ok"

	case ConfigResult:
		s.Checked[StageGenerateConfig] = true
		s.ConfigArtifact = r.ConfigArtifact
		if r.Fallback {
			e.telemetry.MetricsOrNil().RecordDegraded(string(StageGenerateConfig))
			s.Logf(StageGenerateConfig, "%s: using fallback configuration", ErrorClassCollaboratorDegraded)
			return "degraded"
		}
		s.Logf(StageGenerateConfig, "configuration script generated (%d bytes)", len(r.ConfigArtifact))
		return "ok"

	default:
		s.fail(NewError(ErrorClassStructural, fmt.Sprintf("unexpected stage result %T", result), nil))
		return "error"
	}
}

func (e *Engine) mergeClarify(s *State, r ClarifyResult) string {
	if !r.Proceed {
		reason := NewError(ErrorClassClarificationRequired, "request needs clarification", nil).
			WithCode(ErrCodeNeedsInformation).
			WithStage(StageClarify).
			WithDetail("missing_info", r.MissingInfo).
			WithDetail("questions", r.Questions)
		s.fail(reason)
		s.Logf(StageClarify, "%s: %s", ErrorClassClarificationRequired, strings.Join(r.Questions, " "))
		return "needs-clarification"
	}

	for k, v := range r.Assumptions {
		if _, exists := s.Assumptions[k]; !exists && strings.TrimSpace(v) != "" {
			s.Assumptions[k] = v
		}
	}
	for k, v := range DefaultAssumptions {
		if _, exists := s.Assumptions[k]; !exists {
			s.Assumptions[k] = v
		}
	}
	s.Logf(StageClarify, "assumptions: provider=%s region=%s environment=%s",
		s.Assumptions["cloud_provider"], s.Assumptions["region"], s.Assumptions["environment"])
	return "ok"
}

func truncate(msg string) string {
	if len(msg) <= maxErrorMessage {
		return msg
	}
	return msg[:maxErrorMessage] + "..."
}
