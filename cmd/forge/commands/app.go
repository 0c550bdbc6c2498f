package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/infraforge/pkg/completeness"
	"github.com/openfroyo/infraforge/pkg/config"
	"github.com/openfroyo/infraforge/pkg/finops"
	"github.com/openfroyo/infraforge/pkg/llm"
	"github.com/openfroyo/infraforge/pkg/policy"
	"github.com/openfroyo/infraforge/pkg/sandbox"
	"github.com/openfroyo/infraforge/pkg/telemetry"
	"github.com/openfroyo/infraforge/pkg/terraform"
	"github.com/openfroyo/infraforge/pkg/workflow"
)

// app holds what every command needs: configuration, telemetry and a logger.
type app struct {
	cfg       *config.Config
	telemetry *telemetry.Telemetry
	logger    zerolog.Logger
}

// loadApp loads configuration, applies the global flags and starts telemetry.
func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Telemetry.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Telemetry.Logging.Format = logFormat
	}

	tel, err := telemetry.New(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	return &app{cfg: cfg, telemetry: tel, logger: tel.Logger}, nil
}

// close flushes telemetry.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
}

// newPolicyEngine creates the policy engine with the configured custom
// policies loaded and the configured policies disabled.
func (a *app) newPolicyEngine(ctx context.Context) (*policy.Engine, error) {
	engine, err := policy.NewEngine(a.logger)
	if err != nil {
		return nil, err
	}
	if len(a.cfg.Policy.Paths) > 0 {
		if err := engine.LoadPolicies(ctx, a.cfg.Policy.Paths); err != nil {
			return nil, err
		}
	}
	for _, name := range a.cfg.Policy.Disabled {
		if err := engine.DisablePolicy(name); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

// newCompletenessChecker creates the checker with the configured Starlark rules.
func (a *app) newCompletenessChecker() (*completeness.Checker, error) {
	checker := completeness.NewChecker(a.logger,
		completeness.WithEvaluator(config.NewStarlarkEvaluator(a.cfg.Completeness.RuleTimeout)))
	if len(a.cfg.Completeness.RulePaths) > 0 {
		if err := checker.LoadRules(a.cfg.Completeness.RulePaths); err != nil {
			return nil, err
		}
	}
	return checker, nil
}

// newWorkflowEngine wires every collaborator into a workflow engine.
func (a *app) newWorkflowEngine(ctx context.Context, policies *policy.Engine) (*workflow.Engine, error) {
	models, err := llm.NewModels(ctx, a.cfg.LLM)
	if err != nil {
		return nil, err
	}
	schemas := config.NewSchemaRegistry()

	checker, err := a.newCompletenessChecker()
	if err != nil {
		return nil, err
	}

	runner := sandbox.NewRunner(a.cfg.Tools.Timeout, a.telemetry, a.logger)

	collaborators := workflow.Collaborators{
		Clarifier:           llm.NewClarifier(models.Lightweight, schemas, a.logger),
		Planner:             llm.NewPlanner(models.Lightweight, schemas, a.logger),
		Generator:           llm.NewGenerator(models.Standard, a.logger),
		SyntaxValidator:     terraform.NewSyntaxValidator(a.logger),
		CompletenessChecker: checker,
		Scanner:             policy.NewScanner(policies, a.logger),
		GraphParser:         terraform.NewGraphParser(a.logger),
		CostEstimator:       finops.NewEstimator(runner, a.cfg.Tools.InfracostBinary, a.cfg.Tools.InfracostAPIKey, a.logger),
		ConfigGenerator:     llm.NewConfigWriter(models.Standard, a.logger),
	}

	if a.cfg.Tools.DeepValidation {
		deep := terraform.NewDeepValidator(runner, a.cfg.Tools.TerraformBinary, a.logger)
		if deep.Available() {
			collaborators.DeepValidator = deep
		} else {
			a.logger.Warn().
				Str("binary", a.cfg.Tools.TerraformBinary).
				Msg("Terraform not found, deep validation disabled")
		}
	}

	registry, err := workflow.NewStageRegistry(collaborators)
	if err != nil {
		return nil, err
	}

	return workflow.NewEngine(registry, workflow.Config{
		MaxRetries:       a.cfg.Workflow.MaxRetries,
		StreakThreshold:  a.cfg.Workflow.StreakThreshold,
		MaxStageFailures: a.cfg.Workflow.MaxStageFailures,
		RunTimeout:       a.cfg.Workflow.RunTimeout,
	}, a.logger,
		workflow.WithTelemetry(a.telemetry),
		workflow.WithAddressExtractor(terraform.ResourceAddresses),
	), nil
}
