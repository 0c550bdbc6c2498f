package workflow

import (
	"context"

	"github.com/openfroyo/infraforge/pkg/plan"
)

// ArtifactInput is the input of every validator, scanner, parser, estimator
// and config generator. Only Artifact is inspected by most collaborators;
// Request, Assumptions and Plan are read-only intent for those that need it.
type ArtifactInput struct {
	Artifact    string
	Request     string
	Assumptions map[string]string
	Plan        *plan.Plan
}

// Clarifier resolves ambiguous requests into explicit assumptions.
type Clarifier interface {
	Clarify(ctx context.Context, request string) (ClarifyResult, error)
}

// Planner decomposes a clarified request into planned components.
type Planner interface {
	Plan(ctx context.Context, request string, assumptions map[string]string) (PlanResult, error)
}

// Generator produces an infrastructure definition from a generation context.
// In remediation mode implementations must honor GenerationContext.Directive.
type Generator interface {
	Generate(ctx context.Context, gen GenerationContext) (GenerateResult, error)
}

// SyntaxValidator checks the artifact's syntax.
type SyntaxValidator interface {
	ValidateSyntax(ctx context.Context, in ArtifactInput) (SyntaxResult, error)
}

// CompletenessChecker reports required components missing from the artifact.
type CompletenessChecker interface {
	CheckCompleteness(ctx context.Context, in ArtifactInput) (CompletenessResult, error)
}

// DeepValidator runs plan-level validation against the artifact.
type DeepValidator interface {
	ValidateDeep(ctx context.Context, in ArtifactInput) (DeepResult, error)
}

// Scanner runs security and compliance checks and returns raw findings.
type Scanner interface {
	Scan(ctx context.Context, in ArtifactInput) (ScanResult, error)
}

// GraphParser extracts the resource graph from the artifact.
type GraphParser interface {
	ParseGraph(ctx context.Context, in ArtifactInput) (ParseResult, error)
}

// CostEstimator estimates the monthly cost of the artifact.
type CostEstimator interface {
	EstimateCost(ctx context.Context, in ArtifactInput) (CostResult, error)
}

// ConfigGenerator produces the configuration-management script for a validated artifact.
type ConfigGenerator interface {
	GenerateConfig(ctx context.Context, in ArtifactInput) (ConfigResult, error)
}

// Collaborators is the set of external tools the stages delegate to.
// Generator is required; a nil validator, scanner or downstream collaborator
// disables its stage, and a nil clarifier or planner yields the default
// assumptions or an empty plan.
type Collaborators struct {
	Clarifier           Clarifier
	Planner             Planner
	Generator           Generator
	SyntaxValidator     SyntaxValidator
	CompletenessChecker CompletenessChecker
	DeepValidator       DeepValidator
	Scanner             Scanner
	GraphParser         GraphParser
	CostEstimator       CostEstimator
	ConfigGenerator     ConfigGenerator
}
