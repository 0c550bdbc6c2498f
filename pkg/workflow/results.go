package workflow

import "github.com/openfroyo/infraforge/pkg/plan"

// StageResult is the output of one collaborator invocation. Each variant is
// consumed only by the merge rule of its own stage.
type StageResult interface {
	stage() Stage
}

// DefaultAssumptions are applied when the clarifier is absent, fails, or
// leaves one of these keys unset.
var DefaultAssumptions = map[string]string{
	"cloud_provider": "aws",
	"region":         "us-east-1",
	"environment":    "development",
}

// CostUnavailable is the monthly cost reported when no estimate could be made.
const CostUnavailable = "unavailable"

// ClarifyResult is the output of the clarify stage.
type ClarifyResult struct {
	// Proceed is false when the request cannot be planned without more input.
	Proceed bool `json:"proceed"`

	Assumptions map[string]string `json:"assumptions"`
	MissingInfo []string          `json:"missing_info,omitempty"`
	Questions   []string          `json:"clarification_questions,omitempty"`
}

// PlanResult is the output of the plan stage.
type PlanResult struct {
	Plan *plan.Plan `json:"plan"`
}

// GenerateResult is the output of the generate stage.
type GenerateResult struct {
	Artifact string `json:"artifact"`
}

// SyntaxResult is the output of the validate-syntax stage. An empty Error
// means the artifact is syntactically valid.
type SyntaxResult struct {
	Error string `json:"error,omitempty"`
}

// CompletenessResult is the output of the validate-completeness stage.
type CompletenessResult struct {
	Missing []string `json:"missing"`
}

// DeepResult is the output of the validate-deep stage.
type DeepResult struct {
	Error            string `json:"error,omitempty"`
	PlannedResources int    `json:"planned_resources"`
}

// RawFinding is one scanner finding before normalization.
type RawFinding struct {
	CheckID   string `json:"check_id"`
	CheckName string `json:"check_name"`
	Resource  string `json:"resource"`
	Severity  string `json:"severity"`
	Guideline string `json:"guideline,omitempty"`
}

// ScanResult is the output of the scan-security stage.
type ScanResult struct {
	RawFindings []RawFinding `json:"raw_findings"`
}

// ParseResult is the output of the parse stage.
type ParseResult struct {
	Graph Graph `json:"graph"`
}

// CostResult is the output of the estimate-cost stage.
type CostResult struct {
	MonthlyCost string `json:"monthly_cost"`

	// Unavailable is set when the estimator degraded instead of estimating.
	Unavailable bool `json:"unavailable,omitempty"`
}

// ConfigResult is the output of the generate-config stage.
type ConfigResult struct {
	ConfigArtifact string `json:"config_artifact"`

	// Fallback is set when the generator returned its built-in script.
	Fallback bool `json:"fallback,omitempty"`
}

func (ClarifyResult) stage() Stage      { return StageClarify }
func (PlanResult) stage() Stage         { return StagePlan }
func (GenerateResult) stage() Stage     { return StageGenerate }
func (SyntaxResult) stage() Stage       { return StageValidateSyntax }
func (CompletenessResult) stage() Stage { return StageValidateCompleteness }
func (DeepResult) stage() Stage         { return StageValidateDeep }
func (ScanResult) stage() Stage         { return StageScanSecurity }
func (ParseResult) stage() Stage        { return StageParse }
func (CostResult) stage() Stage         { return StageEstimateCost }
func (ConfigResult) stage() Stage       { return StageGenerateConfig }

// fallbackResult returns the degraded result of a degradable stage.
func fallbackResult(stage Stage) StageResult {
	switch stage {
	case StageClarify:
		return ClarifyResult{Proceed: true, Assumptions: map[string]string{}}
	case StagePlan:
		return PlanResult{Plan: plan.Empty()}
	case StageParse:
		return ParseResult{Graph: Graph{Nodes: []GraphNode{}, Edges: []GraphEdge{}}}
	case StageEstimateCost:
		return CostResult{MonthlyCost: CostUnavailable, Unavailable: true}
	case StageGenerateConfig:
		return ConfigResult{Fallback: true}
	default:
		return nil
	}
}
