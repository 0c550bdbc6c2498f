package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status represents the lifecycle status of a workflow run.
type Status string

const (
	// StatusRunning indicates the run has not reached a terminal decision yet.
	StatusRunning Status = "running"

	// StatusSucceeded indicates every stage passed and all artifacts were produced.
	StatusSucceeded Status = "succeeded"

	// StatusFailed indicates the run stopped on a fatal error or an exhausted budget.
	StatusFailed Status = "failed"
)

// IsTerminal returns true if the status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Validate checks if the status is valid.
func (s Status) Validate() error {
	switch s {
	case StatusRunning, StatusSucceeded, StatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid workflow status: %s", s)
	}
}

// Stage identifies one step of the workflow.
type Stage string

const (
	StageClarify              Stage = "clarify"
	StagePlan                 Stage = "plan"
	StageGenerate             Stage = "generate"
	StageValidateSyntax       Stage = "validate-syntax"
	StageValidateCompleteness Stage = "validate-completeness"
	StageValidateDeep         Stage = "validate-deep"
	StageScanSecurity         Stage = "scan-security"
	StageParse                Stage = "parse"
	StageEstimateCost         Stage = "estimate-cost"
	StageGenerateConfig       Stage = "generate-config"
)

// AllStages lists the stages in their canonical order.
var AllStages = []Stage{
	StageClarify,
	StagePlan,
	StageGenerate,
	StageValidateSyntax,
	StageValidateCompleteness,
	StageValidateDeep,
	StageScanSecurity,
	StageParse,
	StageEstimateCost,
	StageGenerateConfig,
}

// Validate checks if the stage is one of the known stages.
func (s Stage) Validate() error {
	for _, known := range AllStages {
		if s == known {
			return nil
		}
	}
	return fmt.Errorf("invalid stage: %s", s)
}

// IsValidation returns true for the stages that inspect the current artifact
// and can send the run back to generation.
func (s Stage) IsValidation() bool {
	switch s {
	case StageValidateSyntax, StageValidateCompleteness, StageValidateDeep, StageScanSecurity:
		return true
	default:
		return false
	}
}

// Severity is the normalized severity of a policy violation.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Rank orders severities; a higher rank is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ParseSeverity maps a tool-specific severity label onto a Severity.
// Unknown or empty labels map to SeverityMedium.
func ParseSeverity(label string) Severity {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "CRITICAL":
		return SeverityCritical
	case "HIGH", "ERROR":
		return SeverityHigh
	case "MEDIUM", "MODERATE", "WARNING":
		return SeverityMedium
	case "LOW":
		return SeverityLow
	case "INFO", "INFORMATIONAL", "NOTE":
		return SeverityInfo
	default:
		return SeverityMedium
	}
}

// UnmarshalJSON normalizes severities decoded from external payloads.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseSeverity(raw)
	return nil
}

// SyntaxErrorKind distinguishes the origins of a syntax error.
type SyntaxErrorKind string

const (
	// SyntaxKindInvalid is reported by the syntax validator.
	SyntaxKindInvalid SyntaxErrorKind = "syntax"

	// SyntaxKindDeepValidation is reported by the plan-level deep validator.
	SyntaxKindDeepValidation SyntaxErrorKind = "deep_validation"

	// SyntaxKindGenerationFailure records a collaborator that failed outright.
	SyntaxKindGenerationFailure SyntaxErrorKind = "generation_failure"
)
