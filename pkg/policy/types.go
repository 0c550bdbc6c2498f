package policy

import (
	"time"

	"github.com/openfroyo/infraforge/pkg/terraform"
)

// Severity represents the severity level of a policy finding.
type Severity string

const (
	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "INFO"

	// SeverityLow is for hygiene findings such as missing tags.
	SeverityLow Severity = "LOW"

	// SeverityMedium is for hardening gaps that should be reviewed.
	SeverityMedium Severity = "MEDIUM"

	// SeverityHigh is for findings that expose data or weaken encryption.
	SeverityHigh Severity = "HIGH"

	// SeverityCritical is for findings that expose resources to the internet.
	SeverityCritical Severity = "CRITICAL"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Its deny set yields findings.
	Rego string `json:"rego"`

	// Severity is the default severity for findings that carry none.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Checks lists the check IDs the policy can report.
	Checks []string `json:"checks,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Finding is a single failed check against one resource.
type Finding struct {
	// CheckID is the stable identifier of the check (e.g. "IF_AWS_S3_002").
	CheckID string `json:"check_id"`

	// CheckName is the human-readable check title.
	CheckName string `json:"check_name"`

	// Resource is the address of the offending resource.
	Resource string `json:"resource"`

	Severity Severity `json:"severity"`

	// Guideline explains how to fix the finding.
	Guideline string `json:"guideline,omitempty"`

	// Policy is the name of the policy that produced the finding.
	Policy string `json:"policy"`
}

// Report is the result of evaluating every enabled policy against a module.
type Report struct {
	Findings []Finding `json:"findings"`

	// Warnings lists policies that failed to evaluate.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	EvaluatedAt time.Time     `json:"evaluated_at"`
	Duration    time.Duration `json:"duration"`
}

// CountBySeverity breaks down findings by severity.
func (r *Report) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, f := range r.Findings {
		counts[f.Severity]++
	}
	return counts
}

// Input is the document policies are evaluated against.
type Input struct {
	Resources []terraform.Resource

	// Context provides additional evaluation context.
	Context *Context
}

// Context provides context information for policy evaluation.
type Context struct {
	// Request is the natural-language request the module was generated for.
	Request string `json:"request,omitempty"`

	// Environment is the target environment (e.g. "production").
	Environment string `json:"environment,omitempty"`

	// CloudProvider is the target cloud.
	CloudProvider string `json:"cloud_provider,omitempty"`
}
