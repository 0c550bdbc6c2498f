// Package report renders the final state of a workflow run for callers: the
// JSON returned by the HTTP API and the files written by the CLI.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/infraforge/pkg/workflow"
)

// Output file names written by WriteDir.
const (
	TerraformFile = "main.tf"
	PlaybookFile  = "playbook.yml"
	ReportFile    = "report.json"
)

// Report is the caller-facing summary of one run.
type Report struct {
	RunID   string          `json:"run_id"`
	Request string          `json:"request"`
	Status  workflow.Status `json:"status"`
	Success bool            `json:"success"`

	// IsClean is true when the final artifact carries no violations and no
	// validation error.
	IsClean bool `json:"is_clean"`

	TerraformCode   string `json:"terraform_code"`
	AnsiblePlaybook string `json:"ansible_playbook"`
	CostEstimate    string `json:"cost_estimate"`

	ValidationError   string                     `json:"validation_error,omitempty"`
	Violations        []workflow.ViolationRecord `json:"violations"`
	SeverityCounts    map[string]int             `json:"severity_counts"`
	MissingComponents []string                   `json:"missing_components"`

	RetryCount         int               `json:"retry_count"`
	InfrastructureType string            `json:"infrastructure_type"`
	PlannedResources   int               `json:"planned_resources"`
	Assumptions        map[string]string `json:"assumptions"`
	Graph              workflow.Graph    `json:"graph"`

	Failure *workflow.WorkflowError `json:"failure,omitempty"`
	Logs    []string                `json:"logs"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Duration   string    `json:"duration"`
}

// FromState builds the report for a finished run.
func FromState(s *workflow.State) *Report {
	r := &Report{
		RunID:             s.RunID,
		Request:           s.Request,
		Status:            s.Status,
		Success:           s.Status == workflow.StatusSucceeded,
		TerraformCode:     s.Artifact,
		AnsiblePlaybook:   s.ConfigArtifact,
		CostEstimate:      s.MonthlyCost,
		Violations:        nonNilViolations(s.Violations),
		SeverityCounts:    workflow.CountBySeverity(s.Violations),
		MissingComponents: nonNilStrings(s.CompletenessGap),
		RetryCount:        s.RetryCount,
		PlannedResources:  s.PlannedResources,
		Assumptions:       s.Assumptions,
		Graph:             workflow.Graph{Nodes: []workflow.GraphNode{}, Edges: []workflow.GraphEdge{}},
		Failure:           s.Failure,
		Logs:              nonNilStrings(s.Logs),
		StartedAt:         s.StartedAt,
		FinishedAt:        s.FinishedAt,
	}
	if r.CostEstimate == "" {
		r.CostEstimate = workflow.CostUnavailable
	}
	if s.SyntaxError != nil {
		r.ValidationError = s.SyntaxError.Message
	}
	r.IsClean = r.ValidationError == "" && len(s.Violations) == 0 && len(s.CompletenessGap) == 0
	if s.Plan != nil {
		r.InfrastructureType = s.Plan.InfrastructureType
	}
	if s.Graph != nil {
		r.Graph = *s.Graph
	}
	if !s.FinishedAt.IsZero() {
		r.Duration = s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond).String()
	}
	return r
}

// Encode writes the report as "json" or "yaml".
func (r *Report) Encode(w io.Writer, format string) error {
	switch format {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		// Round-trip through JSON so YAML keys match the JSON field names.
		raw, err := json.Marshal(r)
		if err != nil {
			return err
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}
}

// WriteDir writes main.tf, playbook.yml and report.json into dir, creating it
// when needed. Empty artifacts are skipped. It returns the written paths.
func (r *Report) WriteDir(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var written []string
	write := func(name string, data []byte) error {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		written = append(written, path)
		return nil
	}

	if r.TerraformCode != "" {
		if err := write(TerraformFile, []byte(r.TerraformCode)); err != nil {
			return written, err
		}
	}
	if r.AnsiblePlaybook != "" {
		if err := write(PlaybookFile, []byte(r.AnsiblePlaybook)); err != nil {
			return written, err
		}
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return written, fmt.Errorf("failed to encode report: %w", err)
	}
	if err := write(ReportFile, append(data, '\n')); err != nil {
		return written, err
	}
	return written, nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func nonNilViolations(in []workflow.ViolationRecord) []workflow.ViolationRecord {
	if in == nil {
		return []workflow.ViolationRecord{}
	}
	return in
}
