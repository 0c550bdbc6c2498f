package terraform

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/infraforge/pkg/sandbox"
	"github.com/openfroyo/infraforge/pkg/telemetry"
	"github.com/openfroyo/infraforge/pkg/workflow"
)

// maxToolOutput bounds tool output copied into error messages.
const maxToolOutput = 500

// DeepValidator runs terraform init, validate and plan in a private workspace
// and checks that the plan creates a plausible number of resources.
type DeepValidator struct {
	runner *sandbox.Runner
	binary string
	logger zerolog.Logger
}

// NewDeepValidator creates a deep validator. An empty binary uses "terraform".
func NewDeepValidator(runner *sandbox.Runner, binary string, logger zerolog.Logger) *DeepValidator {
	if binary == "" {
		binary = "terraform"
	}
	return &DeepValidator{
		runner: runner,
		binary: binary,
		logger: telemetry.ComponentLogger(logger, "deep-validator"),
	}
}

// Available reports whether the terraform binary can be executed.
func (v *DeepValidator) Available() bool {
	return v.runner.Available(v.binary)
}

// ValidateDeep implements workflow.DeepValidator. Validation failures are
// returned in DeepResult.Error; an error return means the tool could not run.
func (v *DeepValidator) ValidateDeep(ctx context.Context, in workflow.ArtifactInput) (workflow.DeepResult, error) {
	if strings.TrimSpace(in.Artifact) == "" {
		return workflow.DeepResult{Error: "No Terraform code to validate"}, nil
	}

	ws, err := sandbox.NewWorkspace("infraforge-deep")
	if err != nil {
		return workflow.DeepResult{}, err
	}
	defer func() {
		if err := ws.Close(); err != nil {
			v.logger.Warn().Err(err).Str("dir", ws.Dir).Msg("Failed to clean up workspace")
		}
	}()

	if _, err := ws.WriteFile(DefaultFilename, in.Artifact); err != nil {
		return workflow.DeepResult{}, err
	}

	run := func(timeout time.Duration, args ...string) (*sandbox.Result, error) {
		return v.runner.Run(ctx, sandbox.Command{
			Name:    v.binary,
			Args:    args,
			Dir:     ws.Dir,
			Env:     map[string]string{"TF_IN_AUTOMATION": "1"},
			Timeout: timeout,
		})
	}

	res, err := run(120*time.Second, "init", "-no-color", "-input=false")
	if err != nil {
		return workflow.DeepResult{}, err
	}
	if !res.Success() {
		return workflow.DeepResult{Error: "terraform init failed: " + clip(res.Output())}, nil
	}

	res, err = run(60*time.Second, "validate", "-json", "-no-color")
	if err != nil {
		return workflow.DeepResult{}, err
	}
	if msg := validateMessage(res); msg != "" {
		return workflow.DeepResult{Error: msg}, nil
	}

	res, err = run(180*time.Second, "plan", "-out", "tfplan", "-no-color", "-input=false", "-lock=false")
	if err != nil {
		return workflow.DeepResult{}, err
	}
	if !res.Success() {
		return workflow.DeepResult{Error: "terraform plan failed: " + clip(res.Output())}, nil
	}
	planText := res.Stdout

	planned := -1
	show, err := run(60*time.Second, "show", "-json", "tfplan")
	if err == nil && show.Success() {
		if n, perr := CountPlannedCreates([]byte(show.Stdout)); perr == nil {
			planned = n
		}
	}
	if planned < 0 {
		v.logger.Warn().Msg("Could not read plan JSON, counting resources from plan text")
		planned = CountPlannedFromText(planText)
	}

	if msg := CheckResourceCount(in.Request, planned); msg != "" {
		return workflow.DeepResult{Error: msg, PlannedResources: planned}, nil
	}

	v.logger.Debug().Int("planned_resources", planned).Msg("Deep validation passed")
	return workflow.DeepResult{PlannedResources: planned}, nil
}

type validateOutput struct {
	Valid       bool `json:"valid"`
	Diagnostics []struct {
		Severity string `json:"severity"`
		Summary  string `json:"summary"`
		Detail   string `json:"detail"`
		Range    *struct {
			Start struct {
				Line int `json:"line"`
			} `json:"start"`
		} `json:"range"`
	} `json:"diagnostics"`
}

// validateMessage returns the first error of `terraform validate -json`, or
// an empty string when the configuration is valid.
func validateMessage(res *sandbox.Result) string {
	var out validateOutput
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		if res.Success() {
			return ""
		}
		return "terraform validate failed: " + clip(res.Output())
	}
	if out.Valid {
		return ""
	}

	for _, d := range out.Diagnostics {
		if d.Severity != "" && d.Severity != "error" {
			continue
		}
		line := 0
		if d.Range != nil {
			line = d.Range.Start.Line
		}
		return clip(FormatDiagnostic(d.Summary, d.Detail, line))
	}
	return "Validation failed with unknown error"
}

// CountPlannedCreates counts the resource changes of a `terraform show -json`
// plan whose actions include create.
func CountPlannedCreates(planJSON []byte) (int, error) {
	var plan struct {
		ResourceChanges []struct {
			Address string `json:"address"`
			Change  struct {
				Actions []string `json:"actions"`
			} `json:"change"`
		} `json:"resource_changes"`
	}
	if err := json.Unmarshal(planJSON, &plan); err != nil {
		return 0, fmt.Errorf("failed to decode plan: %w", err)
	}

	n := 0
	for _, rc := range plan.ResourceChanges {
		for _, action := range rc.Change.Actions {
			if action == "create" {
				n++
				break
			}
		}
	}
	return n, nil
}

var planSummary = regexp.MustCompile(`Plan:\s*(\d+)\s*to add`)

// CountPlannedFromText reads "Plan: N to add" from plan output.
func CountPlannedFromText(out string) int {
	m := planSummary.FindStringSubmatch(out)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// CheckResourceCount rejects plans too small for the requested kind of
// infrastructure. It returns an empty string when count is plausible.
func CheckResourceCount(request string, count int) string {
	req := strings.ToLower(request)

	switch {
	case containsAny(req, "kubernetes", "k8s", "eks", "aks", "gke"):
		if count < 8 {
			return fmt.Sprintf("Incomplete Kubernetes infrastructure: Only %d resources (need 8+ for cluster with networking, IAM, and node groups)", count)
		}
	case containsAny(req, "database", "rds", "postgresql", "mysql", "sql"):
		if count < 3 {
			return fmt.Sprintf("Incomplete database infrastructure: Only %d resources (need 3+ for DB instance, subnet group, and security group)", count)
		}
	case containsAny(req, "load balancer", "alb", "nlb", "elb"):
		if count < 4 {
			return fmt.Sprintf("Incomplete load balancer setup: Only %d resources (need 4+ for LB, target groups, listeners, and health checks)", count)
		}
	}

	if count < 2 {
		return fmt.Sprintf("Infrastructure appears incomplete: Only %d resource(s)", count)
	}
	return ""
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxToolOutput {
		return s
	}
	return s[:maxToolOutput]
}
