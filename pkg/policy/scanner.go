package policy

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/infraforge/pkg/terraform"
	"github.com/openfroyo/infraforge/pkg/workflow"
)

// Scanner runs the policy engine over generated Terraform for the
// scan-security stage.
type Scanner struct {
	engine *Engine
	logger zerolog.Logger
}

// NewScanner creates a scanner backed by engine.
func NewScanner(engine *Engine, logger zerolog.Logger) *Scanner {
	return &Scanner{
		engine: engine,
		logger: logger.With().Str("component", "policy-scanner").Logger(),
	}
}

// Scan parses the artifact and returns one raw finding per failed check.
func (s *Scanner) Scan(ctx context.Context, in workflow.ArtifactInput) (workflow.ScanResult, error) {
	report, err := s.ScanArtifact(ctx, in.Artifact, &Context{
		Request:       in.Request,
		Environment:   in.Assumptions["environment"],
		CloudProvider: in.Assumptions["cloud_provider"],
	})
	if err != nil {
		return workflow.ScanResult{}, err
	}

	raw := make([]workflow.RawFinding, 0, len(report.Findings))
	for _, f := range report.Findings {
		raw = append(raw, workflow.RawFinding{
			CheckID:   f.CheckID,
			CheckName: f.CheckName,
			Resource:  f.Resource,
			Severity:  string(f.Severity),
			Guideline: f.Guideline,
		})
	}
	return workflow.ScanResult{RawFindings: raw}, nil
}

// ScanArtifact evaluates every enabled policy against a Terraform artifact.
func (s *Scanner) ScanArtifact(ctx context.Context, artifact string, evalCtx *Context) (*Report, error) {
	module, diags := terraform.ParseString(artifact)
	if diags.HasErrors() {
		return nil, fmt.Errorf("scan failed: %s", terraform.FormatDiagnostics(diags))
	}

	report, err := s.engine.Evaluate(ctx, &Input{
		Resources: module.Resources,
		Context:   evalCtx,
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	for _, w := range report.Warnings {
		s.logger.Warn().Msg(w)
	}
	s.logger.Debug().
		Int("resources", len(module.Resources)).
		Int("findings", len(report.Findings)).
		Msg("Artifact scanned")

	return report, nil
}
