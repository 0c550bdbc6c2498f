package terraform

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/rs/zerolog"

	"github.com/openfroyo/infraforge/pkg/telemetry"
	"github.com/openfroyo/infraforge/pkg/workflow"
)

var topLevelBlocks = map[string]int{
	"terraform": 0,
	"provider":  1,
	"resource":  2,
	"data":      2,
	"variable":  1,
	"output":    1,
	"locals":    0,
	"module":    1,
	"moved":     0,
	"import":    0,
	"check":     1,
	"removed":   0,
}

// SyntaxValidator checks that an artifact is well-formed Terraform.
type SyntaxValidator struct {
	logger zerolog.Logger
}

// NewSyntaxValidator creates a syntax validator.
func NewSyntaxValidator(logger zerolog.Logger) *SyntaxValidator {
	return &SyntaxValidator{logger: telemetry.ComponentLogger(logger, "syntax-validator")}
}

// ValidateSyntax implements workflow.SyntaxValidator.
func (v *SyntaxValidator) ValidateSyntax(_ context.Context, in workflow.ArtifactInput) (workflow.SyntaxResult, error) {
	diags := Validate([]byte(in.Artifact), DefaultFilename)
	if !diags.HasErrors() {
		return workflow.SyntaxResult{}, nil
	}

	msg := FormatDiagnostics(diags)
	v.logger.Debug().Int("errors", len(diags.Errs())).Str("first", msg).Msg("Artifact failed syntax validation")
	return workflow.SyntaxResult{Error: msg}, nil
}

// Validate parses src and checks the block structure terraform itself would
// reject before contacting any provider.
func Validate(src []byte, filename string) hcl.Diagnostics {
	if filename == "" {
		filename = DefaultFilename
	}
	if strings.TrimSpace(string(src)) == "" {
		return hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Empty configuration",
			Detail:   "The configuration does not contain any blocks.",
		}}
	}

	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return diags
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return diags
	}

	names := make([]string, 0, len(body.Attributes))
	for name := range body.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rng := body.Attributes[name].SrcRange
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Unsupported argument",
			Detail:   fmt.Sprintf("An argument named %q is not expected at the top level.", name),
			Subject:  &rng,
		})
	}

	declared := map[string]hcl.Range{}
	resources := 0
	for _, block := range body.Blocks {
		rng := block.DefRange()

		labels, known := topLevelBlocks[block.Type]
		if !known {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Unsupported block type",
				Detail:   fmt.Sprintf("Blocks of type %q are not expected here.", block.Type),
				Subject:  &rng,
			})
			continue
		}
		if len(block.Labels) != labels {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  fmt.Sprintf("Invalid %s block", block.Type),
				Detail:   fmt.Sprintf("A %s block requires %d label(s), got %d.", block.Type, labels, len(block.Labels)),
				Subject:  &rng,
			})
			continue
		}
		if block.Type != "resource" && block.Type != "data" {
			continue
		}

		if block.Type == "resource" {
			resources++
		}
		addr := strings.Join(append([]string{block.Type}, block.Labels...), ".")
		if prev, dup := declared[addr]; dup {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  fmt.Sprintf("Duplicate %s %q configuration", block.Type, block.Labels[0]),
				Detail: fmt.Sprintf("A %s resource named %q was already declared at %s. Resource names must be unique per type in each module.",
					block.Labels[0], block.Labels[1], prev.String()),
				Subject: &rng,
			})
			continue
		}
		declared[addr] = rng
	}

	if resources == 0 && !diags.HasErrors() {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "No resources defined",
			Detail:   "The configuration must declare at least one resource block.",
		})
	}

	return diags
}

// FormatDiagnostics renders the first error as "Error at line N: summary. detail".
func FormatDiagnostics(diags hcl.Diagnostics) string {
	for _, d := range diags {
		if d.Severity == hcl.DiagError {
			return FormatDiagnostic(d.Summary, d.Detail, subjectLine(d))
		}
	}
	return ""
}

// FormatDiagnostic renders one diagnostic. A non-positive line is omitted.
func FormatDiagnostic(summary, detail string, line int) string {
	summary = strings.TrimSuffix(strings.TrimSpace(summary), ".")
	detail = strings.TrimSpace(detail)

	var msg string
	if line > 0 {
		msg = fmt.Sprintf("Error at line %d: %s. %s", line, summary, detail)
	} else {
		msg = fmt.Sprintf("%s. %s", summary, detail)
	}
	return strings.TrimSpace(msg)
}

func subjectLine(d *hcl.Diagnostic) int {
	if d.Subject == nil {
		return 0
	}
	return d.Subject.Start.Line
}
