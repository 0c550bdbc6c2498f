package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openfroyo/infraforge/pkg/policy"
	"github.com/openfroyo/infraforge/pkg/terraform"
	"github.com/openfroyo/infraforge/pkg/workflow"
)

func newScanCommand() *cobra.Command {
	var (
		environment string
		failOn      string
	)

	cmd := &cobra.Command{
		Use:   "scan <file.tf>",
		Short: "Check syntax and security policies of an existing Terraform file",
		Long: `Scan an existing Terraform file with the same syntax validator and Rego
policies used during generation.

The command exits non-zero when the file does not parse or when a finding
is at or above the --fail-on severity.`,
		Example: `  # Scan a file
  forge scan main.tf

  # Only fail on critical findings
  forge scan main.tf --fail-on critical

  # Machine-readable output
  forge scan main.tf --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			if diags := terraform.Validate(src, args[0]); diags.HasErrors() {
				return fmt.Errorf("syntax error: %s", terraform.FormatDiagnostics(diags))
			}

			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			engine, err := a.newPolicyEngine(cmd.Context())
			if err != nil {
				return err
			}
			rep, err := policy.NewScanner(engine, a.logger).ScanArtifact(cmd.Context(), string(src), &policy.Context{
				Environment: environment,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(rep); err != nil {
					return err
				}
			} else {
				printFindings(cmd, rep)
			}

			threshold := workflow.ParseSeverity(failOn)
			for _, f := range rep.Findings {
				if workflow.ParseSeverity(string(f.Severity)).Rank() >= threshold.Rank() {
					return fmt.Errorf("%d finding(s), at least one at or above %s", len(rep.Findings), threshold)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&environment, "environment", "", "environment passed to policies")
	cmd.Flags().StringVar(&failOn, "fail-on", "low", "lowest severity that fails the scan")

	return cmd
}

func printFindings(cmd *cobra.Command, rep *policy.Report) {
	out := cmd.OutOrStdout()
	for _, w := range rep.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	if len(rep.Findings) == 0 {
		fmt.Fprintf(out, "No findings (%d policies evaluated)\n", len(rep.EvaluatedPolicies))
		return
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEVERITY\tCHECK\tRESOURCE\tTITLE")
	for _, f := range rep.Findings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Severity, f.CheckID, f.Resource, f.CheckName)
	}
	_ = tw.Flush()
}
