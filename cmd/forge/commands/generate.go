package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/infraforge/pkg/plan"
	"github.com/openfroyo/infraforge/pkg/report"
	"github.com/openfroyo/infraforge/pkg/workflow"
)

func newGenerateCommand() *cobra.Command {
	var (
		outDir  string
		dotFile string
		format  string
	)

	cmd := &cobra.Command{
		Use:   "generate <request>",
		Short: "Generate validated Terraform and a playbook from a request",
		Long: `Run one workflow for a natural-language infrastructure request.

The run writes into the output directory:
  - main.tf       the final Terraform configuration
  - playbook.yml  the Ansible configuration playbook
  - report.json   status, violations, cost estimate and run log

The command exits non-zero when the run fails.`,
		Example: `  # Generate into ./out
  forge generate "Create an S3 bucket for application logs" -o out

  # Also write the planned component graph
  forge generate "Web server behind a load balancer" -o out --plan-dot plan.dot

  # Print the report as YAML
  forge generate "Postgres database for staging" -o out --format yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := strings.Join(args, " ")

			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			policies, err := a.newPolicyEngine(cmd.Context())
			if err != nil {
				return err
			}
			engine, err := a.newWorkflowEngine(cmd.Context(), policies)
			if err != nil {
				return err
			}

			state, err := engine.Run(cmd.Context(), request)
			if err != nil {
				return err
			}

			rep := report.FromState(state)
			written, err := rep.WriteDir(outDir)
			if err != nil {
				return err
			}
			for _, path := range written {
				log.Info().Str("path", path).Msg("Wrote output")
			}

			if dotFile != "" && state.Plan != nil && len(state.Plan.Components) > 0 {
				if err := writePlanDOT(state.Plan, dotFile); err != nil {
					return err
				}
				log.Info().Str("path", dotFile).Msg("Wrote plan graph")
			}

			if jsonOutput {
				format = "json"
			}
			if format != "" {
				if err := rep.Encode(cmd.OutOrStdout(), format); err != nil {
					return err
				}
			} else {
				printSummary(cmd, rep)
			}

			if state.Status != workflow.StatusSucceeded {
				return fmt.Errorf("workflow %s: %v", state.Status, state.Failure)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "out", "output directory")
	cmd.Flags().StringVar(&dotFile, "plan-dot", "", "write the planned component graph as DOT")
	cmd.Flags().StringVar(&format, "format", "", "print the full report (json, yaml)")

	return cmd
}

func writePlanDOT(p *plan.Plan, path string) error {
	resolved := *p
	dag, err := plan.Resolve(&resolved)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(dag.ToDOT()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func printSummary(cmd *cobra.Command, rep *report.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:        %s\n", rep.RunID)
	fmt.Fprintf(out, "Status:     %s\n", rep.Status)
	fmt.Fprintf(out, "Attempts:   %d\n", rep.RetryCount)
	fmt.Fprintf(out, "Cost:       %s\n", rep.CostEstimate)
	if rep.InfrastructureType != "" {
		fmt.Fprintf(out, "Type:       %s\n", rep.InfrastructureType)
	}
	if rep.ValidationError != "" {
		fmt.Fprintf(out, "Validation: %s\n", rep.ValidationError)
	}
	if len(rep.Violations) > 0 {
		fmt.Fprintf(out, "Violations: %d\n", len(rep.Violations))
		for _, v := range rep.Violations {
			fmt.Fprintf(out, "  [%s] %s %s\n", v.Severity, v.ID, v.AffectedResource)
		}
	}
	for _, gap := range rep.MissingComponents {
		fmt.Fprintf(out, "Missing:    %s\n", gap)
	}
	if rep.Failure != nil {
		fmt.Fprintf(out, "Failure:    %s\n", rep.Failure.Error())
	}
}
