package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPoliciesCommand() *cobra.Command {
	var show string

	cmd := &cobra.Command{
		Use:   "policies",
		Short: "List the loaded security policies",
		Long: `List the built-in Rego policies and any custom policies from the
configured policy paths.`,
		Example: `  # List policies
  forge policies

  # Print the Rego source of one policy
  forge policies --show aws-s3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			engine, err := a.newPolicyEngine(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if show != "" {
				p, err := engine.GetPolicy(show)
				if err != nil {
					return err
				}
				fmt.Fprint(out, p.Rego)
				return nil
			}

			policies := engine.ListPolicies()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(policies)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSEVERITY\tENABLED\tCHECKS\tDESCRIPTION")
			for _, p := range policies {
				fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\n",
					p.Name, p.Severity, p.Enabled, strings.Join(p.Checks, ","), p.Description)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&show, "show", "", "print the Rego source of the named policy")

	return cmd
}
