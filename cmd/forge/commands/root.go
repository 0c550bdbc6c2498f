package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	logLevel   string
	logFormat  string
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "forge",
		Short: "InfraForge - self-correcting infrastructure generation",
		Long: `InfraForge turns a natural-language request into Terraform and an Ansible
playbook, then validates, scans and repairs the result until it is clean.

Each run:
  - Clarifies the request and plans the components
  - Generates Terraform with a language model
  - Checks syntax, completeness and terraform plan
  - Scans against built-in and custom Rego policies
  - Regenerates with targeted feedback until clean or out of budget
  - Estimates monthly cost and writes a configuration playbook`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newGenerateCommand())
	rootCmd.AddCommand(newScanCommand())
	rootCmd.AddCommand(newPoliciesCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}
