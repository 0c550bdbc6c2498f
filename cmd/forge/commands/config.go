package commands

import (
	"encoding/json"
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"

	"github.com/openfroyo/infraforge/pkg/config"
)

const redacted = "********"

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Load the configuration from defaults, the config file and INFRAFORGE_*
environment variables, validate it, and print the result with secrets redacted.
The output uses the same keys as the config file.`,
		Example: `  # Show the effective configuration
  forge config -c infraforge.yaml

  # Nested keys come from the environment with "__" separators
  INFRAFORGE_LLM__PROVIDER=ollama forge config`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			redactSecrets(cfg)

			k := koanf.New(".")
			if err := k.Load(structs.Provider(cfg, "koanf"), nil); err != nil {
				return fmt.Errorf("failed to flatten configuration: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(k.Raw())
			}
			data, err := k.Marshal(yaml.Parser())
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}
	return cmd
}

func redactSecrets(cfg *config.Config) {
	if cfg.LLM.APIKey != "" {
		cfg.LLM.APIKey = redacted
	}
	if cfg.Tools.InfracostAPIKey != "" {
		cfg.Tools.InfracostAPIKey = redacted
	}
}
