package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override. A double underscore
	// separates nesting levels: INFRAFORGE_WORKFLOW__MAX_RETRIES sets
	// workflow.max_retries.
	EnvPrefix = "INFRAFORGE_"

	maxConfigFileSize = 1024 * 1024
)

// ErrConfigTooLarge is returned for configuration files over 1MB.
var ErrConfigTooLarge = errors.New("config file exceeds 1MB")

var validate = validator.New()

// Load builds the configuration from defaults, the YAML file at path (when
// path is not empty) and INFRAFORGE_ environment variables, in increasing
// precedence. Provider API keys left empty are read from their conventional
// environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveSecrets(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks field constraints and the telemetry settings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	return c.Telemetry.Validate()
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, ErrConfigTooLarge
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// envKey maps INFRAFORGE_LLM__STANDARD_MODEL to llm.standard_model.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

var apiKeyEnv = map[string]string{
	"openai": "OPENAI_API_KEY",
	"claude": "ANTHROPIC_API_KEY",
}

func resolveSecrets(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		if name, ok := apiKeyEnv[cfg.LLM.Provider]; ok {
			cfg.LLM.APIKey = os.Getenv(name)
		}
	}
	if cfg.Tools.InfracostAPIKey == "" {
		cfg.Tools.InfracostAPIKey = os.Getenv("INFRACOST_API_KEY")
	}
}
