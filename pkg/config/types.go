package config

import (
	"time"

	"github.com/openfroyo/infraforge/pkg/telemetry"
)

// Config is the complete infraforge configuration.
type Config struct {
	Telemetry    telemetry.Config   `koanf:"telemetry"`
	Workflow     WorkflowConfig     `koanf:"workflow"`
	LLM          LLMConfig          `koanf:"llm"`
	Tools        ToolsConfig        `koanf:"tools"`
	Policy       PolicyConfig       `koanf:"policy"`
	Completeness CompletenessConfig `koanf:"completeness"`
	Server       ServerConfig       `koanf:"server"`
}

// WorkflowConfig bounds the generate-validate-remediate loop.
type WorkflowConfig struct {
	// MaxRetries is the ceiling on generation attempts per run.
	MaxRetries int `koanf:"max_retries" validate:"gte=1,lte=20"`

	// StreakThreshold is how many consecutive repeats of one violation are
	// tolerated before the run is stopped.
	StreakThreshold int `koanf:"streak_threshold" validate:"gte=1"`

	// MaxStageFailures stops a run when one stage fails this many times.
	// Zero disables the ceiling.
	MaxStageFailures int `koanf:"max_stage_failures" validate:"gte=0"`

	// RunTimeout is the deadline of a single run.
	RunTimeout time.Duration `koanf:"run_timeout" validate:"gte=0"`
}

// LLMConfig selects the chat models backing the LLM collaborators.
type LLMConfig struct {
	// Provider is one of openai, ollama, claude.
	Provider string `koanf:"provider" validate:"oneof=openai ollama claude"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `koanf:"base_url"`

	// APIKey authenticates against the provider. Resolved from the
	// provider's conventional environment variable when empty.
	APIKey string `koanf:"api_key"`

	// LightweightModel serves the clarify and plan stages.
	LightweightModel string `koanf:"lightweight_model" validate:"required"`

	// StandardModel serves the generate and generate-config stages.
	StandardModel string `koanf:"standard_model" validate:"required"`

	Temperature float32       `koanf:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int           `koanf:"max_tokens" validate:"gte=0"`
	Timeout     time.Duration `koanf:"timeout"`
}

// ToolsConfig locates the external command-line tools.
type ToolsConfig struct {
	TerraformBinary string        `koanf:"terraform_binary" validate:"required"`
	InfracostBinary string        `koanf:"infracost_binary" validate:"required"`
	InfracostAPIKey string        `koanf:"infracost_api_key"`
	Timeout         time.Duration `koanf:"timeout"`

	// DeepValidation enables terraform init/validate/plan when the binary
	// is available.
	DeepValidation bool `koanf:"deep_validation"`
}

// PolicyConfig configures the security scanner.
type PolicyConfig struct {
	// Paths lists extra .rego or .json policy files and directories.
	Paths []string `koanf:"paths"`

	// Disabled lists built-in policies to turn off.
	Disabled []string `koanf:"disabled"`

	// Watch reloads custom policies on change in server mode.
	Watch bool `koanf:"watch"`
}

// CompletenessConfig configures the completeness checker.
type CompletenessConfig struct {
	// RulePaths lists Starlark rule files (*.star) or directories.
	RulePaths []string `koanf:"rule_paths"`

	// RuleTimeout bounds the evaluation of a single rule file.
	RuleTimeout time.Duration `koanf:"rule_timeout"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address         string        `koanf:"address" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// MaxConcurrentRuns bounds the number of runs executing at once.
	MaxConcurrentRuns int `koanf:"max_concurrent_runs" validate:"gte=1"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Telemetry: *telemetry.DefaultConfig(),
		Workflow: WorkflowConfig{
			MaxRetries:      5,
			StreakThreshold: 2,
			RunTimeout:      15 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:         "openai",
			LightweightModel: "gpt-4o-mini",
			StandardModel:    "gpt-4o",
			Temperature:      0.1,
			MaxTokens:        8192,
			Timeout:          2 * time.Minute,
		},
		Tools: ToolsConfig{
			TerraformBinary: "terraform",
			InfracostBinary: "infracost",
			Timeout:         3 * time.Minute,
			DeepValidation:  true,
		},
		Completeness: CompletenessConfig{
			RuleTimeout: 5 * time.Second,
		},
		Server: ServerConfig{
			Address:           ":8080",
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      20 * time.Minute,
			ShutdownTimeout:   30 * time.Second,
			MaxConcurrentRuns: 4,
		},
	}
}

// StarlarkResult represents the result of Starlark execution.
type StarlarkResult struct {
	// Output holds the script's exported globals.
	Output map[string]interface{} `json:"output,omitempty"`

	// ExecutionTime is how long the script took to execute.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error is any error that occurred.
	Error string `json:"error,omitempty"`
}
