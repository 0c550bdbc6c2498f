// Package llm adapts chat models to the workflow's language-model stages:
// clarify, plan, generate and generate-config.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/openfroyo/infraforge/pkg/config"
)

// Supported providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderClaude = "claude"
)

const (
	defaultMaxTokens = 8192
	defaultTimeout   = 120 * time.Second

	// lightweightTemperature keeps clarify and plan output close to
	// deterministic JSON.
	lightweightTemperature float32 = 0.0
)

var (
	// ErrAPIKeyMissing is returned when a hosted provider has no API key.
	ErrAPIKeyMissing = errors.New("llm api key missing")

	// ErrEmptyResponse is returned when the model answers with no content.
	ErrEmptyResponse = errors.New("llm returned an empty response")
)

// ModelConfig selects and tunes one chat model.
type ModelConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// NewChatModel creates the chat model for m.Provider.
func NewChatModel(ctx context.Context, m ModelConfig) (model.BaseChatModel, error) {
	if m.MaxTokens == 0 {
		m.MaxTokens = defaultMaxTokens
	}
	if m.Timeout == 0 {
		m.Timeout = defaultTimeout
	}
	temperature := m.Temperature

	switch m.Provider {
	case ProviderOpenAI, "":
		if m.APIKey == "" && m.BaseURL == "" {
			return nil, fmt.Errorf("%w for provider %s", ErrAPIKeyMissing, ProviderOpenAI)
		}
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:     m.BaseURL,
			APIKey:      m.APIKey,
			Model:       m.Model,
			Temperature: &temperature,
			MaxTokens:   &m.MaxTokens,
			Timeout:     m.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create openai model: %w", err)
		}
		return cm, nil

	case ProviderOllama:
		cm, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: m.BaseURL,
			Model:   m.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama model: %w", err)
		}
		return cm, nil

	case ProviderClaude:
		if m.APIKey == "" {
			return nil, fmt.Errorf("%w for provider %s", ErrAPIKeyMissing, ProviderClaude)
		}
		cfg := &claude.Config{
			APIKey:      m.APIKey,
			Model:       m.Model,
			Temperature: &temperature,
			MaxTokens:   m.MaxTokens,
		}
		if m.BaseURL != "" {
			cfg.BaseURL = &m.BaseURL
		}
		cm, err := claude.NewChatModel(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create claude model: %w", err)
		}
		return cm, nil

	default:
		return nil, fmt.Errorf("unsupported llm provider %q", m.Provider)
	}
}

// Models holds the two model tiers. Lightweight serves clarify and plan;
// Standard serves generate and generate-config.
type Models struct {
	Lightweight model.BaseChatModel
	Standard    model.BaseChatModel
}

// NewModels builds both tiers from the LLM configuration.
func NewModels(ctx context.Context, cfg config.LLMConfig) (*Models, error) {
	base := ModelConfig{
		Provider:  cfg.Provider,
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		MaxTokens: cfg.MaxTokens,
		Timeout:   cfg.Timeout,
	}

	light := base
	light.Model = cfg.LightweightModel
	light.Temperature = lightweightTemperature
	lightweight, err := NewChatModel(ctx, light)
	if err != nil {
		return nil, fmt.Errorf("lightweight model: %w", err)
	}

	std := base
	std.Model = cfg.StandardModel
	std.Temperature = cfg.Temperature
	standard, err := NewChatModel(ctx, std)
	if err != nil {
		return nil, fmt.Errorf("standard model: %w", err)
	}

	return &Models{Lightweight: lightweight, Standard: standard}, nil
}

// complete sends one system and one user message and returns the trimmed reply.
func complete(ctx context.Context, cm model.BaseChatModel, system, user string) (string, error) {
	resp, err := cm.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	})
	if err != nil {
		return "", fmt.Errorf("llm generate failed: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
