package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/infraforge/pkg/workflow"
)

// ErrInvalidPlaybook is returned when the model output is not a playbook.
var ErrInvalidPlaybook = errors.New("model output is not an ansible playbook")

// ConfigWriter implements workflow.ConfigGenerator. It writes an Ansible
// playbook for the validated Terraform and falls back to FallbackPlaybook
// when the model fails.
type ConfigWriter struct {
	model  model.BaseChatModel
	logger zerolog.Logger
}

// NewConfigWriter creates a playbook writer on the standard model.
func NewConfigWriter(m model.BaseChatModel, logger zerolog.Logger) *ConfigWriter {
	return &ConfigWriter{
		model:  m,
		logger: logger.With().Str("component", "config-writer").Logger(),
	}
}

// GenerateConfig never returns an error: failures degrade to the fallback
// playbook.
func (w *ConfigWriter) GenerateConfig(ctx context.Context, in workflow.ArtifactInput) (workflow.ConfigResult, error) {
	playbook, err := w.write(ctx, in)
	if err != nil {
		w.logger.Warn().Err(err).Msg("Using fallback playbook")
		return workflow.ConfigResult{ConfigArtifact: FallbackPlaybook, Fallback: true}, nil
	}
	return workflow.ConfigResult{ConfigArtifact: playbook}, nil
}

func (w *ConfigWriter) write(ctx context.Context, in workflow.ArtifactInput) (string, error) {
	prompt := fmt.Sprintf("Request: %s\n\nAssumptions:\n%s\nTerraform:\n%s\n",
		in.Request, formatAssumptions(in.Assumptions), in.Artifact)

	reply, err := complete(ctx, w.model, configSystemPrompt, prompt)
	if err != nil {
		return "", err
	}
	return NormalizePlaybook(reply)
}

// NormalizePlaybook strips fences, ensures the document marker and checks
// that the result parses as a non-empty list of plays.
func NormalizePlaybook(s string) (string, error) {
	s = StripFences(s)
	if s == "" {
		return "", ErrEmptyResponse
	}
	if !strings.HasPrefix(s, "---") {
		s = "---\n" + s
	}

	var plays []map[string]interface{}
	if err := yaml.Unmarshal([]byte(s), &plays); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPlaybook, err)
	}
	if len(plays) == 0 {
		return "", ErrInvalidPlaybook
	}
	for i, play := range plays {
		_, hosts := play["hosts"]
		_, imported := play["import_playbook"]
		if !hosts && !imported {
			return "", fmt.Errorf("%w: play %d has no hosts", ErrInvalidPlaybook, i+1)
		}
	}
	return s + "\n", nil
}
