package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"

	"github.com/openfroyo/infraforge/pkg/workflow"
)

// Generator implements workflow.Generator on the standard model.
type Generator struct {
	model  model.BaseChatModel
	logger zerolog.Logger
}

// NewGenerator creates a Terraform generator.
func NewGenerator(m model.BaseChatModel, logger zerolog.Logger) *Generator {
	return &Generator{
		model:  m,
		logger: logger.With().Str("component", "generator").Logger(),
	}
}

// Generate writes a new artifact in creation mode, or revises the prior
// artifact in remediation mode.
func (g *Generator) Generate(ctx context.Context, gen workflow.GenerationContext) (workflow.GenerateResult, error) {
	if err := gen.Validate(); err != nil {
		return workflow.GenerateResult{}, err
	}

	reply, err := complete(ctx, g.model, generatorSystemPrompt, BuildGenerationPrompt(gen))
	if err != nil {
		return workflow.GenerateResult{}, err
	}
	artifact := StripFences(reply)
	if artifact == "" {
		return workflow.GenerateResult{}, ErrEmptyResponse
	}

	g.logger.Debug().
		Str("mode", string(gen.Mode)).
		Int("attempt", gen.Attempt).
		Int("bytes", len(artifact)).
		Msg("Artifact generated")
	return workflow.GenerateResult{Artifact: artifact + "\n"}, nil
}

// BuildGenerationPrompt renders the user prompt for a generation context.
func BuildGenerationPrompt(gen workflow.GenerationContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Request: %s\n\n", gen.Request)
	fmt.Fprintf(&b, "Assumptions:\n%s\n", formatAssumptions(gen.Assumptions))

	if gen.Plan != nil && len(gen.Plan.Components) > 0 {
		b.WriteString("Planned components (in execution order):\n")
		byName := make(map[string]int, len(gen.Plan.Components))
		for i, c := range gen.Plan.Components {
			byName[c.Name] = i
		}
		order := gen.Plan.ExecutionOrder
		if len(order) == 0 {
			for _, c := range gen.Plan.Components {
				order = append(order, c.Name)
			}
		}
		for _, name := range order {
			i, ok := byName[name]
			if !ok {
				continue
			}
			c := gen.Plan.Components[i]
			fmt.Fprintf(&b, "- %s (%s)", c.Name, c.ResourceType)
			if c.Description != "" {
				fmt.Fprintf(&b, ": %s", c.Description)
			}
			if len(c.Dependencies) > 0 {
				fmt.Fprintf(&b, " [depends on %s]", strings.Join(c.Dependencies, ", "))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if gen.Mode != workflow.ModeRemediation {
		b.WriteString("Write the complete Terraform configuration.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "This is attempt %d. Fix the previous configuration below.\n\n", gen.Attempt)

	if gen.SyntaxError != nil {
		fmt.Fprintf(&b, "Validation error (%s):\n%s\n\n", gen.SyntaxError.Kind, gen.SyntaxError.Message)
	}
	if len(gen.CompletenessGap) > 0 {
		b.WriteString("Completeness gaps:\n")
		for _, gap := range gen.CompletenessGap {
			fmt.Fprintf(&b, "- %s\n", gap)
		}
		b.WriteString("\n")
	}
	if len(gen.Violations) > 0 {
		b.WriteString("Security violations:\n")
		for _, v := range gen.Violations {
			fmt.Fprintf(&b, "- [%s] %s on %s: %s", v.Severity, v.ID, v.AffectedResource, v.Title)
			if v.Guidance != "" {
				fmt.Fprintf(&b, " (fix: %s)", v.Guidance)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if d := gen.Directive; d != nil {
		b.WriteString("Modification rules:\n")
		if len(d.PreserveResources) > 0 {
			fmt.Fprintf(&b, "- Keep these resources with the same type and name: %s\n",
				strings.Join(d.PreserveResources, ", "))
		}
		if len(d.TargetResources) > 0 {
			fmt.Fprintf(&b, "- Fix the findings by editing these resource blocks in place: %s\n",
				strings.Join(d.TargetResources, ", "))
		}
		if d.ForbidDerivativeNames {
			b.WriteString("- Do not add copies such as <name>_fixed or <name>_secure.\n")
		}
		if d.Instruction != "" {
			fmt.Fprintf(&b, "- %s\n", d.Instruction)
		}
		b.WriteString("\n")
	}

	if gen.PriorArtifact != nil {
		fmt.Fprintf(&b, "Previous configuration:\n%s\n\n", *gen.PriorArtifact)
	}
	b.WriteString("Return the complete corrected Terraform configuration.\n")
	return b.String()
}
