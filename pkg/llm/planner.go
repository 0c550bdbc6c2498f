package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"

	"github.com/openfroyo/infraforge/pkg/config"
	"github.com/openfroyo/infraforge/pkg/plan"
	"github.com/openfroyo/infraforge/pkg/workflow"
)

// Planner implements workflow.Planner on the lightweight model.
type Planner struct {
	model   model.BaseChatModel
	schemas *config.SchemaRegistry
	logger  zerolog.Logger
}

// NewPlanner creates a planner. A nil registry skips schema validation.
func NewPlanner(m model.BaseChatModel, schemas *config.SchemaRegistry, logger zerolog.Logger) *Planner {
	return &Planner{
		model:   m,
		schemas: schemas,
		logger:  logger.With().Str("component", "planner").Logger(),
	}
}

type planDocument struct {
	InfrastructureType string                 `json:"infrastructure_type"`
	CloudProvider      string                 `json:"cloud_provider"`
	Components         []plan.Component       `json:"components"`
	ExecutionOrder     []string               `json:"execution_order"`
	Assumptions        map[string]interface{} `json:"assumptions"`
}

// Plan asks the model for the component breakdown and recomputes the
// execution order from the declared dependencies.
func (p *Planner) Plan(ctx context.Context, request string, assumptions map[string]string) (workflow.PlanResult, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Request: %s\n\nAssumptions:\n%s", request, formatAssumptions(assumptions))

	reply, err := complete(ctx, p.model, plannerSystemPrompt, prompt.String())
	if err != nil {
		return workflow.PlanResult{}, err
	}

	raw, err := decodeValidated(ctx, p.schemas, config.SchemaPlan, reply)
	if err != nil {
		return workflow.PlanResult{}, fmt.Errorf("invalid plan: %w", err)
	}

	var doc planDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return workflow.PlanResult{}, fmt.Errorf("invalid plan: %w", err)
	}

	pl := &plan.Plan{
		InfrastructureType: doc.InfrastructureType,
		CloudProvider:      doc.CloudProvider,
		Components:         doc.Components,
		ExecutionOrder:     doc.ExecutionOrder,
		Assumptions:        stringifyValues(doc.Assumptions),
	}
	if pl.InfrastructureType == "" {
		pl.InfrastructureType = plan.InfrastructureUnknown
	}
	if dropped := pl.PruneDanglingDependencies(); len(dropped) > 0 {
		p.logger.Warn().Strs("dependencies", dropped).Msg("Dropped dependencies on unplanned components")
	}
	if _, err := plan.Resolve(pl); err != nil {
		return workflow.PlanResult{}, err
	}

	p.logger.Debug().
		Str("infrastructure_type", pl.InfrastructureType).
		Int("components", len(pl.Components)).
		Msg("Plan created")
	return workflow.PlanResult{Plan: pl}, nil
}
