package workflow

import (
	"errors"
	"fmt"
)

// Recovery is how the engine treats a collaborator that returns an error.
type Recovery string

const (
	// RecoveryRemediate converts the error into a generation_failure syntax
	// error so the next generation attempt repairs it.
	RecoveryRemediate Recovery = "remediate"

	// RecoveryDegrade replaces the output with the stage's fallback value.
	RecoveryDegrade Recovery = "degrade"
)

// StageSpec describes one registered stage.
type StageSpec struct {
	Stage Stage

	// Collaborator names the external tool kind the stage delegates to.
	Collaborator string

	Recovery Recovery

	// Enabled is false when no collaborator is configured for the stage.
	Enabled bool
}

// StageRegistry is the ordered catalog of stages with their collaborators.
type StageRegistry struct {
	specs  map[Stage]StageSpec
	collab Collaborators
}

// ErrGeneratorRequired is returned when no generation collaborator is supplied.
var ErrGeneratorRequired = errors.New("a generator collaborator is required")

// NewStageRegistry registers the ten stages against the given collaborators.
func NewStageRegistry(c Collaborators) (*StageRegistry, error) {
	if c.Generator == nil {
		return nil, ErrGeneratorRequired
	}

	r := &StageRegistry{specs: make(map[Stage]StageSpec, len(AllStages)), collab: c}
	r.register(StageClarify, "clarifier", RecoveryDegrade, c.Clarifier != nil)
	r.register(StagePlan, "planner", RecoveryDegrade, c.Planner != nil)
	r.register(StageGenerate, "generator", RecoveryRemediate, true)
	r.register(StageValidateSyntax, "syntax-validator", RecoveryRemediate, c.SyntaxValidator != nil)
	r.register(StageValidateCompleteness, "completeness-checker", RecoveryRemediate, c.CompletenessChecker != nil)
	r.register(StageValidateDeep, "deep-validator", RecoveryRemediate, c.DeepValidator != nil)
	r.register(StageScanSecurity, "security-scanner", RecoveryRemediate, c.Scanner != nil)
	r.register(StageParse, "graph-parser", RecoveryDegrade, c.GraphParser != nil)
	r.register(StageEstimateCost, "cost-estimator", RecoveryDegrade, c.CostEstimator != nil)
	r.register(StageGenerateConfig, "config-generator", RecoveryDegrade, c.ConfigGenerator != nil)
	return r, nil
}

func (r *StageRegistry) register(stage Stage, collaborator string, recovery Recovery, enabled bool) {
	r.specs[stage] = StageSpec{
		Stage:        stage,
		Collaborator: collaborator,
		Recovery:     recovery,
		Enabled:      enabled,
	}
}

// Spec returns the spec of a stage.
func (r *StageRegistry) Spec(stage Stage) (StageSpec, error) {
	spec, ok := r.specs[stage]
	if !ok {
		return StageSpec{}, fmt.Errorf("stage not registered: %s", stage)
	}
	return spec, nil
}

// Enabled reports whether a stage has a collaborator.
func (r *StageRegistry) Enabled(stage Stage) bool {
	return r.specs[stage].Enabled
}

// Stages returns every spec in canonical order.
func (r *StageRegistry) Stages() []StageSpec {
	out := make([]StageSpec, 0, len(AllStages))
	for _, st := range AllStages {
		out = append(out, r.specs[st])
	}
	return out
}

// Collaborators returns the registered collaborators.
func (r *StageRegistry) Collaborators() Collaborators {
	return r.collab
}
