package workflow

import "fmt"

// Decision is the router's verdict: either a stage to run or a terminal status.
type Decision struct {
	Stage    Stage
	Terminal bool
	Status   Status

	// Reason explains a terminal failure.
	Reason *WorkflowError
}

// String returns a short description of the decision.
func (d Decision) String() string {
	if d.Terminal {
		return fmt.Sprintf("terminate:%s", d.Status)
	}
	return string(d.Stage)
}

func next(stage Stage) Decision {
	return Decision{Stage: stage}
}

func terminal(status Status, reason *WorkflowError) Decision {
	return Decision{Terminal: true, Status: status, Reason: reason}
}

// Router is the pure decision table of the workflow.
type Router struct {
	budget   *RetryBudget
	registry *StageRegistry
}

// NewRouter creates a router over the given budget and registry.
func NewRouter(budget *RetryBudget, registry *StageRegistry) *Router {
	return &Router{budget: budget, registry: registry}
}

// Decide returns the next stage for s. It reads s and never mutates it.
func (r *Router) Decide(s *State) Decision {
	if s.Status != StatusRunning {
		return terminal(s.Status, s.Failure)
	}

	if len(s.Assumptions) == 0 {
		return next(StageClarify)
	}

	if s.Plan == nil {
		return next(StagePlan)
	}

	if !s.HasArtifact() || s.NeedsRemediation() {
		if s.ConfigArtifact != "" {
			return terminal(StatusFailed, NewError(ErrorClassStructural,
				"artifact is frozen once the configuration script exists", nil))
		}
		if reason := r.budget.Check(s, StageGenerate); reason != nil {
			return terminal(StatusFailed, reason)
		}
		return next(StageGenerate)
	}

	for _, stage := range []Stage{
		StageValidateSyntax,
		StageValidateCompleteness,
		StageValidateDeep,
		StageScanSecurity,
		StageParse,
		StageEstimateCost,
	} {
		if !r.done(s, stage) {
			return next(stage)
		}
	}

	if s.ConfigArtifact == "" && !r.done(s, StageGenerateConfig) {
		return next(StageGenerateConfig)
	}

	return terminal(StatusSucceeded, nil)
}

// done reports whether stage already ran for the current artifact or is disabled.
func (r *Router) done(s *State, stage Stage) bool {
	return s.Checked[stage] || !r.registry.Enabled(stage)
}
