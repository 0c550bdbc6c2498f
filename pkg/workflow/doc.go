// Package workflow provides the self-correcting generation loop of InfraForge.
//
// # Overview
//
// A run turns a natural-language request into a validated infrastructure
// definition. The Engine threads one State through ten stages:
//
//  1. clarify - make assumptions explicit or ask for more information
//  2. plan - decompose the request into components
//  3. generate - produce the artifact (creation or remediation mode)
//  4. validate-syntax - reject artifacts that do not parse
//  5. validate-completeness - reject artifacts missing required components
//  6. validate-deep - plan the artifact with the real toolchain
//  7. scan-security - collect policy violations
//  8. parse - extract the resource graph
//  9. estimate-cost - estimate monthly cost
//  10. generate-config - produce the configuration-management script
//
// Any validation failure routes back to generate. The Router is a pure
// decision table over State; the Engine invokes the chosen collaborator and
// merges its typed StageResult into State.
//
// # Remediation
//
// After the first attempt the ContextBuilder hands the generator a remediation
// context: the prior artifact, the errors to fix (at most MaxContextViolations
// violations) and a ModificationDirective. The directive lists every resource
// of the prior artifact that must keep its type and name, so a fix has to edit
// the offending resource in place instead of adding a renamed copy next to it.
//
// # Termination
//
// RetryBudget guarantees termination. A run fails with ErrorClassBudgetExhausted
// when generation attempts reach MaxRetries, when the same violation identity
// survives more than StreakThreshold consecutive scans, when a stage reaches the
// optional MaxStageFailures ceiling, or when the run deadline passes.
//
// # Collaborators
//
// Every stage delegates to one collaborator interface (Clarifier, Planner,
// Generator, ...). Only the Generator is required. A nil validator or scanner
// disables its stage; a failing one is turned into a generation_failure syntax
// error so the next attempt can repair it. Clarify, plan, parse, cost and config
// degrade to fallback values instead of failing the run.
//
//	registry, err := workflow.NewStageRegistry(workflow.Collaborators{
//		Generator:       gen,
//		SyntaxValidator: syntax,
//		Scanner:         scanner,
//	})
//	if err != nil {
//		return err
//	}
//	engine := workflow.NewEngine(registry, workflow.DefaultConfig(), logger)
//	state, err := engine.Run(ctx, "Create a private S3 bucket for logs")
package workflow
