package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"
)

// Engine compiles Rego policies and evaluates them against Terraform modules.
type Engine struct {
	mu              sync.RWMutex
	policies        map[string]*compiledPolicy
	logger          zerolog.Logger
	builtinPolicies []Policy
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a new policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies:        make(map[string]*compiledPolicy),
		logger:          logger.With().Str("component", "policy-engine").Logger(),
		builtinPolicies: GetBuiltinPolicies(),
	}

	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}

	return e, nil
}

// Evaluate evaluates every enabled policy against input. A policy that fails to
// evaluate is reported as a warning and does not abort the evaluation.
func (e *Engine) Evaluate(ctx context.Context, input *Input) (*Report, error) {
	startTime := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	doc := inputDocument(input)
	report := &Report{Findings: []Finding{}}

	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		report.EvaluatedPolicies = append(report.EvaluatedPolicies, cp.policy.Name)

		findings, err := e.evaluatePolicy(ctx, cp, doc)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Error().Err(err).
				Str("policy", cp.policy.Name).
				Msg("Policy evaluation failed")
			report.Warnings = append(report.Warnings, fmt.Sprintf("Policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}
		report.Findings = append(report.Findings, findings...)
	}

	sortFindings(report.Findings)
	report.EvaluatedAt = time.Now()
	report.Duration = time.Since(startTime)

	e.logger.Debug().
		Int("resources", len(input.Resources)).
		Int("findings", len(report.Findings)).
		Dur("duration", report.Duration).
		Msg("Policy evaluation completed")

	return report, nil
}

// evaluatePolicy evaluates a single compiled policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, doc map[string]interface{}) ([]Finding, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(doc))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var findings []Finding
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			findings = append(findings, createFinding(cp.policy, d))
		}
	}

	return findings, nil
}

// createFinding creates a Finding from one element of a deny set.
func createFinding(policy *Policy, result interface{}) Finding {
	finding := Finding{
		CheckID:  policy.Name,
		Severity: policy.Severity,
		Policy:   policy.Name,
	}

	switch v := result.(type) {
	case string:
		finding.CheckName = v
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok && id != "" {
			finding.CheckID = id
		}
		if title, ok := v["title"].(string); ok {
			finding.CheckName = title
		} else if msg, ok := v["message"].(string); ok {
			finding.CheckName = msg
		}
		if sev, ok := v["severity"].(string); ok && sev != "" {
			finding.Severity = Severity(strings.ToUpper(sev))
		}
		if res, ok := v["resource"].(string); ok {
			finding.Resource = res
		}
		if g, ok := v["guidance"].(string); ok {
			finding.Guideline = g
		}
	default:
		finding.CheckName = fmt.Sprintf("%v", result)
	}

	return finding
}

// inputDocument converts the input into the plain JSON document seen by Rego
// as `input`.
func inputDocument(input *Input) map[string]interface{} {
	resources := make([]interface{}, 0, len(input.Resources))
	for _, r := range input.Resources {
		refs := make([]interface{}, 0, len(r.References))
		for _, ref := range r.References {
			refs = append(refs, ref.Address)
		}
		attrs := r.Attributes
		if attrs == nil {
			attrs = map[string]interface{}{}
		}
		resources = append(resources, map[string]interface{}{
			"address":    r.Address,
			"type":       r.Type,
			"name":       r.Name,
			"attributes": attrs,
			"references": refs,
		})
	}

	doc := map[string]interface{}{"resources": resources}
	if input.Context != nil {
		doc["context"] = map[string]interface{}{
			"request":        input.Context.Request,
			"environment":    input.Context.Environment,
			"cloud_provider": input.Context.CloudProvider,
		}
	}
	return doc
}

func sortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.CheckID != b.CheckID {
			return a.CheckID < b.CheckID
		}
		return a.Resource < b.Resource
	})
}

// LoadPolicies loads policy files and adds them to the engine.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range policies {
		if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			e.logger.Error().Err(err).
				Str("policy", policies[i].Name).
				Msg("Failed to compile policy")
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().
		Int("count", len(policies)).
		Msg("Policies loaded successfully")

	return nil
}

// ReplaceCustomPolicies swaps every non built-in policy for the given set. It
// is used as the reload callback of Loader.Watch. Nothing changes when any of
// the policies fails to compile.
func (e *Engine) ReplaceCustomPolicies(ctx context.Context, policies []Policy) error {
	compiled := make(map[string]*compiledPolicy, len(policies))
	for i := range policies {
		cp, err := compilePolicy(ctx, &policies[i])
		if err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
		compiled[policies[i].Name] = cp
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	builtin := make(map[string]bool, len(e.builtinPolicies))
	for _, p := range e.builtinPolicies {
		builtin[p.Name] = true
	}
	for name := range e.policies {
		if !builtin[name] {
			delete(e.policies, name)
		}
	}
	for name, cp := range compiled {
		e.policies[name] = cp
	}

	e.logger.Info().Int("count", len(compiled)).Msg("Custom policies replaced")
	return nil
}

// compilePolicy parses a policy and prepares its deny query.
func compilePolicy(ctx context.Context, policy *Policy) (*compiledPolicy, error) {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	r := rego.New(
		rego.ParsedModule(module),
		rego.Query(module.Package.Path.String()+".deny"),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	return &compiledPolicy{
		policy:   policy,
		module:   module,
		query:    query,
		compiled: time.Now(),
	}, nil
}

// compileAndStorePolicy compiles a policy and stores it. The caller holds the lock.
func (e *Engine) compileAndStorePolicy(ctx context.Context, policy *Policy) error {
	cp, err := compilePolicy(ctx, policy)
	if err != nil {
		return err
	}
	e.policies[policy.Name] = cp

	e.logger.Debug().
		Str("policy", policy.Name).
		Msg("Policy compiled successfully")

	return nil
}

// loadBuiltinPolicies loads the built-in policies.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	for i := range e.builtinPolicies {
		p := e.builtinPolicies[i]
		if err := e.compileAndStorePolicy(ctx, &p); err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", p.Name, err)
		}
	}

	e.logger.Debug().
		Int("count", len(e.builtinPolicies)).
		Msg("Built-in policies loaded")

	return nil
}

func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	p := *cp.policy
	return &p, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		policies = append(policies, *e.policies[name].policy)
	}

	return policies
}

// ReloadPolicies drops custom policies and reloads the built-in ones.
func (e *Engine) ReloadPolicies(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.policies = make(map[string]*compiledPolicy)
	return e.loadBuiltinPolicies(ctx)
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy state changed")

	return nil
}
