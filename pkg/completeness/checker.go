// Package completeness checks that a generated configuration contains every
// component the request implies, not only a syntactically valid fragment.
package completeness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openfroyo/infraforge/pkg/config"
	"github.com/openfroyo/infraforge/pkg/plan"
	"github.com/openfroyo/infraforge/pkg/terraform"
	"github.com/openfroyo/infraforge/pkg/workflow"
)

// MessageUnknownProvider is reported when a pattern is detected but no
// resource belongs to a known cloud provider.
const MessageUnknownProvider = "Could not determine cloud provider (no provider block found)"

// Rule is a user-supplied Starlark rule file. The script sees the globals
// request, infrastructure_type, cloud_provider, resource_types (type to
// count), addresses and planned_types, and reports gaps by assigning a list
// of strings to the global "missing".
type Rule struct {
	Name   string
	Source string
}

// Checker implements workflow.CompletenessChecker.
type Checker struct {
	mu        sync.RWMutex
	patterns  []Pattern
	rules     []Rule
	evaluator *config.StarlarkEvaluator
	logger    zerolog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithPatterns replaces the built-in patterns.
func WithPatterns(patterns []Pattern) Option {
	return func(c *Checker) { c.patterns = patterns }
}

// WithEvaluator sets the Starlark evaluator used for rules.
func WithEvaluator(ev *config.StarlarkEvaluator) Option {
	return func(c *Checker) { c.evaluator = ev }
}

// NewChecker creates a checker with the built-in patterns and no rules.
func NewChecker(logger zerolog.Logger, opts ...Option) *Checker {
	c := &Checker{
		patterns: DefaultPatterns(),
		logger:   logger.With().Str("component", "completeness").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.evaluator == nil {
		c.evaluator = config.NewStarlarkEvaluator(0)
	}
	return c
}

// AddRule registers a Starlark rule.
func (c *Checker) AddRule(rule Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, rule)
}

// LoadRules registers every *.star file found in paths. Directories are
// walked recursively.
func (c *Checker) LoadRules(paths []string) error {
	for _, path := range paths {
		err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || filepath.Ext(p) != ".star" {
				return nil
			}
			src, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("failed to read rule %s: %w", p, err)
			}
			c.AddRule(Rule{Name: filepath.Base(p), Source: string(src)})
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to load rules from %s: %w", path, err)
		}
	}

	c.logger.Debug().Int("rules", len(c.Rules())).Msg("Completeness rules loaded")
	return nil
}

// Rules returns the registered rules.
func (c *Checker) Rules() []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Rule(nil), c.rules...)
}

// CheckCompleteness reports the components missing from the artifact.
func (c *Checker) CheckCompleteness(ctx context.Context, in workflow.ArtifactInput) (workflow.CompletenessResult, error) {
	addresses := terraform.ResourceAddresses(in.Artifact)
	types := typeCounts(addresses)

	infraType := ""
	var plannedTypes []string
	if in.Plan != nil {
		infraType = in.Plan.InfrastructureType
		plannedTypes = in.Plan.ResourceTypes()
	}

	provider := DetectProvider(types)
	if provider == "" {
		provider = in.Assumptions["cloud_provider"]
	}

	var missing []string
	if pattern := c.DetectPattern(in.Request, infraType); pattern != nil {
		missing = append(missing, c.checkPattern(pattern, provider, types, len(addresses))...)
	}
	missing = append(missing, missingPlanned(in.Plan, types)...)

	for _, rule := range c.Rules() {
		gaps, err := c.runRule(ctx, rule, map[string]interface{}{
			"request":             in.Request,
			"infrastructure_type": infraType,
			"cloud_provider":      provider,
			"resource_types":      types,
			"addresses":           addresses,
			"planned_types":       plannedTypes,
		})
		if err != nil {
			if ctx.Err() != nil {
				return workflow.CompletenessResult{}, ctx.Err()
			}
			c.logger.Warn().Err(err).Str("rule", rule.Name).Msg("Completeness rule failed")
			continue
		}
		missing = append(missing, gaps...)
	}

	if len(missing) > 0 {
		c.logger.Info().Strs("missing", missing).Msg("Completeness check failed")
	}
	return workflow.CompletenessResult{Missing: missing}, nil
}

// DetectPattern returns the pattern for a request. A plan infrastructure type
// naming a pattern wins; otherwise the first pattern with a keyword contained
// in the request is used.
func (c *Checker) DetectPattern(request, infrastructureType string) *Pattern {
	for i := range c.patterns {
		if c.patterns[i].Name == infrastructureType {
			return &c.patterns[i]
		}
	}

	lower := strings.ToLower(request)
	for i := range c.patterns {
		for _, kw := range c.patterns[i].Keywords {
			if strings.Contains(lower, kw) {
				return &c.patterns[i]
			}
		}
	}
	return nil
}

func (c *Checker) checkPattern(p *Pattern, provider string, types map[string]int, total int) []string {
	if provider == "" {
		return []string{MessageUnknownProvider}
	}
	reqs, ok := p.Providers[provider]
	if !ok {
		c.logger.Debug().Str("pattern", p.Name).Str("provider", provider).Msg("No requirements for provider")
		return nil
	}

	var absent []string
	for _, r := range reqs.Resources {
		n := r.count(types)
		if n >= r.min() {
			continue
		}
		if r.min() > 1 {
			absent = append(absent, fmt.Sprintf("%s (%d/%d)", r.Name, n, r.min()))
		} else {
			absent = append(absent, r.Name)
		}
	}

	var out []string
	if len(absent) > 0 {
		out = append(out, "Missing required components: "+strings.Join(absent, ", "))
	}
	if total < reqs.MinTotal {
		out = append(out, fmt.Sprintf("Only %d resources generated (need at least %d for a complete %s)",
			total, reqs.MinTotal, p.Name))
	}
	return out
}

func (c *Checker) runRule(ctx context.Context, rule Rule, input map[string]interface{}) ([]string, error) {
	res, err := c.evaluator.Evaluate(ctx, rule.Name, rule.Source, input)
	if err != nil {
		return nil, err
	}

	raw, ok := res.Output["missing"]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("rule %s: missing must be a list, got %T", rule.Name, raw)
	}

	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("rule %s: missing entries must be strings, got %T", rule.Name, item)
		}
		out = append(out, s)
	}
	return out, nil
}

func missingPlanned(p *plan.Plan, types map[string]int) []string {
	if p == nil {
		return nil
	}
	var absent []string
	for _, t := range p.ResourceTypes() {
		if types[t] == 0 {
			absent = append(absent, t)
		}
	}
	if len(absent) == 0 {
		return nil
	}
	return []string{"Planned components not generated: " + strings.Join(absent, ", ")}
}

func typeCounts(addresses []string) map[string]int {
	counts := make(map[string]int)
	for _, addr := range addresses {
		if i := strings.Index(addr, "."); i > 0 {
			counts[addr[:i]]++
		}
	}
	return counts
}
