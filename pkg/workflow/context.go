package workflow

import (
	"errors"
	"regexp"
	"sort"

	"github.com/openfroyo/infraforge/pkg/plan"
)

// GenerationMode distinguishes a first draft from a targeted repair.
type GenerationMode string

const (
	ModeCreation    GenerationMode = "creation"
	ModeRemediation GenerationMode = "remediation"
)

// MaxContextViolations caps the violations handed to the generator.
const MaxContextViolations = 5

// ModificationDirective is the anti-duplication contract of a remediation
// attempt. The generator must edit the listed resources in place and must not
// add resources whose names derive from them.
type ModificationDirective struct {
	// PreserveResources are the resource addresses of the prior artifact.
	// They must keep their type and name.
	PreserveResources []string `json:"preserve_resources"`

	// TargetResources are the addresses that carry violations and must be
	// fixed by mutating their own blocks.
	TargetResources []string `json:"target_resources"`

	// ForbidDerivativeNames forbids new resources such as "<name>_fixed" or
	// "<name>_secure" added to satisfy a fix.
	ForbidDerivativeNames bool `json:"forbid_derivative_names"`

	// Instruction is the directive in prose for text-based generators.
	Instruction string `json:"instruction"`
}

// GenerationContext is the exact input handed to the generation collaborator.
// Remediation-only fields are nil in creation mode.
type GenerationContext struct {
	Mode GenerationMode `json:"mode"`

	// Attempt is the 1-based number of the attempt this context is for.
	Attempt int `json:"attempt"`

	Request     string            `json:"request"`
	Assumptions map[string]string `json:"assumptions"`
	Plan        *plan.Plan        `json:"plan,omitempty"`

	PriorArtifact   *string                `json:"prior_artifact,omitempty"`
	SyntaxError     *SyntaxError           `json:"syntax_error,omitempty"`
	Violations      []ViolationRecord      `json:"violations,omitempty"`
	CompletenessGap []string               `json:"completeness_gap,omitempty"`
	Directive       *ModificationDirective `json:"directive,omitempty"`
}

var (
	errDirectiveMissing = errors.New("remediation context requires a modification directive")
	errPriorMissing     = errors.New("remediation context requires the prior artifact")
	errPriorInCreation  = errors.New("creation context must not carry a prior artifact")
)

// Validate enforces the shape of each mode.
func (g GenerationContext) Validate() error {
	switch g.Mode {
	case ModeCreation:
		if g.PriorArtifact != nil || g.Directive != nil {
			return errPriorInCreation
		}
	case ModeRemediation:
		if g.PriorArtifact == nil {
			return errPriorMissing
		}
		if g.Directive == nil {
			return errDirectiveMissing
		}
	default:
		return errors.New("unknown generation mode: " + string(g.Mode))
	}
	return nil
}

// AddressExtractor lists the resource addresses ("type.name") declared in an artifact.
type AddressExtractor func(artifact string) []string

var resourceBlock = regexp.MustCompile(`(?m)^\s*resource\s+"([^"]+)"\s+"([^"]+)"`)

// ScanResourceAddresses is the default AddressExtractor. It reads resource
// block headers without a full parse so it also works on broken artifacts.
func ScanResourceAddresses(artifact string) []string {
	var addrs []string
	seen := map[string]struct{}{}
	for _, m := range resourceBlock.FindAllStringSubmatch(artifact, -1) {
		addr := m[1] + "." + m[2]
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		addrs = append(addrs, addr)
	}
	return addrs
}

// ContextBuilder assembles generation contexts from state.
type ContextBuilder struct {
	addresses     AddressExtractor
	maxViolations int
}

// NewContextBuilder creates a builder. A nil extractor uses ScanResourceAddresses.
func NewContextBuilder(extractor AddressExtractor) *ContextBuilder {
	if extractor == nil {
		extractor = ScanResourceAddresses
	}
	return &ContextBuilder{addresses: extractor, maxViolations: MaxContextViolations}
}

const remediationInstruction = "Modify the existing resources of the prior artifact in place. " +
	"Keep every resource type and name listed in preserve_resources. " +
	"Fix each violation inside the block of the resource it names. " +
	"Do not add new resources whose names derive from existing ones " +
	"(for example adding aws_s3_bucket.data_fixed instead of fixing aws_s3_bucket.data). " +
	"Return the complete corrected artifact."

// Build produces the context for the next generation attempt.
func (b *ContextBuilder) Build(s *State) GenerationContext {
	gen := GenerationContext{
		Mode:        ModeCreation,
		Attempt:     s.RetryCount + 1,
		Request:     s.Request,
		Assumptions: copyAssumptions(s.Assumptions),
		Plan:        s.Plan,
	}
	if s.RetryCount == 0 {
		return gen
	}

	prior := s.Artifact
	gen.Mode = ModeRemediation
	gen.PriorArtifact = &prior

	if s.SyntaxError != nil {
		se := *s.SyntaxError
		gen.SyntaxError = &se
	}
	if len(s.CompletenessGap) > 0 {
		gen.CompletenessGap = append([]string(nil), s.CompletenessGap...)
	}

	violations := append([]ViolationRecord(nil), s.Violations...)
	SortViolations(violations)
	violations = DedupeByIdentity(violations)
	if len(violations) > b.maxViolations {
		violations = violations[:b.maxViolations]
	}
	if len(violations) > 0 {
		gen.Violations = violations
	}

	gen.Directive = &ModificationDirective{
		PreserveResources:     b.addresses(prior),
		TargetResources:       targetResources(violations),
		ForbidDerivativeNames: true,
		Instruction:           remediationInstruction,
	}
	if gen.Directive.PreserveResources == nil {
		gen.Directive.PreserveResources = []string{}
	}
	return gen
}

func targetResources(violations []ViolationRecord) []string {
	set := map[string]struct{}{}
	for _, v := range violations {
		if v.AffectedResource != "" {
			set[v.AffectedResource] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func copyAssumptions(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
