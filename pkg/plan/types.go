package plan

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

// Component is one planned infrastructure component.
type Component struct {
	// Name is the unique component name within the plan (e.g. "vpc", "eks_cluster").
	Name string `json:"name" yaml:"name" validate:"required"`

	// ResourceType is the provider resource type the component maps to (e.g. "aws_vpc").
	ResourceType string `json:"resource_type" yaml:"resource_type" validate:"required"`

	// Description explains what the component is for.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Dependencies lists the names of components that must exist first.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// Plan is the ordered component plan produced by the planning stage.
type Plan struct {
	// InfrastructureType is the detected category (kubernetes, database, web_server...).
	InfrastructureType string `json:"infrastructure_type" yaml:"infrastructure_type"`

	// CloudProvider is the target provider (aws, azure, gcp).
	CloudProvider string `json:"cloud_provider" yaml:"cloud_provider"`

	// Components are the planned components.
	Components []Component `json:"components" yaml:"components" validate:"dive"`

	// ExecutionOrder is the component names in dependency order.
	ExecutionOrder []string `json:"execution_order" yaml:"execution_order"`

	// Assumptions holds planner-level assumptions (sizes, versions, CIDRs).
	Assumptions map[string]string `json:"assumptions,omitempty" yaml:"assumptions,omitempty"`
}

// InfrastructureUnknown is the infrastructure type of a plan the planner could not classify.
const InfrastructureUnknown = "unknown"

var validate = validator.New()

// Validate checks the component fields and the uniqueness of component names.
func (p *Plan) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid plan: %w", err)
	}
	seen := make(map[string]struct{}, len(p.Components))
	for _, c := range p.Components {
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("invalid plan: duplicate component %q", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// ResourceTypes returns the distinct planned resource types, sorted.
func (p *Plan) ResourceTypes() []string {
	set := make(map[string]struct{})
	for _, c := range p.Components {
		set[c.ResourceType] = struct{}{}
	}
	types := make([]string, 0, len(set))
	for t := range set {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// PruneDanglingDependencies removes dependencies on components that are not in
// the plan and returns the removed references as "component -> dependency".
func (p *Plan) PruneDanglingDependencies() []string {
	names := make(map[string]struct{}, len(p.Components))
	for _, c := range p.Components {
		names[c.Name] = struct{}{}
	}

	var pruned []string
	for i := range p.Components {
		c := &p.Components[i]
		kept := c.Dependencies[:0]
		for _, dep := range c.Dependencies {
			if _, ok := names[dep]; ok {
				kept = append(kept, dep)
				continue
			}
			pruned = append(pruned, c.Name+" -> "+dep)
		}
		c.Dependencies = kept
	}
	return pruned
}

// Empty returns a plan with no components, used when planning degrades.
func Empty() *Plan {
	return &Plan{
		InfrastructureType: InfrastructureUnknown,
		Components:         []Component{},
		ExecutionOrder:     []string{},
		Assumptions:        map[string]string{},
	}
}
