package plan

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCycle is returned when component dependencies form a cycle.
var ErrCycle = errors.New("circular dependency")

// DAGBuilder builds a dependency graph from planned components and assigns
// each component a level. Components on the same level have no dependencies
// on each other.
type DAGBuilder struct {
	// components maps component names to components
	components map[string]*Component

	// dependents maps a component to the components that depend on it
	dependents map[string][]string

	// inDegree tracks the number of unresolved dependencies per component
	inDegree map[string]int

	// levels holds component names per level, sorted within a level
	levels [][]string
}

// NewDAGBuilder creates a new DAG builder.
func NewDAGBuilder() *DAGBuilder {
	return &DAGBuilder{
		components: make(map[string]*Component),
		dependents: make(map[string][]string),
		inDegree:   make(map[string]int),
	}
}

// Build indexes the components, rejects unknown dependencies and cycles, and
// computes the levels.
func (b *DAGBuilder) Build(components []Component) error {
	for i := range components {
		c := &components[i]
		if c.Name == "" {
			return fmt.Errorf("component %d has an empty name", i)
		}
		if _, exists := b.components[c.Name]; exists {
			return fmt.Errorf("duplicate component: %s", c.Name)
		}
		b.components[c.Name] = c
		b.inDegree[c.Name] = 0
	}

	for _, c := range components {
		for _, dep := range c.Dependencies {
			if _, exists := b.components[dep]; !exists {
				return fmt.Errorf("component %s depends on unknown component %s", c.Name, dep)
			}
			b.dependents[dep] = append(b.dependents[dep], c.Name)
			b.inDegree[c.Name]++
		}
	}

	if cycle := b.findCycle(); cycle != nil {
		return fmt.Errorf("%w: %s", ErrCycle, strings.Join(cycle, " -> "))
	}

	b.computeLevels()
	return nil
}

// findCycle returns the first dependency cycle found by depth-first search.
func (b *DAGBuilder) findCycle() []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var path []string
	var visit func(name string) []string
	visit = func(name string) []string {
		visited[name] = true
		onStack[name] = true
		path = append(path, name)

		for _, next := range b.sortedDependents(name) {
			if !visited[next] {
				if cycle := visit(next); cycle != nil {
					return cycle
				}
				continue
			}
			if onStack[next] {
				for i, n := range path {
					if n == next {
						return append(append([]string{}, path[i:]...), next)
					}
				}
			}
		}

		onStack[name] = false
		path = path[:len(path)-1]
		return nil
	}

	for _, name := range b.sortedNames() {
		if !visited[name] {
			if cycle := visit(name); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// computeLevels assigns levels with Kahn's algorithm.
func (b *DAGBuilder) computeLevels() {
	remaining := make(map[string]int, len(b.inDegree))
	for name, degree := range b.inDegree {
		remaining[name] = degree
	}

	var current []string
	for _, name := range b.sortedNames() {
		if remaining[name] == 0 {
			current = append(current, name)
		}
	}

	for len(current) > 0 {
		b.levels = append(b.levels, current)

		var next []string
		for _, name := range current {
			for _, dependent := range b.dependents[name] {
				remaining[dependent]--
				if remaining[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		sort.Strings(next)
		current = next
	}
}

// Levels returns the computed levels.
func (b *DAGBuilder) Levels() [][]string {
	return b.levels
}

// Order returns the component names in dependency order.
func (b *DAGBuilder) Order() []string {
	var order []string
	for _, level := range b.levels {
		order = append(order, level...)
	}
	return order
}

// ToDOT generates a DOT representation of the component graph.
func (b *DAGBuilder) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph Plan {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, names := range b.levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")
		for _, name := range names {
			c := b.components[name]
			sb.WriteString(fmt.Sprintf("    %q [label=\"%s\\n%s\"];\n", name, name, c.ResourceType))
		}
		sb.WriteString("  }\n\n")
	}

	for _, name := range b.sortedNames() {
		for _, dep := range b.components[name].Dependencies {
			sb.WriteString(fmt.Sprintf("  %q -> %q;\n", dep, name))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

func (b *DAGBuilder) sortedNames() []string {
	names := make([]string, 0, len(b.components))
	for name := range b.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (b *DAGBuilder) sortedDependents(name string) []string {
	deps := append([]string(nil), b.dependents[name]...)
	sort.Strings(deps)
	return deps
}

// Resolve validates the plan and replaces its execution order with the order
// computed from component dependencies.
func Resolve(p *Plan) (*DAGBuilder, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	b := NewDAGBuilder()
	if err := b.Build(p.Components); err != nil {
		return nil, fmt.Errorf("invalid plan dependencies: %w", err)
	}
	p.ExecutionOrder = b.Order()
	return b, nil
}
