package terraform

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/infraforge/pkg/telemetry"
	"github.com/openfroyo/infraforge/pkg/workflow"
)

// Implicit edge labels.
const (
	EdgeContains = "contains"
	EdgeAttached = "attached"
	EdgeProtects = "protects"
)

// GraphParser extracts the resource graph of an artifact.
type GraphParser struct {
	logger zerolog.Logger
}

// NewGraphParser creates a graph parser.
func NewGraphParser(logger zerolog.Logger) *GraphParser {
	return &GraphParser{logger: telemetry.ComponentLogger(logger, "graph-parser")}
}

// ParseGraph implements workflow.GraphParser.
func (p *GraphParser) ParseGraph(_ context.Context, in workflow.ArtifactInput) (workflow.ParseResult, error) {
	m, diags := ParseString(in.Artifact)
	if diags.HasErrors() {
		return workflow.ParseResult{}, fmt.Errorf("failed to parse artifact: %s", FormatDiagnostics(diags))
	}

	g := BuildGraph(m)
	p.logger.Debug().Int("nodes", len(g.Nodes)).Int("edges", len(g.Edges)).Msg("Resource graph built")
	return workflow.ParseResult{Graph: g}, nil
}

// BuildGraph returns one node per resource, one edge per reference
// (referenced resource to referencing resource, labelled with the referenced
// attribute) and implicit edges for common AWS groupings.
func BuildGraph(m *Module) workflow.Graph {
	g := workflow.Graph{Nodes: []workflow.GraphNode{}, Edges: []workflow.GraphEdge{}}
	known := map[string]bool{}
	byType := map[string][]Resource{}

	for _, r := range m.Resources {
		g.Nodes = append(g.Nodes, workflow.GraphNode{ID: r.Address, Type: r.Type, Name: r.Name, Label: r.Name})
		known[r.Address] = true
		byType[r.Type] = append(byType[r.Type], r)
	}

	seen := map[[2]string]bool{}
	addEdge := func(from, to, label string) {
		key := [2]string{from, to}
		if seen[key] {
			return
		}
		seen[key] = true
		g.Edges = append(g.Edges, workflow.GraphEdge{From: from, To: to, Label: label})
	}

	for _, r := range m.Resources {
		for _, ref := range r.References {
			if known[ref.Address] {
				addEdge(ref.Address, r.Address, ref.Attribute)
			}
		}
	}

	if vpcs := byType["aws_vpc"]; len(vpcs) == 1 {
		for _, subnet := range byType["aws_subnet"] {
			addEdge(vpcs[0].Address, subnet.Address, EdgeContains)
		}
		for _, igw := range byType["aws_internet_gateway"] {
			addEdge(vpcs[0].Address, igw.Address, EdgeAttached)
		}
	}

	instances := append(append([]Resource(nil), byType["aws_instance"]...), byType["aws_ec2_instance"]...)
	for _, sg := range byType["aws_security_group"] {
		for _, inst := range instances {
			if !referencesType(inst, "aws_security_group") {
				addEdge(sg.Address, inst.Address, EdgeProtects)
			}
		}
	}

	return g
}

func referencesType(r Resource, resourceType string) bool {
	for _, ref := range r.References {
		if len(ref.Address) > len(resourceType) && ref.Address[:len(resourceType)+1] == resourceType+"." {
			return true
		}
	}
	return false
}
