// Package terraform inspects generated Terraform configurations: syntax
// diagnostics, resource inventory, resource graph and plan-level validation.
package terraform

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// DefaultFilename is the file name reported in diagnostics.
const DefaultFilename = "main.tf"

// Reference is a reference from one resource to another.
type Reference struct {
	// Address is the referenced resource ("aws_vpc.main").
	Address string `json:"address"`

	// Attribute is the referenced attribute ("id"), if any.
	Attribute string `json:"attribute,omitempty"`
}

// Resource is one resource block.
type Resource struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Address string `json:"address"`

	// Attributes holds literal attribute values. Expressions that cannot be
	// evaluated statically (references, function calls) hold their source text.
	// Nested blocks are lists of attribute maps keyed by block type.
	Attributes map[string]interface{} `json:"attributes"`

	References []Reference `json:"references,omitempty"`
	Line       int         `json:"line"`
}

// Module is the parsed content of one configuration file.
type Module struct {
	Resources   []Resource `json:"resources"`
	DataSources []string   `json:"data_sources,omitempty"`
	Providers   []string   `json:"providers,omitempty"`
	Variables   []string   `json:"variables,omitempty"`
	Outputs     []string   `json:"outputs,omitempty"`
}

// Parse parses src as HCL and collects its top-level blocks.
func Parse(src []byte, filename string) (*Module, hcl.Diagnostics) {
	if filename == "" {
		filename = DefaultFilename
	}

	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Unsupported configuration body",
			Detail:   "Only native HCL syntax is supported.",
		}}
	}

	m := &Module{}
	for _, block := range body.Blocks {
		switch block.Type {
		case "resource":
			if len(block.Labels) != 2 {
				continue
			}
			m.Resources = append(m.Resources, decodeResource(block, src))
		case "data":
			if len(block.Labels) == 2 {
				m.DataSources = append(m.DataSources, "data."+block.Labels[0]+"."+block.Labels[1])
			}
		case "provider":
			if len(block.Labels) == 1 {
				m.Providers = append(m.Providers, block.Labels[0])
			}
		case "variable":
			if len(block.Labels) == 1 {
				m.Variables = append(m.Variables, block.Labels[0])
			}
		case "output":
			if len(block.Labels) == 1 {
				m.Outputs = append(m.Outputs, block.Labels[0])
			}
		}
	}

	return m, diags
}

// ParseString parses an artifact held in memory.
func ParseString(artifact string) (*Module, hcl.Diagnostics) {
	return Parse([]byte(artifact), DefaultFilename)
}

// Addresses returns the resource addresses in declaration order.
func (m *Module) Addresses() []string {
	out := make([]string, 0, len(m.Resources))
	for _, r := range m.Resources {
		out = append(out, r.Address)
	}
	return out
}

// TypeCounts returns the number of resources per resource type.
func (m *Module) TypeCounts() map[string]int {
	counts := make(map[string]int)
	for _, r := range m.Resources {
		counts[r.Type]++
	}
	return counts
}

// Lookup returns the resource with the given address.
func (m *Module) Lookup(address string) (*Resource, bool) {
	for i := range m.Resources {
		if m.Resources[i].Address == address {
			return &m.Resources[i], true
		}
	}
	return nil, false
}

func decodeResource(block *hclsyntax.Block, src []byte) Resource {
	r := Resource{
		Type:    block.Labels[0],
		Name:    block.Labels[1],
		Address: block.Labels[0] + "." + block.Labels[1],
		Line:    block.DefRange().Start.Line,
	}
	refs := map[Reference]struct{}{}
	r.Attributes = decodeBody(block.Body, src, refs)

	for ref := range refs {
		if ref.Address != r.Address {
			r.References = append(r.References, ref)
		}
	}
	sort.Slice(r.References, func(i, j int) bool {
		if r.References[i].Address != r.References[j].Address {
			return r.References[i].Address < r.References[j].Address
		}
		return r.References[i].Attribute < r.References[j].Attribute
	})
	return r
}

func decodeBody(body *hclsyntax.Body, src []byte, refs map[Reference]struct{}) map[string]interface{} {
	out := make(map[string]interface{}, len(body.Attributes)+len(body.Blocks))

	for name, attr := range body.Attributes {
		out[name] = attributeValue(attr, src)
		for _, traversal := range attr.Expr.Variables() {
			if ref, ok := resourceReference(traversal); ok {
				refs[ref] = struct{}{}
			}
		}
	}

	for _, nested := range body.Blocks {
		list, _ := out[nested.Type].([]interface{})
		out[nested.Type] = append(list, decodeBody(nested.Body, src, refs))
	}

	return out
}

// attributeValue evaluates an attribute without an evaluation context.
func attributeValue(attr *hclsyntax.Attribute, src []byte) interface{} {
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() || !val.IsWhollyKnown() {
		return strings.TrimSpace(string(attr.Expr.Range().SliceBytes(src)))
	}

	raw, err := ctyjson.Marshal(val, val.Type())
	if err != nil {
		return strings.TrimSpace(string(attr.Expr.Range().SliceBytes(src)))
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	return decoded
}

var nonResourceRoots = map[string]bool{
	"var":       true,
	"local":     true,
	"data":      true,
	"module":    true,
	"each":      true,
	"count":     true,
	"path":      true,
	"self":      true,
	"terraform": true,
}

func resourceReference(t hcl.Traversal) (Reference, bool) {
	root := t.RootName()
	if nonResourceRoots[root] || !strings.Contains(root, "_") || len(t) < 2 {
		return Reference{}, false
	}

	name, ok := t[1].(hcl.TraverseAttr)
	if !ok {
		return Reference{}, false
	}

	ref := Reference{Address: root + "." + name.Name}
	if len(t) > 2 {
		if attr, ok := t[2].(hcl.TraverseAttr); ok {
			ref.Attribute = attr.Name
		}
	}
	return ref, true
}
