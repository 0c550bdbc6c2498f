package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Names of the built-in schemas.
const (
	SchemaClarification = "clarification"
	SchemaPlan          = "plan"
)

// SchemaRegistry manages CUE schemas for validating structured model output.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with the built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	sr.mustRegister(SchemaClarification, builtinClarificationSchema, "#Clarification")
	sr.mustRegister(SchemaPlan, builtinPlanSchema, "#Plan")

	return sr
}

func (sr *SchemaRegistry) mustRegister(name, source, definition string) {
	if err := sr.RegisterSchema(name, source, definition); err != nil {
		panic(err)
	}
}

// RegisterSchema compiles source and registers the definition it declares
// (e.g. "#Plan") under name.
func (sr *SchemaRegistry) RegisterSchema(name, source, definition string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("schema %s does not declare %s", name, definition)
	}
	if err := def.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	sr.mu.Lock()
	dataVal := sr.ctx.Encode(data)
	sr.mu.Unlock()
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ValidateJSON decodes raw as JSON and validates it against a named schema.
func (sr *SchemaRegistry) ValidateJSON(ctx context.Context, schemaName string, raw []byte) error {
	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return sr.ValidateAgainstSchema(ctx, schemaName, data)
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinClarificationSchema = `
#Scalar: string | number | bool

// Output of the clarify stage.
#Clarification: {
	proceed: bool

	missing_info?: [...string] | null

	// Assumed values keyed by name (cloud_provider, region, environment...).
	assumptions?: {[string]: #Scalar} | null

	clarification_questions?: [...string] | null
	...
}
`

const builtinPlanSchema = `
#Component: {
	name:          string & =~"^[A-Za-z0-9_.-]+$"
	resource_type: string & =~"^[a-z][a-z0-9]*_[a-z0-9_]+$"
	description?:  string
	dependencies?: [...string] | null
	...
}

// Output of the plan stage.
#Plan: {
	infrastructure_type: string
	cloud_provider:      "aws" | "azure" | "gcp"
	components: [...#Component]
	execution_order?: [...string] | null
	assumptions?: {[string]: _} | null
	...
}
`
