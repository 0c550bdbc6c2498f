package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"

	"github.com/openfroyo/infraforge/pkg/config"
	"github.com/openfroyo/infraforge/pkg/workflow"
)

// Clarifier implements workflow.Clarifier on the lightweight model.
type Clarifier struct {
	model   model.BaseChatModel
	schemas *config.SchemaRegistry
	logger  zerolog.Logger
}

// NewClarifier creates a clarifier. A nil registry skips schema validation.
func NewClarifier(m model.BaseChatModel, schemas *config.SchemaRegistry, logger zerolog.Logger) *Clarifier {
	return &Clarifier{
		model:   m,
		schemas: schemas,
		logger:  logger.With().Str("component", "clarifier").Logger(),
	}
}

type clarification struct {
	Proceed     bool                   `json:"proceed"`
	MissingInfo []string               `json:"missing_info"`
	Assumptions map[string]interface{} `json:"assumptions"`
	Questions   []string               `json:"clarification_questions"`
}

// Clarify asks the model whether the request can proceed and which defaults
// it assumed.
func (c *Clarifier) Clarify(ctx context.Context, request string) (workflow.ClarifyResult, error) {
	reply, err := complete(ctx, c.model, clarifierSystemPrompt, "Request: "+request)
	if err != nil {
		return workflow.ClarifyResult{}, err
	}

	raw, err := decodeValidated(ctx, c.schemas, config.SchemaClarification, reply)
	if err != nil {
		return workflow.ClarifyResult{}, fmt.Errorf("invalid clarification: %w", err)
	}

	var out clarification
	if err := json.Unmarshal(raw, &out); err != nil {
		return workflow.ClarifyResult{}, fmt.Errorf("invalid clarification: %w", err)
	}

	result := workflow.ClarifyResult{
		Proceed:     out.Proceed,
		Assumptions: stringifyValues(out.Assumptions),
		MissingInfo: out.MissingInfo,
		Questions:   out.Questions,
	}
	c.logger.Debug().
		Bool("proceed", result.Proceed).
		Int("assumptions", len(result.Assumptions)).
		Msg("Request clarified")
	return result, nil
}

// decodeValidated extracts the JSON object from a reply and checks it
// against the named schema.
func decodeValidated(ctx context.Context, schemas *config.SchemaRegistry, schema, reply string) ([]byte, error) {
	raw, err := ExtractJSON(reply)
	if err != nil {
		return nil, err
	}
	if schemas != nil {
		if err := schemas.ValidateJSON(ctx, schema, raw); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

// stringifyValues converts decoded JSON scalars to strings. Nulls are dropped
// and composite values are re-encoded as JSON.
func stringifyValues(in map[string]interface{}) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			if b, err := json.Marshal(val); err == nil {
				out[k] = string(b)
			}
		}
	}
	return out
}

// formatAssumptions renders assumptions one per line in key order.
func formatAssumptions(assumptions map[string]string) string {
	if len(assumptions) == 0 {
		return "- none\n"
	}
	keys := make([]string, 0, len(assumptions))
	for k := range assumptions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, assumptions[k])
	}
	return b.String()
}
