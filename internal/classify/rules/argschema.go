package rules

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harbinger-sec/warden/internal/classify"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ArgSchemaRule validates tool arguments against per-tool JSON Schemas.
// Tools without a registered schema pass. A schema violation is warn-level:
// malformed arguments are suspicious but not proof of attack.
type ArgSchemaRule struct {
	schemas map[string]*jsonschema.Schema
}

// NewArgSchemaRule compiles the given schemas keyed by tool name. Schemas
// that fail to compile are rejected up front rather than at call time.
func NewArgSchemaRule(schemas map[string]json.RawMessage) (*ArgSchemaRule, error) {
	compiled := make(map[string]*jsonschema.Schema, len(schemas))
	for tool, raw := range schemas {
		var schemaObj any
		if err := json.Unmarshal(raw, &schemaObj); err != nil {
			return nil, fmt.Errorf("NewArgSchemaRule: schema for %q: %w", tool, err)
		}

		c := jsonschema.NewCompiler()
		resource := tool + ".schema.json"
		if err := c.AddResource(resource, schemaObj); err != nil {
			return nil, fmt.Errorf("NewArgSchemaRule: schema for %q: %w", tool, err)
		}
		sch, err := c.Compile(resource)
		if err != nil {
			return nil, fmt.Errorf("NewArgSchemaRule: schema for %q: %w", tool, err)
		}
		compiled[tool] = sch
	}
	return &ArgSchemaRule{schemas: compiled}, nil
}

func (r *ArgSchemaRule) Name() string { return "arg_schema" }

func (r *ArgSchemaRule) DefaultAction() classify.Action { return classify.ActionWarn }

func (r *ArgSchemaRule) Inspect(ctx context.Context, call *classify.CallContext) ([]classify.Detection, error) {
	sch, ok := r.schemas[call.ToolName]
	if !ok {
		return nil, nil
	}

	var args any
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return []classify.Detection{{
			Rule:     r.Name(),
			Category: "schema_violation",
			Severity: classify.SeverityMedium,
			Reason:   "arguments are not valid JSON",
		}}, nil
	}

	if err := sch.Validate(args); err != nil {
		return []classify.Detection{{
			Rule:     r.Name(),
			Category: "schema_violation",
			Severity: classify.SeverityMedium,
			Reason:   fmt.Sprintf("schema validation failed for %s: %v", call.ToolName, err),
		}}, nil
	}

	return nil, nil
}
