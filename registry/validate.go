package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaResource = "schema.json"

// compileSchema compiles a tool's input schema once so every dispatch can
// validate against it.
func compileSchema(inputSchema any) (*jsonschema.Schema, error) {
	doc, err := toJSONValue(inputSchema)
	if err != nil {
		return nil, fmt.Errorf("encode input schema: %w", err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("input schema must be an object, got %T", doc)
	}
	if t, ok := obj["type"]; ok && t != "object" {
		return nil, fmt.Errorf("input schema type must be \"object\", got %v", t)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaResource, obj); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("compile input schema: %w", err)
	}
	return schema, nil
}

// validateArgs checks the call arguments against the compiled schema.
// Missing arguments validate as an empty object.
func validateArgs(schema *jsonschema.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	v, err := toJSONValue(args)
	if err != nil {
		return err
	}
	return schema.Validate(v)
}

// toJSONValue round-trips v through JSON so numbers reach the validator in
// the representation it decodes itself.
func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}
