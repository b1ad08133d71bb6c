package extractapi

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type schemas struct {
	status *jsonschema.Schema
	result *jsonschema.Schema
	submit *jsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	status, err := compileSchema("status.json", BuildStatusJSONSchema())
	if err != nil {
		return nil, err
	}
	result, err := compileSchema("result.json", BuildResultJSONSchema())
	if err != nil {
		return nil, err
	}
	submit, err := compileSchema("submit.json", BuildSubmitJSONSchema())
	if err != nil {
		return nil, err
	}
	return &schemas{status: status, result: result, submit: submit}, nil
}

func compileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// validateJSON validates data against a compiled schema.
func validateJSON(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
