package utils

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaResource = "inputSchema.json"

// CompileSchema compiles a JSON schema document such as a tool's
// advertised inputSchema
func CompileSchema(schema json.RawMessage) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaResource, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

// ValidateAgainstSchema validates data against a JSON schema. An empty or
// null schema accepts everything.
func ValidateAgainstSchema(data json.RawMessage, schema json.RawMessage) error {
	if len(bytes.TrimSpace(schema)) == 0 || string(schema) == "null" {
		return nil
	}

	compiled, err := CompileSchema(schema)
	if err != nil {
		return err
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return compiled.Validate(instance)
}

// ValidateArguments validates tool call arguments against a tool's input
// schema. Nil arguments are checked as an empty object.
func ValidateArguments(arguments map[string]interface{}, schema json.RawMessage) error {
	if arguments == nil {
		arguments = map[string]interface{}{}
	}
	data, err := json.Marshal(arguments)
	if err != nil {
		return fmt.Errorf("failed to marshal arguments: %w", err)
	}
	return ValidateAgainstSchema(data, schema)
}
