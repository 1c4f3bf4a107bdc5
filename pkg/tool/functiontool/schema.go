package functiontool

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// generateSchema reflects a JSON schema from a Go type using struct tags.
//
// Supported tags:
//   - json:"name"                  parameter name
//   - json:",omitempty"            optional parameter
//   - jsonschema:"required"        explicitly required
//   - jsonschema:"description=..." parameter description
//   - jsonschema:"default=..."     default value
//   - jsonschema:"enum=a|b"        allowed values
//   - jsonschema:"minimum=N"       numeric constraints
func generateSchema[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	schema := reflector.Reflect(new(T))

	schemaMap, err := schemaToMap(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to convert schema to map: %w", err)
	}

	// Providers expect a bare object schema: type, properties, required.
	if schemaMap["type"] == "object" {
		result := map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
		if properties, ok := schemaMap["properties"]; ok {
			result["properties"] = properties
		}
		if required, ok := schemaMap["required"]; ok {
			result["required"] = required
		}
		if addProps, ok := schemaMap["additionalProperties"]; ok {
			result["additionalProperties"] = addProps
		}
		return result, nil
	}

	return schemaMap, nil
}

func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
