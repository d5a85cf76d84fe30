package agent

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaFor reflects the JSON Schema of T's fields, suitable for a tool's
// parameter declaration. Field names follow json tags; descriptions come from
// jsonschema tags.
func SchemaFor[T any]() json.RawMessage {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	var zero T
	schema := r.Reflect(&zero)
	schema.Version = ""
	schema.ID = ""
	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("agent: reflect schema: %v", err))
	}
	return data
}

var schemaCache sync.Map

func compileSchema(name string, schema json.RawMessage) (*validator.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*validator.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := validator.CompileString(name+".schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// validateParams checks params against a compiled schema. Empty params are
// treated as an empty object.
func validateParams(schema *validator.Schema, params json.RawMessage) error {
	if schema == nil {
		return nil
	}
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	var decoded any
	if err := json.Unmarshal(params, &decoded); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}
