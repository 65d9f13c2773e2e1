package tool

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/bytedance/sonic"
	"github.com/eino-contrib/jsonschema"
)

// ValidationError reports arguments that do not match a tool's schema.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// SchemaFor reflects the parameter schema of an argument struct. Fields
// without omitempty are required; a `description` struct tag becomes the
// property description.
func SchemaFor(v any) (map[string]any, error) {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		SchemaModifier: describe,
	}

	sc := r.Reflect(v)
	sc.Version = ""

	return SchemaMap(sc)
}

func describe(_ string, _ reflect.Type, tag reflect.StructTag, sc *jsonschema.Schema) {
	if d := tag.Get("description"); d != "" && sc.Description == "" {
		sc.Description = d
	}
}

// SchemaMap converts a typed schema into the map form carried by model
// requests.
func SchemaMap(sc *jsonschema.Schema) (map[string]any, error) {
	b, err := sonic.Marshal(sc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var out map[string]any
	if err := sonic.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	return out, nil
}

// validateArgs checks required fields, primitive types and enums. Unknown
// fields are accepted.
func validateArgs(args map[string]any, schema map[string]any) error {
	for _, name := range stringList(schema["required"]) {
		if _, ok := args[name]; !ok {
			return &ValidationError{Field: name, Message: "required field is missing"}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for name, value := range args {
		prop, ok := properties[name].(map[string]any)
		if !ok {
			continue
		}

		typ, _ := prop["type"].(string)
		if !matchesType(value, typ) {
			return &ValidationError{Field: name, Value: value, Message: fmt.Sprintf("expected type %s, got %T", typ, value)}
		}

		if enum := anyList(prop["enum"]); len(enum) > 0 && !slices.Contains(enum, value) {
			return &ValidationError{Field: name, Value: value, Message: fmt.Sprintf("value %v is not one of %v", value, enum)}
		}
	}

	return nil
}

// stringList accepts both []string and the []any produced by JSON decoding.
func stringList(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, x := range l {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func anyList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	}
	return nil
}

func matchesType(value any, typ string) bool {
	if value == nil {
		return true
	}

	switch typ {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	}
	return true
}
