package generate

import (
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

const maxExampleDepth = 5

// example synthesizes a value that satisfies schema. Optional properties
// are always filled.
func example(schema *openapi3.Schema, depth int) any {
	if schema == nil || depth > maxExampleDepth {
		return nil
	}
	if schema.Example != nil {
		return schema.Example
	}
	if schema.Default != nil {
		return schema.Default
	}
	if len(schema.Enum) > 0 {
		return schema.Enum[0]
	}

	if len(schema.AllOf) > 0 {
		merged := map[string]any{}
		for _, ref := range schema.AllOf {
			if ref == nil {
				continue
			}
			if m, ok := example(ref.Value, depth+1).(map[string]any); ok {
				for k, v := range m {
					merged[k] = v
				}
			}
		}
		return merged
	}
	for _, alternatives := range []openapi3.SchemaRefs{schema.OneOf, schema.AnyOf} {
		if len(alternatives) > 0 && alternatives[0] != nil {
			return example(alternatives[0].Value, depth+1)
		}
	}

	switch schemaType(schema) {
	case "string":
		return stringExample(schema.Format)
	case "integer":
		if schema.Min != nil {
			return int64(*schema.Min)
		}
		return 1
	case "number":
		if schema.Min != nil {
			return *schema.Min
		}
		return 1.5
	case "boolean":
		return true
	case "array":
		if schema.Items == nil {
			return []any{}
		}
		return []any{example(schema.Items.Value, depth+1)}
	case "object", "":
		if len(schema.Properties) == 0 {
			return map[string]any{}
		}
		names := make([]string, 0, len(schema.Properties))
		for name := range schema.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		obj := make(map[string]any, len(names))
		for _, name := range names {
			if ref := schema.Properties[name]; ref != nil {
				obj[name] = example(ref.Value, depth+1)
			}
		}
		return obj
	}
	return nil
}

func stringExample(format string) any {
	switch format {
	case "date":
		return "2024-01-01"
	case "date-time":
		return "2024-01-01T00:00:00Z"
	case "email":
		return "user@example.com"
	case "uuid":
		return "${uuid()}"
	case "uri", "url":
		return "https://example.com"
	case "byte":
		return "ZXhhbXBsZQ=="
	}
	return "example"
}

func schemaType(schema *openapi3.Schema) string {
	if schema.Type == nil || len(schema.Type.Slice()) == 0 {
		if len(schema.Properties) > 0 {
			return "object"
		}
		return ""
	}
	return schema.Type.Slice()[0]
}

// parameterExample prefers declared examples over synthesized values.
func parameterExample(param *openapi3.Parameter) any {
	if param.Example != nil {
		return param.Example
	}
	names := make([]string, 0, len(param.Examples))
	for name := range param.Examples {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if ex := param.Examples[name]; ex != nil && ex.Value != nil && ex.Value.Value != nil {
			return ex.Value.Value
		}
	}
	if param.Schema != nil && param.Schema.Value != nil {
		if v := example(param.Schema.Value, 0); v != nil {
			return v
		}
	}
	return "example"
}
