package validation

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaError is one structural violation.
type SchemaError struct {
	Message    string
	DataPath   string
	SchemaPath string
}

// SchemaResult is what a SchemaValidator reports.
type SchemaResult struct {
	Valid   bool
	Missing []string
	Errors  []SchemaError
}

// SchemaValidator checks data against a schema. refs holds named schemas
// that $ref may point at by name.
type SchemaValidator interface {
	Validate(data, schema any, refs map[string]any) (*SchemaResult, error)
}

// refBase is the URL under which named schemas are registered.
const refBase = "http://ddtspec.local/schemas/"

// GoJSONSchema is the default SchemaValidator.
type GoJSONSchema struct{}

func (GoJSONSchema) Validate(data, schema any, refs map[string]any) (*SchemaResult, error) {
	result := &SchemaResult{}
	missing := map[string]bool{}

	loader := gojsonschema.NewSchemaLoader()
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rewritten := rewriteRefs(refs[name], refs, missing)
		if err := loader.AddSchema(refBase+url.PathEscape(name), gojsonschema.NewGoLoader(rewritten)); err != nil {
			missing[name] = true
		}
	}

	compiled, err := loader.Compile(gojsonschema.NewGoLoader(rewriteRefs(schema, refs, missing)))
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	res, err := compiled.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return nil, fmt.Errorf("cannot validate: %w", err)
	}

	for name := range missing {
		result.Missing = append(result.Missing, name)
	}
	sort.Strings(result.Missing)

	for _, e := range res.Errors() {
		result.Errors = append(result.Errors, SchemaError{
			Message:    e.Description(),
			DataPath:   dataPath(e),
			SchemaPath: e.Type(),
		})
	}
	result.Valid = res.Valid() && len(result.Missing) == 0
	return result, nil
}

// rewriteRefs copies a schema, pointing bare-name $refs at registered
// schemas. Unknown bare names are recorded in missing and replaced by an
// empty schema.
func rewriteRefs(v any, refs map[string]any, missing map[string]bool) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if k != "$ref" {
				out[k] = rewriteRefs(item, refs, missing)
				continue
			}
			ref, ok := item.(string)
			if !ok || strings.HasPrefix(ref, "#") || strings.Contains(ref, "://") {
				out[k] = item
				continue
			}
			if _, known := refs[ref]; !known {
				missing[ref] = true
				continue
			}
			out[k] = refBase + url.PathEscape(ref)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = rewriteRefs(item, refs, missing)
		}
		return out
	}
	return v
}

// dataPath renders the failing location as a JSON pointer. Required-field
// errors point at the missing property.
func dataPath(e gojsonschema.ResultError) string {
	field := e.Field()
	var parts []string
	if field != "" && field != "(root)" {
		parts = strings.Split(field, ".")
	}
	if e.Type() == "required" {
		prop, ok := e.Details()["property"].(string)
		if ok && (len(parts) == 0 || parts[len(parts)-1] != prop) {
			parts = append(parts, prop)
		}
	}
	return "/" + strings.Join(parts, "/")
}
