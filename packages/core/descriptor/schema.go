package descriptor

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// caseShape mirrors the accepted layout of a test block. It exists only to
// be reflected into a JSON Schema.
type caseShape struct {
	Test    string        `json:"test" jsonschema:"minLength=1,description=Unique name of the test case"`
	Data    requestShape  `json:"data" jsonschema:"description=Main request"`
	Handler string        `json:"handler,omitempty" jsonschema:"description=Name of a handler block or registered handler"`
	Before  any           `json:"before,omitempty" jsonschema:"description=Setup step or list of steps"`
	After   any           `json:"after,omitempty" jsonschema:"description=Teardown step or list of steps"`
	Status  any           `json:"status,omitempty" jsonschema:"description=Expected status code or list of codes"`
	Asserts *assertsShape `json:"asserts,omitempty"`
	Only    bool          `json:"only,omitempty"`
	OnlyAll bool          `json:"onlyall,omitempty"`
	SkipAll bool          `json:"skipall,omitempty"`
}

type requestShape struct {
	Method     string         `json:"method,omitempty" jsonschema:"pattern=^[A-Za-z]+$"`
	URL        string         `json:"url" jsonschema:"minLength=1"`
	Options    map[string]any `json:"options,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	DependsOn  string         `json:"dependson,omitempty" jsonschema:"description=Name of the test whose response body is exposed as dependson"`
}

type assertsShape struct {
	Status       any               `json:"status,omitempty"`
	Script       string            `json:"script,omitempty"`
	Schema       any               `json:"schema,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	HasJSON      any               `json:"has-json,omitempty"`
	HasNotJSON   any               `json:"has-not-json,omitempty"`
	VerifyPath   []pathShape       `json:"verifypath,omitempty"`
	Body         any               `json:"body,omitempty"`
	ResponseTime float64           `json:"responsetime,omitempty" jsonschema:"minimum=1"`
}

type pathShape struct {
	Path   string `json:"path" jsonschema:"minLength=1"`
	Expect string `json:"expect,omitempty"`
}

// CaseSchema returns the JSON Schema of a test block.
func CaseSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		ExpandedStruct:            true,
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	s := r.Reflect(&caseShape{})
	s.Title = "ddtspec test case"
	return s
}

var (
	caseSchemaOnce sync.Once
	caseSchema     *gojsonschema.Schema
	caseSchemaErr  error
)

func compiledCaseSchema() (*gojsonschema.Schema, error) {
	caseSchemaOnce.Do(func() {
		data, err := json.Marshal(CaseSchema())
		if err != nil {
			caseSchemaErr = err
			return
		}
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			caseSchemaErr = err
			return
		}
		delete(doc, "$schema")
		delete(doc, "$id")
		caseSchema, caseSchemaErr = gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	})
	return caseSchema, caseSchemaErr
}

// ValidateCase checks a raw test block against CaseSchema and returns one
// message per violation.
func ValidateCase(raw map[string]any) ([]string, error) {
	schema, err := compiledCaseSchema()
	if err != nil {
		return nil, fmt.Errorf("compile case schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, err
	}
	var problems []string
	for _, e := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return problems, nil
}
