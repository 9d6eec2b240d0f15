package validation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/descriptor"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/expr"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/failure"
	"github.com/abdul-hamid-achik/ddtspec/packages/http"
)

const label = "(main request) GET http://petstore/v2/pet/1017"

func petBody() map[string]any {
	return map[string]any{
		"id":        float64(1017),
		"name":      "doggie",
		"status":    "available",
		"category":  map[string]any{"id": float64(1), "name": "Dogs"},
		"photoUrls": []any{"url1", "url2"},
		"tags":      []any{map[string]any{"id": float64(1), "name": "a"}, map[string]any{"id": float64(2), "name": "b"}},
	}
}

func petSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"id", "name", "photoUrls"},
		"properties": map[string]any{
			"id":        map[string]any{"type": "integer"},
			"name":      map[string]any{"type": "string"},
			"photoUrls": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	}
}

func outcome(status int, body any) *http.Outcome {
	return &http.Outcome{
		Method:  "GET",
		URL:     "http://petstore/v2/pet/1017",
		Body:    body,
		Elapsed: 20 * time.Millisecond,
		Response: &http.Response{
			StatusCode: status,
			Headers:    map[string]string{"Content-Type": "application/json"},
		},
	}
}

func newPipeline() *Pipeline {
	return NewPipeline(expr.New())
}

func validate(t *testing.T, p *Pipeline, c *Check) *failure.AssertionError {
	t.Helper()
	if c.Label == "" {
		c.Label = label
	}
	if c.Context == nil {
		c.Context = &HandlerContext{Outcome: c.Outcome, Scope: expr.Vars{"response": c.Outcome.Value()}}
	}
	err := p.Validate(context.Background(), c)
	if err == nil {
		return nil
	}
	var assertErr *failure.AssertionError
	require.True(t, errors.As(err, &assertErr), "unexpected error type %T", err)
	return assertErr
}

func TestValidate_Status(t *testing.T) {
	p := newPipeline()

	tests := []struct {
		name   string
		status int
		want   *descriptor.StatusExpectation
		detail string
	}{
		{"match", 200, &descriptor.StatusExpectation{Codes: []int{200}}, ""},
		{"mismatch", 201, &descriptor.StatusExpectation{Codes: []int{200}}, "expected status code 201 to equal 200"},
		{"list match", 409, &descriptor.StatusExpectation{Codes: []int{200, 409}, List: true}, ""},
		{"list mismatch", 500, &descriptor.StatusExpectation{Codes: []int{200, 409}, List: true}, "expected status code 500 to be one of [200,409]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validate(t, p, &Check{
				Outcome: outcome(tt.status, petBody()),
				Asserts: &descriptor.Asserts{Status: tt.want},
			})
			if tt.detail == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, StageStatus, got.Stage)
			assert.Equal(t, tt.detail, got.Detail)
		})
	}
}

func TestValidate_StatusShorthandAndLabel(t *testing.T) {
	got := validate(t, newPipeline(), &Check{
		Outcome: outcome(201, petBody()),
		Status:  &descriptor.StatusExpectation{Codes: []int{200}},
		Asserts: &descriptor.Asserts{Schema: "Pet"},
		Schemas: map[string]map[string]any{"Pet": petSchema()},
	})
	require.NotNil(t, got)
	assert.Equal(t, label+": expected status code 201 to equal 200", got.Error())
}

func TestValidate_StopsAtFirstStage(t *testing.T) {
	got := validate(t, newPipeline(), &Check{
		Outcome: outcome(500, petBody()),
		Asserts: &descriptor.Asserts{
			Status: &descriptor.StatusExpectation{Codes: []int{200}},
			Script: "assert(false, 'never reached')",
			Body:   []string{"nothing like this"},
		},
	})
	require.NotNil(t, got)
	assert.Equal(t, StageStatus, got.Stage)
}

func TestValidate_Script(t *testing.T) {
	p := newPipeline()

	assert.Nil(t, validate(t, p, &Check{
		Outcome: outcome(200, petBody()),
		Asserts: &descriptor.Asserts{Script: "assert(response.body.name == 'doggie')"},
	}))

	got := validate(t, p, &Check{
		Outcome: outcome(200, petBody()),
		Asserts: &descriptor.Asserts{Script: "assert(response.body.id > 2000, 'id too small')"},
	})
	require.NotNil(t, got)
	assert.Equal(t, StageScript, got.Stage)
	assert.Equal(t, "id too small", got.Detail)

	got = validate(t, p, &Check{
		Outcome: outcome(200, petBody()),
		Asserts: &descriptor.Asserts{Script: "nosuch()"},
	})
	require.NotNil(t, got)
	assert.Contains(t, got.Detail, "unknown function nosuch()")
}

func TestValidate_Schema(t *testing.T) {
	p := newPipeline()
	schemas := map[string]map[string]any{"Pet": petSchema()}

	assert.Nil(t, validate(t, p, &Check{
		Outcome: outcome(200, petBody()),
		Asserts: &descriptor.Asserts{Schema: "Pet"},
		Schemas: schemas,
	}))

	broken := petBody()
	delete(broken, "name")
	got := validate(t, p, &Check{
		Outcome: outcome(200, broken),
		Asserts: &descriptor.Asserts{Schema: "Pet"},
		Schemas: schemas,
	})
	require.NotNil(t, got)
	assert.Equal(t, StageSchema, got.Stage)
	assert.Contains(t, got.Detail, "expected JSON to match schema {")
	assert.Contains(t, got.Detail, "\n Error: ")
	assert.Contains(t, got.Detail, "is required.")
	assert.Contains(t, got.Detail, "data path: /name.")
	assert.Contains(t, got.Detail, "schema path: required.")

	inline := validate(t, p, &Check{
		Outcome: outcome(200, petBody()),
		Asserts: &descriptor.Asserts{Schema: map[string]any{"type": "array"}},
	})
	require.NotNil(t, inline)
	assert.Contains(t, inline.Detail, `expected JSON to match schema {"type":"array"}.`)

	undefined := validate(t, p, &Check{
		Outcome: outcome(200, petBody()),
		Asserts: &descriptor.Asserts{Schema: "Order"},
		Schemas: schemas,
	})
	require.NotNil(t, undefined)
	assert.Equal(t, "schema Order is not defined", undefined.Detail)
}

func TestGoJSONSchema_Refs(t *testing.T) {
	v := GoJSONSchema{}
	refs := map[string]any{
		"Category": map[string]any{
			"type":       "object",
			"required":   []any{"id"},
			"properties": map[string]any{"id": map[string]any{"type": "integer"}},
		},
	}
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"category": map[string]any{"$ref": "Category"}},
	}

	res, err := v.Validate(petBody(), schema, refs)
	require.NoError(t, err)
	assert.True(t, res.Valid)

	bad := petBody()
	bad["category"] = map[string]any{"id": "one"}
	res, err = v.Validate(bad, schema, refs)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, "/category/id", res.Errors[0].DataPath)

	res, err = v.Validate(petBody(), map[string]any{"$ref": "Missing"}, refs)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"Missing"}, res.Missing)
}

func TestValidate_UnresolvedSchemaMessage(t *testing.T) {
	got := validate(t, newPipeline(), &Check{
		Outcome: outcome(200, petBody()),
		Asserts: &descriptor.Asserts{Schema: map[string]any{"$ref": "Missing"}},
	})
	require.NotNil(t, got)
	assert.Contains(t, got.Detail, "\n unresolved schemas: Missing")
}

func TestValidate_Headers(t *testing.T) {
	p := newPipeline()
	tests := []struct {
		name   string
		check  descriptor.HeaderCheck
		detail string
	}{
		{"case insensitive match", descriptor.HeaderCheck{Name: "content-type", Pattern: "json"}, ""},
		{"slashed pattern", descriptor.HeaderCheck{Name: "Content-Type", Pattern: "/^application/"}, ""},
		{"mismatch", descriptor.HeaderCheck{Name: "Content-Type", Pattern: "^text"}, "expected header Content-Type to match /^text/"},
		{"missing", descriptor.HeaderCheck{Name: "X-Rate-Limit", Pattern: ".*"}, "expected header X-Rate-Limit to be present"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validate(t, p, &Check{
				Outcome: outcome(200, petBody()),
				Asserts: &descriptor.Asserts{Headers: []descriptor.HeaderCheck{tt.check}},
			})
			if tt.detail == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, StageHeaders, got.Stage)
			assert.Equal(t, tt.detail, got.Detail)
		})
	}
}

func TestValidate_HasJSON(t *testing.T) {
	p := newPipeline()
	tests := []struct {
		name    string
		has     []map[string]any
		hasNot  []map[string]any
		stage   string
		detail  string
	}{
		{name: "field", has: []map[string]any{{"name": "doggie", "id": 1017}}},
		{name: "nested gjson path", has: []map[string]any{{"category.name": "Dogs"}}},
		{name: "jsonpath subset", has: []map[string]any{{"$.tags[*]": map[string]any{"name": "b"}}}},
		{name: "array subset", has: []map[string]any{{"photoUrls": []any{"url2"}}}},
		{name: "absent value", hasNot: []map[string]any{{"status": "sold"}}},
		{name: "absent path", hasNot: []map[string]any{{"owner": "anyone"}}},
		{
			name:   "mismatch",
			has:    []map[string]any{{"name": "cat"}},
			stage:  StageHasJSON,
			detail: `expected JSON to comprise "cat" at path name`,
		},
		{
			name:   "present when forbidden",
			hasNot: []map[string]any{{"name": "doggie"}},
			stage:  StageHasNotJSON,
			detail: `expected JSON not to comprise "doggie" at path name`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validate(t, p, &Check{
				Outcome: outcome(200, petBody()),
				Asserts: &descriptor.Asserts{HasJSON: tt.has, HasNotJSON: tt.hasNot},
			})
			if tt.detail == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.stage, got.Stage)
			assert.Equal(t, tt.detail, got.Detail)
		})
	}
}

func TestValidate_VerifyPath(t *testing.T) {
	p := newPipeline()
	tests := []struct {
		name   string
		check  descriptor.PathCheck
		detail string
	}{
		{"default match", descriptor.PathCheck{Path: "$.id"}, ""},
		{"custom expectation", descriptor.PathCheck{Path: "$.tags[*].name", Expect: "value.length == 2 && value[1] == 'b'"}, ""},
		{"no match", descriptor.PathCheck{Path: "$.owner"}, "expected path $.owner to match at least one value"},
		{"falsy expectation", descriptor.PathCheck{Path: "$.id", Expect: "value[0] == 1"}, "expected path $.id to satisfy value[0] == 1"},
		{"assert in expectation", descriptor.PathCheck{Path: "$.id", Expect: "assert(value[0] == 1, 'wrong id')"}, "wrong id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validate(t, p, &Check{
				Outcome: outcome(200, petBody()),
				Asserts: &descriptor.Asserts{VerifyPath: []descriptor.PathCheck{tt.check}},
			})
			if tt.detail == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, StageVerifyPath, got.Stage)
			assert.Equal(t, tt.detail, got.Detail)
		})
	}

	got := validate(t, p, &Check{
		Outcome: outcome(200, petBody()),
		Asserts: &descriptor.Asserts{VerifyPath: []descriptor.PathCheck{{Path: "$..id"}}},
	})
	require.NotNil(t, got)
	assert.Contains(t, got.Detail, "invalid path $..id: ")
}

func TestValidate_BodyAndResponseTime(t *testing.T) {
	p := newPipeline()

	assert.Nil(t, validate(t, p, &Check{
		Outcome: outcome(200, petBody()),
		Asserts: &descriptor.Asserts{Body: []string{`"name":"doggie"`}, ResponseTime: 100},
	}))

	got := validate(t, p, &Check{
		Outcome: outcome(200, "plain text"),
		Asserts: &descriptor.Asserts{Body: []string{"/^cat/"}},
	})
	require.NotNil(t, got)
	assert.Equal(t, StageBody, got.Stage)
	assert.Equal(t, "expected body to match /^cat/", got.Detail)

	slow := outcome(200, petBody())
	slow.Elapsed = 120 * time.Millisecond
	got = validate(t, p, &Check{
		Outcome: slow,
		Asserts: &descriptor.Asserts{ResponseTime: 100},
	})
	require.NotNil(t, got)
	assert.Equal(t, StageResponseTime, got.Stage)
	assert.Equal(t, "expected response time of 120ms to be less than or equal to 100ms", got.Detail)
}

func TestValidate_HandlerExpression(t *testing.T) {
	p := newPipeline()
	spec := &descriptor.HandlerSpec{
		Name:     "checkPhotos",
		Validate: "equal(response.body.photoUrls, ['url1', 'url2'], 'Wrong photo urls')",
	}
	handler := p.ResolveHandler("checkPhotos", spec)
	require.NotNil(t, handler)

	body := petBody()
	body["photoUrls"] = []any{"url5", "url6"}
	got := validate(t, p, &Check{
		Outcome: outcome(200, body),
		Handler: handler,
	})
	require.NotNil(t, got)
	assert.Equal(t, StageHandler, got.Stage)
	assert.Equal(t, `Wrong photo urls: expected ["url5","url6"] to deeply equal ["url1","url2"]`, got.Detail)

	assert.Nil(t, validate(t, p, &Check{Outcome: outcome(200, petBody()), Handler: handler}))
}

func TestResolveHandler_GoStepsWin(t *testing.T) {
	registry := NewHandlerRegistry()
	registry.Register("mixed", Handler{
		Validate: func(_ context.Context, hc *HandlerContext) error {
			if hc.Outcome.StatusCode() != 200 {
				return errors.New("go validate saw a bad status")
			}
			return nil
		},
	})
	p := NewPipeline(expr.New(), WithHandlers(registry))

	assert.True(t, p.Handlers().Has("mixed"))
	assert.Nil(t, p.ResolveHandler("unknown", nil))

	handler := p.ResolveHandler("mixed", &descriptor.HandlerSpec{
		Validate: "assert(false, 'expression validate')",
		After:    "assert(response.body.id == 1, 'after step ran')",
	})
	require.NotNil(t, handler)

	got := validate(t, p, &Check{Outcome: outcome(500, petBody()), Handler: handler})
	require.NotNil(t, got)
	assert.Equal(t, "go validate saw a bad status", got.Detail)

	got = validate(t, p, &Check{Outcome: outcome(200, petBody()), Handler: handler})
	require.NotNil(t, got)
	assert.Equal(t, "after step ran", got.Detail)
}

func TestComprises(t *testing.T) {
	assert.True(t, Comprises(map[string]any{"a": float64(1), "b": "x"}, map[string]any{"a": float64(1)}))
	assert.False(t, Comprises(map[string]any{"a": float64(1)}, map[string]any{"a": float64(1), "b": "x"}))
	assert.True(t, Comprises([]any{"x", "y"}, []any{"y"}))
	assert.False(t, Comprises("x", []any{"x"}))
	assert.True(t, Comprises(float64(3), "3"))
}

func TestHandlerRegistry_Names(t *testing.T) {
	r := NewHandlerRegistry()
	r.Register("b", Handler{})
	r.Register("a", Handler{})
	assert.Equal(t, []string{"a", "b"}, r.Names())
	_, ok := r.Lookup("c")
	assert.False(t, ok)
}
