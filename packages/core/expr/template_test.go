package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	e := New()

	tests := []struct {
		name     string
		template string
		want     any
	}{
		{"plain string", "http://petstore.local/v2/pet", "http://petstore.local/v2/pet"},
		{"interpolation", "${SERVICE_URL}/pet/${dependson.id}", "http://petstore.local/v2/pet/1017"},
		{"typed single segment", "${dependson.id}", float64(1017)},
		{"typed object", "${dependson}", map[string]any{"id": float64(1017), "name": "doggie"}},
		{"scalar list joined", "tags=${before['Create a Pet'].body.tags}", "tags=a,b"},
		{"object interpolated as json", "pet=${dependson}", `pet={"id":1017,"name":"doggie"}`},
		{"undefined interpolates empty", "x${nope}y", "xy"},
		{"query shorthand", "#(dependson, '$.id')", []any{float64(1017)}},
		{"query shorthand in url", "${SERVICE_URL}/pet/#(dependson, '$.id')", "http://petstore.local/v2/pet/1017"},
		{"query shorthand indexed", "${SERVICE_URL}/pet/${query(dependson, '$.id')[0]}", "http://petstore.local/v2/pet/1017"},
		{"braces inside strings", "${'{' + dependson.name + '}'}", "{doggie}"},
		{"object literal", "${{a: 1}.a}", float64(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Resolve(tt.template, petScope())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	e := New()

	tests := []struct {
		template string
		wantExpr string
	}{
		{"${", "${"},
		{"${}", "${}"},
		{"#(dependson", "#(dependson"},
		{"${SERVICE_URL}/${dependson.}", "dependson."},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			_, err := e.Resolve(tt.template, petScope())
			require.Error(t, err)

			var exprErr *Error
			require.ErrorAs(t, err, &exprErr)
			assert.Equal(t, tt.wantExpr, exprErr.Expr)
		})
	}
}

func TestResolve_Idempotent(t *testing.T) {
	e := New()
	tmpl := "${SERVICE_URL}/pet/${dependson.id}?tags=${before['Create a Pet'].body.tags}"

	first, err := e.Resolve(tmpl, petScope())
	require.NoError(t, err)
	second, err := e.Resolve(tmpl, petScope())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveTree(t *testing.T) {
	e := New()
	options := map[string]any{
		"headers": map[string]any{"X-Pet": "${dependson.name}"},
		"body": map[string]any{
			"id":        "${dependson.id}",
			"photoUrls": []any{"url1", "${dependson.name}"},
			"count":     3,
		},
	}

	got, err := e.ResolveTree(options, petScope())
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"headers": map[string]any{"X-Pet": "doggie"},
		"body": map[string]any{
			"id":        float64(1017),
			"photoUrls": []any{"url1", "doggie"},
			"count":     3,
		},
	}, got)

	assert.Equal(t, "${dependson.id}", options["body"].(map[string]any)["id"], "input must not be mutated")
}

func TestRewriteQueries(t *testing.T) {
	got, err := RewriteQueries("a #(x, '$.items[?(@.name == \"(b)\")]') c")
	require.NoError(t, err)
	assert.Equal(t, "a ${query(x, '$.items[?(@.name == \"(b)\")]')} c", got)
}

func TestExec(t *testing.T) {
	e := New()
	scope := Vars{"n": float64(2)}

	v, err := e.Exec("n * 2", scope)
	require.NoError(t, err)
	assert.Equal(t, float64(4), v)

	v, err = e.Exec("${n + 1}", scope)
	require.NoError(t, err)
	assert.Equal(t, float64(3), v)

	v, err = e.Exec("", scope)
	require.NoError(t, err)
	assert.Nil(t, v)
}
