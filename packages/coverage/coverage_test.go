package coverage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/runner"
)

func usersAPI() *Analyzer {
	return NewAnalyzer([]Endpoint{
		{Method: "GET", Path: "/users", OperationID: "getUsers", Tags: []string{"users"}},
		{Method: "POST", Path: "/users", OperationID: "createUser", Tags: []string{"users"}},
		{Method: "GET", Path: "/users/{id}", OperationID: "getUser", Tags: []string{"users"}},
		{Method: "DELETE", Path: "/users/{id}", OperationID: "deleteUser", Tags: []string{"users"}},
		{Method: "GET", Path: "/posts", Tags: []string{"posts"}},
		{Method: "POST", Path: "/posts", Tags: []string{"posts"}},
	})
}

func TestAnalyze(t *testing.T) {
	report := usersAPI().Analyze([]Request{
		{Method: "GET", Path: "/users"},
		{Method: "post", Path: "/users"},
		{Method: "GET", Path: "/users/7"},
		{Method: "GET", Path: "/users/7"},
		{Method: "GET", Path: "/posts/"},
		{Method: "PATCH", Path: "/users/7"},
	})

	assert.Equal(t, 6, report.TotalEndpoints)
	assert.Equal(t, 4, report.CoveredEndpoints)
	assert.InDelta(t, 66.67, report.CoveragePercent, 0.01)

	assert.Equal(t, 3, report.ByTag["users"].CoveredEndpoints)
	assert.InDelta(t, 75.0, report.ByTag["users"].CoveragePercent, 0.01)
	assert.InDelta(t, 50.0, report.ByTag["posts"].CoveragePercent, 0.01)

	assert.Equal(t, []Request{{Method: "PATCH", Path: "/users/7"}}, report.Unmatched)

	var getUser EndpointStatus
	for _, e := range report.Endpoints {
		if e.OperationID == "getUser" {
			getUser = e
		}
	}
	assert.True(t, getUser.Covered)
	assert.Equal(t, 2, getUser.Requests)

	assert.Equal(t, "/posts", report.Endpoints[0].Path)
}

func TestMatch(t *testing.T) {
	a := NewAnalyzer([]Endpoint{
		{Method: "GET", Path: "/users"},
		{Method: "GET", Path: "/users/{userId}/posts/{postId}"},
		{Method: "GET", Path: "/files/{name}.json"},
		{Method: "GET", Path: "/users/{userId}/posts/latest"},
	}, "/api/v2/")

	tests := []struct {
		name string
		req  Request
		want int
	}{
		{name: "exact", req: Request{Method: "GET", Path: "/users"}, want: 0},
		{name: "wrong method", req: Request{Method: "POST", Path: "/users"}, want: -1},
		{name: "nested params", req: Request{Method: "GET", Path: "/users/1/posts/2"}, want: 1},
		{name: "extra segment", req: Request{Method: "GET", Path: "/users/1"}, want: -1},
		{name: "literal dot", req: Request{Method: "GET", Path: "/files/a.json"}, want: 2},
		{name: "dot is not a wildcard", req: Request{Method: "GET", Path: "/files/axjson"}, want: -1},
		{name: "literal wins over parameter", req: Request{Method: "GET", Path: "/users/1/posts/latest"}, want: 3},
		{name: "base path", req: Request{Method: "GET", Path: "/api/v2/users"}, want: 0},
		{name: "base path prefix only", req: Request{Method: "GET", Path: "/api/v2users"}, want: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.match(tt.req))
		})
	}
}

func TestLoadPetstore(t *testing.T) {
	a, err := Load(context.Background(), "../generate/testdata/petstore.yaml")
	require.NoError(t, err)
	assert.Positive(t, a.Endpoints())

	report := a.Analyze([]Request{
		{Method: "GET", Path: "/v2/pet/12"},
		{Method: "GET", Path: "/v2/pet/findByStatus"},
		{Method: "POST", Path: "/v2/pet"},
	})
	assert.Equal(t, 3, report.CoveredEndpoints)
	assert.Empty(t, report.Unmatched)
	assert.Contains(t, report.ByTag, "pet")
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(context.Background(), "testdata/missing.yaml")
	assert.Error(t, err)
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	info := &runner.SuiteInfo{File: "pets.yaml"}

	c.CaseFinished(info, &runner.CaseResult{
		Status:      runner.StatusPassed,
		Attachments: runner.Attachments{Method: "GET", URL: "http://localhost:3000/v2/pet/1?x=1", Status: 200},
	})
	c.CaseFinished(info, &runner.CaseResult{
		Status:      runner.StatusFailed,
		Attachments: runner.Attachments{Method: "POST", URL: "http://localhost:3000/v2/pet", Status: 500},
	})
	c.CaseFinished(info, &runner.CaseResult{
		Status:      runner.StatusFailed,
		Attachments: runner.Attachments{Method: "GET", URL: "http://127.0.0.1:1/down"},
	})
	c.CaseFinished(info, &runner.CaseResult{Status: runner.StatusSkipped})

	assert.Equal(t, []Request{
		{Method: "GET", Path: "/v2/pet/1"},
		{Method: "POST", Path: "/v2/pet"},
	}, c.Requests())
}

func TestFormatConsole(t *testing.T) {
	report := usersAPI().Analyze([]Request{
		{Method: "GET", Path: "/users"},
		{Method: "GET", Path: "/users"},
		{Method: "GET", Path: "/nowhere"},
	})
	out := report.FormatConsole()

	assert.Contains(t, out, "Coverage:          16.7%")
	assert.Contains(t, out, "[x] GET /users (x2)")
	assert.Contains(t, out, "[ ] GET /users/{id}")
	assert.Contains(t, out, "  users: 1/4 (25.0%)")
	assert.Contains(t, out, "Undocumented Requests:\n  GET /nowhere")
}

func TestFormatJSON(t *testing.T) {
	report := usersAPI().Analyze([]Request{{Method: "GET", Path: "/users"}})
	out, err := report.FormatJSON()
	require.NoError(t, err)
	assert.Contains(t, out, `"coveredEndpoints": 1`)
	assert.Contains(t, out, `"operationId": "getUsers"`)
}
