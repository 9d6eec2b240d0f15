package failure

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessages(t *testing.T) {
	assertErr := &AssertionError{
		Label:  "(main request) GET http://petstore.local/v2/pet/1017",
		Stage:  "status",
		Detail: "expected status code 201 to equal 200",
	}
	assert.Equal(t, "(main request) GET http://petstore.local/v2/pet/1017: expected status code 201 to equal 200", assertErr.Error())

	setup := &SetupError{Phase: "before", Step: "Create a Pet", Err: assertErr}
	assert.Contains(t, setup.Error(), `before step "Create a Pet" failed`)
	assert.Contains(t, setup.Error(), "expected status code 201 to equal 200")

	dep := &DependencyError{Case: "Get pet", Dependency: "Create pet"}
	assert.Equal(t, "Could not retrieve result from test Create pet", dep.Error())

	cfg := &ConfigurationError{File: "pets.yaml", Problems: []string{"handler petHandler is not defined", "schema Pet is not defined"}}
	assert.Equal(t, "invalid test configuration in pets.yaml:\n  - handler petHandler is not defined\n  - schema Pet is not defined", cfg.Error())

	timeout := &TimeoutError{Case: "slow", Limit: 2 * time.Second}
	assert.Equal(t, `case "slow" timed out after 2s`, timeout.Error())
}

func TestKind(t *testing.T) {
	assertErr := &AssertionError{Stage: "status", Detail: "x"}

	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("boom"), "Error"},
		{&LoadError{Path: "a.json", Err: errors.New("bad")}, "LoadError"},
		{&ConfigurationError{File: "a.json"}, "ConfigurationError"},
		{&DependencyError{Dependency: "x"}, "DependencyError"},
		{&SetupError{Phase: "before", Step: "s", Err: assertErr}, "SetupError"},
		{&TeardownError{Phase: "after", Step: "s", Err: assertErr}, "TeardownError"},
		{&RequestError{Label: "l", Err: errors.New("refused")}, "RequestError"},
		{assertErr, "AssertionError"},
		{fmt.Errorf("wrapped: %w", assertErr), "AssertionError"},
		{&TimeoutError{Case: "c"}, "TimeoutError"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err))
	}
}
