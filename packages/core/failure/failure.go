// Package failure defines the error taxonomy reported by the engine.
package failure

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// LoadError means a descriptor could not be read or decoded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ConfigurationError lists structural problems found in a loaded document.
type ConfigurationError struct {
	File     string
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid test configuration in %s:\n  - %s", e.File, strings.Join(e.Problems, "\n  - "))
}

// DependencyError means a dependson target has no stored result.
type DependencyError struct {
	Case       string
	Dependency string
	Reason     string
}

func (e *DependencyError) Error() string {
	msg := "Could not retrieve result from test " + e.Dependency
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

// SetupError is a failing before step. The main request was not issued.
type SetupError struct {
	Phase string
	Step  string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s step %q failed: %v", e.Phase, e.Step, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// RequestError is a transport-level failure of a request.
type RequestError struct {
	Label string
	Err   error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: request failed: %v", e.Label, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// AssertionError is a violated validation stage.
type AssertionError struct {
	Label  string
	Stage  string
	Detail string
}

func (e *AssertionError) Error() string {
	if e.Label == "" {
		return e.Detail
	}
	return e.Label + ": " + e.Detail
}

// TeardownError is a failing after step.
type TeardownError struct {
	Phase string
	Step  string
	Err   error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("%s step %q failed: %v", e.Phase, e.Step, e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }

// TimeoutError means the whole case exceeded its time budget.
type TimeoutError struct {
	Case  string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("case %q timed out after %s", e.Case, e.Limit)
}

// Kind names the taxonomy member of err, looking through wrapping. Errors
// outside the taxonomy report "Error".
func Kind(err error) string {
	if err == nil {
		return ""
	}

	var (
		loadErr     *LoadError
		configErr   *ConfigurationError
		depErr      *DependencyError
		setupErr    *SetupError
		requestErr  *RequestError
		assertErr   *AssertionError
		teardownErr *TeardownError
		timeoutErr  *TimeoutError
	)

	// Outer wrappers first: a SetupError wrapping an AssertionError is a
	// setup failure.
	switch {
	case errors.As(err, &setupErr):
		return "SetupError"
	case errors.As(err, &teardownErr):
		return "TeardownError"
	case errors.As(err, &loadErr):
		return "LoadError"
	case errors.As(err, &configErr):
		return "ConfigurationError"
	case errors.As(err, &depErr):
		return "DependencyError"
	case errors.As(err, &timeoutErr):
		return "TimeoutError"
	case errors.As(err, &requestErr):
		return "RequestError"
	case errors.As(err, &assertErr):
		return "AssertionError"
	}
	return "Error"
}
