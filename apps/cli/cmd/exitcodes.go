package cmd

import (
	"errors"
	"strconv"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/failure"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/runner"
)

// Exit codes for ddtspec CLI
const (
	// ExitSuccess indicates all tests passed
	ExitSuccess = 0

	// ExitTestFailure indicates one or more tests failed
	ExitTestFailure = 1

	// ExitParseError indicates a descriptor could not be loaded or parsed
	ExitParseError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates every failure was a transport error
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// ExitError carries the exit code a command wants. A nil Err exits
// quietly; the report has already been written.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return "exit status " + strconv.Itoa(e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func usageError(err error) error {
	return &ExitError{Code: ExitUsageError, Err: err}
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var (
		loadErr   *failure.LoadError
		configErr *failure.ConfigurationError
	)
	switch {
	case errors.As(err, &loadErr):
		return ExitParseError
	case errors.As(err, &configErr):
		return ExitConfigError
	}
	return ExitTestFailure
}

func isSilent(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Err == nil
}

// RunExitCode classifies a finished run. Load failures outrank
// configuration failures, which outrank test failures. A run whose only
// failures are transport errors exits with ExitNetworkError.
func RunExitCode(run *runner.RunResult) int {
	if run == nil || run.OK() {
		return ExitSuccess
	}

	var load, config, network, other bool
	for _, s := range run.Suites {
		switch failure.Kind(s.Err) {
		case "":
		case "LoadError":
			load = true
		case "ConfigurationError":
			config = true
		case "RequestError":
			network = true
		default:
			other = true
		}
		for _, c := range s.Cases {
			if !c.Failed() {
				continue
			}
			if c.Kind == "RequestError" {
				network = true
			} else {
				other = true
			}
		}
	}

	switch {
	case load:
		return ExitParseError
	case config:
		return ExitConfigError
	case other:
		return ExitTestFailure
	case network:
		return ExitNetworkError
	}
	return ExitTestFailure
}
