package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/failure"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/runner"
)

// TAPFormatter formats test results in TAP (Test Anything Protocol) format
type TAPFormatter struct {
	writer    io.Writer
	testCount int
	results   []tapResult
}

type tapResult struct {
	number     int
	name       string
	file       string
	status     runner.Status
	skipReason string
	kind       string
	error      string
	teardown   []string
}

type TAPOption func(*TAPFormatter)

func NewTAPFormatter(opts ...TAPOption) *TAPFormatter {
	f := &TAPFormatter{
		writer:  os.Stdout,
		results: make([]tapResult, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func TAPWithWriter(w io.Writer) TAPOption {
	return func(f *TAPFormatter) {
		if w != nil {
			f.writer = w
		}
	}
}

func (f *TAPFormatter) FormatSuite(result *runner.SuiteResult) {
	for _, r := range result.Cases {
		f.testCount++
		tr := tapResult{
			number:     f.testCount,
			name:       r.Name,
			file:       result.File,
			status:     r.Status,
			skipReason: r.SkipReason,
			kind:       r.Kind,
		}
		if r.Err != nil {
			tr.error = r.Err.Error()
		}
		for _, te := range r.AdditionalTeardownErrors() {
			tr.teardown = append(tr.teardown, te.Error())
		}
		f.results = append(f.results, tr)
	}

	if result.Err != nil {
		f.testCount++
		f.results = append(f.results, tapResult{
			number: f.testCount,
			name:   result.File,
			file:   result.File,
			status: runner.StatusFailed,
			kind:   failure.Kind(result.Err),
			error:  result.Err.Error(),
		})
	}
}

func (f *TAPFormatter) FormatError(err error) {
	// Errors are included in individual test results
}

func (f *TAPFormatter) FormatHeader(version string) {
	// Header is written in Flush
}

// Flush writes the accumulated TAP output
func (f *TAPFormatter) Flush(run *runner.RunResult) error {
	fmt.Fprintf(f.writer, "TAP version 13\n")
	fmt.Fprintf(f.writer, "1..%d\n", f.testCount)

	for _, r := range f.results {
		switch r.status {
		case runner.StatusSkipped:
			reason := r.skipReason
			if reason == "" || reason == runner.SkipFiltered {
				reason = "SKIP"
			}
			fmt.Fprintf(f.writer, "ok %d - %s # SKIP %s\n", r.number, r.name, reason)

		case runner.StatusPassed:
			fmt.Fprintf(f.writer, "ok %d - %s\n", r.number, r.name)

		default:
			fmt.Fprintf(f.writer, "not ok %d - %s\n", r.number, r.name)
			fmt.Fprintf(f.writer, "  ---\n")
			fmt.Fprintf(f.writer, "  file: %s\n", escapeYAML(r.file))
			fmt.Fprintf(f.writer, "  kind: %s\n", r.kind)
			fmt.Fprintf(f.writer, "  message: %s\n", escapeYAML(r.error))
			fmt.Fprintf(f.writer, "  severity: %s\n", severity(r.kind))
			if len(r.teardown) > 0 {
				fmt.Fprintf(f.writer, "  teardown:\n")
				for _, t := range r.teardown {
					fmt.Fprintf(f.writer, "    - %s\n", escapeYAML(t))
				}
			}
			fmt.Fprintf(f.writer, "  ...\n")
		}
	}

	fmt.Fprintln(f.writer)
	return nil
}

func severity(kind string) string {
	if kind == "AssertionError" {
		return "fail"
	}
	return "error"
}

func escapeYAML(s string) string {
	// Simple YAML escaping - wrap in quotes if contains special chars
	if strings.ContainsAny(s, ":\n\"'[]{}#&*!|>%@`") {
		s = strings.ReplaceAll(s, "\"", "\\\"")
		return "\"" + s + "\""
	}
	return s
}
