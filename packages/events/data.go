package events

import (
	"github.com/abdul-hamid-achik/ddtspec/packages/core/failure"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/runner"
)

type SuiteStartedData struct {
	File  string `json:"file"`
	Cases int    `json:"cases"`
}

type CaseData struct {
	Name       string   `json:"name"`
	File       string   `json:"file"`
	Status     string   `json:"status"`
	SkipReason string   `json:"skipReason,omitempty"`
	Kind       string   `json:"kind,omitempty"`
	Error      string   `json:"error,omitempty"`
	Method     string   `json:"method,omitempty"`
	URL        string   `json:"url,omitempty"`
	StatusCode int      `json:"statusCode,omitempty"`
	DurationMs int64    `json:"durationMs"`
	Teardown   []string `json:"teardownErrors,omitempty"`
}

type SuiteData struct {
	File       string `json:"file"`
	Passed     int    `json:"passed"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	Kind       string `json:"kind,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
	P95Ms      int64  `json:"p95Ms"`
}

type RunData struct {
	Suites     int   `json:"suites"`
	Passed     int   `json:"passed"`
	Failed     int   `json:"failed"`
	Skipped    int   `json:"skipped"`
	Errors     int   `json:"errors"`
	DurationMs int64 `json:"durationMs"`
	Recovered  bool  `json:"recovered,omitempty"`
}

func caseData(r *runner.CaseResult) CaseData {
	d := CaseData{
		Name:       r.Name,
		File:       r.File,
		Status:     string(r.Status),
		SkipReason: r.SkipReason,
		Kind:       r.Kind,
		Method:     r.Attachments.Method,
		URL:        r.Attachments.URL,
		StatusCode: r.Attachments.Status,
		DurationMs: r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		d.Error = r.Err.Error()
	}
	for _, err := range r.TeardownErrors {
		d.Teardown = append(d.Teardown, err.Error())
	}
	return d
}

func suiteData(r *runner.SuiteResult) SuiteData {
	d := SuiteData{
		File:       r.File,
		Passed:     r.Passed,
		Failed:     r.Failed,
		Skipped:    r.Skipped,
		DurationMs: r.Duration.Milliseconds(),
		P95Ms:      r.Latency.P95.Milliseconds(),
	}
	if r.Err != nil {
		d.Kind = failure.Kind(r.Err)
		d.Error = r.Err.Error()
	}
	return d
}

func runData(r *runner.RunResult) RunData {
	return RunData{
		Suites:     len(r.Suites),
		Passed:     r.Passed,
		Failed:     r.Failed,
		Skipped:    r.Skipped,
		Errors:     r.Errors,
		DurationMs: r.Duration.Milliseconds(),
	}
}
