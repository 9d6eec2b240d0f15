package runner

import (
	"time"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/failure"
	"github.com/abdul-hamid-achik/ddtspec/packages/stats"
)

// Status of a finished case.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Skip reasons.
const (
	SkipFiltered        = "filtered out"
	SkipNotExclusive    = "not exclusive"
	SkipAll             = "skipall"
	SkipBeforeAllFailed = "beforeAll failed"
	SkipBail            = "bail"
	SkipInvalidSuite    = "invalid suite"
)

// Attachments describe the main request of a case for reporters.
type Attachments struct {
	Method  string         `json:"method,omitempty"`
	URL     string         `json:"url,omitempty"`
	Options map[string]any `json:"options,omitempty"`
	Status  int            `json:"status,omitempty"`
	Body    any            `json:"body,omitempty"`
}

// CaseResult is the outcome of a single case.
type CaseResult struct {
	Name       string
	Declared   string
	File       string
	Status     Status
	SkipReason string
	Err        error
	// Kind is the taxonomy name of Err.
	Kind           string
	Attachments    Attachments
	Duration       time.Duration
	TeardownErrors []error
}

func (r *CaseResult) Passed() bool  { return r.Status == StatusPassed }
func (r *CaseResult) Failed() bool  { return r.Status == StatusFailed }
func (r *CaseResult) Skipped() bool { return r.Status == StatusSkipped }

// AdditionalTeardownErrors returns the teardown failures not already
// reported as Err.
func (r *CaseResult) AdditionalTeardownErrors() []error {
	var out []error
	for _, err := range r.TeardownErrors {
		if err != r.Err {
			out = append(out, err)
		}
	}
	return out
}

func (r *CaseResult) fail(err error) {
	r.Status = StatusFailed
	r.Err = err
	r.Kind = failure.Kind(err)
}

// SuiteInfo identifies a suite while it runs.
type SuiteInfo struct {
	File  string
	Cases int
	RunID string
}

// SuiteResult is the outcome of one descriptor.
type SuiteResult struct {
	SuiteInfo
	Cases []*CaseResult
	// Err is a suite-level failure: load, configuration, beforeAll or afterAll.
	Err      error
	Passed   int
	Failed   int
	Skipped  int
	Duration time.Duration
	Latency  stats.Summary
}

// OK reports whether the suite had no failure of any kind.
func (s *SuiteResult) OK() bool {
	return s.Err == nil && s.Failed == 0
}

func (s *SuiteResult) add(c *CaseResult) {
	s.Cases = append(s.Cases, c)
	switch c.Status {
	case StatusPassed:
		s.Passed++
	case StatusFailed:
		s.Failed++
	default:
		s.Skipped++
	}
}

// RunResult aggregates every suite of a run.
type RunResult struct {
	ID       string
	Suites   []*SuiteResult
	Passed   int
	Failed   int
	Skipped  int
	Errors   int
	Duration time.Duration
	Latency  stats.Summary
}

// OK reports whether every suite succeeded.
func (r *RunResult) OK() bool {
	return r.Failed == 0 && r.Errors == 0
}

func (r *RunResult) add(s *SuiteResult) {
	r.Suites = append(r.Suites, s)
	r.Passed += s.Passed
	r.Failed += s.Failed
	r.Skipped += s.Skipped
	if s.Err != nil {
		r.Errors++
	}
}
