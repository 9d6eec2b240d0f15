package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/failure"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/runner"
	"github.com/abdul-hamid-achik/ddtspec/packages/stats"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	RunID    string       `json:"runId"`
	Summary  JSONSummary  `json:"summary"`
	Suites   []JSONSuite  `json:"suites"`
	Latency  *JSONLatency `json:"latency,omitempty"`
	Duration float64      `json:"duration"`
	Time     string       `json:"time"`
}

type JSONSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

type JSONSuite struct {
	File      string       `json:"file"`
	Error     string       `json:"error,omitempty"`
	ErrorKind string       `json:"errorKind,omitempty"`
	Tests     []JSONTest   `json:"tests"`
	Latency   *JSONLatency `json:"latency,omitempty"`
	Duration  float64      `json:"duration"`
}

type JSONTest struct {
	Name           string        `json:"name"`
	Status         string        `json:"status"`
	SkipReason     string        `json:"skipReason,omitempty"`
	Duration       float64       `json:"duration"`
	Error          string        `json:"error,omitempty"`
	Kind           string        `json:"kind,omitempty"`
	TeardownErrors []string      `json:"teardownErrors,omitempty"`
	Request        *JSONRequest  `json:"request,omitempty"`
	Response       *JSONResponse `json:"response,omitempty"`
}

type JSONRequest struct {
	Method  string         `json:"method"`
	URL     string         `json:"url"`
	Options map[string]any `json:"options,omitempty"`
}

type JSONResponse struct {
	StatusCode int `json:"statusCode"`
	Body       any `json:"body,omitempty"`
}

// JSONLatency is in milliseconds.
type JSONLatency struct {
	Count int64   `json:"count"`
	Min   float64 `json:"min"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Max   float64 `json:"max"`
}

// JSONFormatter formats test results as JSON
type JSONFormatter struct {
	writer io.Writer
	suites []JSONSuite
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
		suites: make([]JSONSuite, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		if w != nil {
			f.writer = w
		}
	}
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func latency(s stats.Summary) *JSONLatency {
	if s.Count == 0 {
		return nil
	}
	return &JSONLatency{
		Count: s.Count,
		Min:   ms(s.Min),
		Mean:  ms(s.Mean),
		P50:   ms(s.P50),
		P95:   ms(s.P95),
		P99:   ms(s.P99),
		Max:   ms(s.Max),
	}
}

func (f *JSONFormatter) FormatSuite(result *runner.SuiteResult) {
	suite := JSONSuite{
		File:     result.File,
		Tests:    make([]JSONTest, 0, len(result.Cases)),
		Latency:  latency(result.Latency),
		Duration: ms(result.Duration),
	}
	if result.Err != nil {
		suite.Error = result.Err.Error()
		suite.ErrorKind = failure.Kind(result.Err)
	}

	for _, r := range result.Cases {
		test := JSONTest{
			Name:       r.Name,
			Status:     string(r.Status),
			SkipReason: r.SkipReason,
			Duration:   ms(r.Duration),
			Kind:       r.Kind,
		}
		if r.Err != nil {
			test.Error = r.Err.Error()
		}
		for _, te := range r.TeardownErrors {
			test.TeardownErrors = append(test.TeardownErrors, te.Error())
		}
		if a := r.Attachments; a.URL != "" {
			test.Request = &JSONRequest{Method: a.Method, URL: a.URL, Options: a.Options}
			if a.Status != 0 {
				test.Response = &JSONResponse{StatusCode: a.Status, Body: a.Body}
			}
		}
		suite.Tests = append(suite.Tests, test)
	}

	f.suites = append(f.suites, suite)
}

func (f *JSONFormatter) FormatError(err error) {
	// Errors are part of the suite entries.
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(run *runner.RunResult) error {
	output := JSONOutput{
		RunID: run.ID,
		Summary: JSONSummary{
			Total:   run.Passed + run.Failed + run.Skipped,
			Passed:  run.Passed,
			Failed:  run.Failed,
			Skipped: run.Skipped,
			Errors:  run.Errors,
		},
		Suites:   f.suites,
		Latency:  latency(run.Latency),
		Duration: ms(run.Duration),
		Time:     time.Now().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
