package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/runner"
)

// Formats lists the accepted --output values.
var Formats = []string{"console", "json", "junit", "tap"}

// Formatter renders suites as they finish and the run once it is over.
type Formatter interface {
	FormatSuite(result *runner.SuiteResult)
	FormatError(err error)
	FormatHeader(version string)
	Flush(run *runner.RunResult) error
}

// Options configure New.
type Options struct {
	Writer  io.Writer
	Verbose bool
	NoColor bool
	Width   int
}

// New returns the formatter for format.
func New(format string, opts Options) (Formatter, error) {
	switch format {
	case "", "console":
		return NewConsoleFormatter(
			WithWriter(opts.Writer),
			WithVerbose(opts.Verbose),
			WithNoColor(opts.NoColor),
			WithWidth(opts.Width),
		), nil
	case "json":
		return NewJSONFormatter(JSONWithWriter(opts.Writer)), nil
	case "junit":
		return NewJUnitFormatter(JUnitWithWriter(opts.Writer)), nil
	case "tap":
		return NewTAPFormatter(TAPWithWriter(opts.Writer)), nil
	}
	return nil, fmt.Errorf("unknown output format %q (expected one of %v)", format, Formats)
}

// Reporter feeds a Formatter from engine callbacks.
type Reporter struct {
	formatter Formatter

	mu  sync.Mutex
	err error
}

func NewReporter(f Formatter) *Reporter {
	return &Reporter{formatter: f}
}

func (r *Reporter) SuiteStarted(*runner.SuiteInfo) {}

func (r *Reporter) CaseFinished(*runner.SuiteInfo, *runner.CaseResult) {}

func (r *Reporter) SuiteFinished(result *runner.SuiteResult) {
	r.formatter.FormatSuite(result)
}

func (r *Reporter) RunFinished(run *runner.RunResult) {
	err := r.formatter.Flush(run)
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Err returns the error of the last Flush.
func (r *Reporter) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

var (
	_ runner.Reporter    = (*Reporter)(nil)
	_ runner.RunReporter = (*Reporter)(nil)
)
