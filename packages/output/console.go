package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/expr"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/runner"
)

const defaultWidth = 100

// formatValue summarizes a response body for display.
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	case nil:
		return "<empty>"
	}
	str := expr.Format(v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
	width   int
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
		width:  defaultWidth,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		if w != nil {
			f.writer = w
		}
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

// WithWidth sets the column at which failure messages wrap.
func WithWidth(w int) ConsoleOption {
	return func(f *ConsoleFormatter) {
		if w > 0 {
			f.width = w
		}
	}
}

// block wraps msg to the formatter width and indents it by n spaces.
func (f *ConsoleFormatter) block(msg string, n int) string {
	width := f.width - n
	if width < 20 {
		width = 20
	}
	return indent.String(wordwrap.String(msg, width), uint(n))
}

func (f *ConsoleFormatter) FormatSuite(result *runner.SuiteResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(f.writer, "\n%s\n\n", bold("Running: "+result.File))

	if result.Err != nil && len(result.Cases) == 0 {
		fmt.Fprintf(f.writer, "  %s %s\n", red("x"), red("suite failed"))
		fmt.Fprintln(f.writer, f.block(result.Err.Error(), 4))
		fmt.Fprintln(f.writer)
		return
	}

	for _, r := range result.Cases {
		switch r.Status {
		case runner.StatusSkipped:
			fmt.Fprintf(f.writer, "  %s %s", yellow("-"), r.Name)
			if r.SkipReason != "" && r.SkipReason != runner.SkipFiltered {
				fmt.Fprintf(f.writer, " (%s)", r.SkipReason)
			}
			fmt.Fprintln(f.writer)
			continue

		case runner.StatusPassed:
			fmt.Fprintf(f.writer, "  %s %s %s\n", green("✓"), r.Name, cyan(fmt.Sprintf("(%dms)", r.Duration.Milliseconds())))

		default:
			fmt.Fprintf(f.writer, "  %s %s %s\n", red("✗"), r.Name, cyan(fmt.Sprintf("(%dms)", r.Duration.Milliseconds())))
			if r.Err != nil {
				fmt.Fprintf(f.writer, "    %s %s\n", red("→"), red(r.Kind))
				fmt.Fprintln(f.writer, f.block(r.Err.Error(), 6))
			}
			for _, te := range r.AdditionalTeardownErrors() {
				fmt.Fprintf(f.writer, "    %s %s\n", yellow("→"), yellow("also failed in teardown"))
				fmt.Fprintln(f.writer, f.block(te.Error(), 6))
			}
		}

		if f.verbose && r.Attachments.URL != "" {
			fmt.Fprintf(f.writer, "    %s %s\n", r.Attachments.Method, r.Attachments.URL)
			if r.Attachments.Status != 0 {
				fmt.Fprintf(f.writer, "    Status: %d\n", r.Attachments.Status)
			}
			fmt.Fprintf(f.writer, "    Body:   %s\n", formatValue(r.Attachments.Body, 100))
		}
	}

	if result.Err != nil {
		fmt.Fprintf(f.writer, "\n  %s\n", red("suite error:"))
		fmt.Fprintln(f.writer, f.block(result.Err.Error(), 4))
	}
	if f.verbose && result.Latency.Count > 0 {
		fmt.Fprintf(f.writer, "\n  %s %s\n", cyan("latency:"), result.Latency)
	}
	fmt.Fprintln(f.writer)
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", red("Error:"), strings.TrimLeft(f.block(err.Error(), 0), " "))
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("ddtspec"), version)
}

// Flush prints the run summary.
func (f *ConsoleFormatter) Flush(run *runner.RunResult) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(f.writer, "Tests:   ")
	if run.Passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", run.Passed)))
	}
	if run.Failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", run.Failed)))
	}
	if run.Skipped > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d skipped", run.Skipped)))
	}
	fmt.Fprintf(f.writer, "%d total\n", run.Passed+run.Failed+run.Skipped)
	if run.Errors > 0 {
		fmt.Fprintf(f.writer, "Suites:  %s\n", red(fmt.Sprintf("%d with errors", run.Errors)))
	}
	fmt.Fprintf(f.writer, "Latency: %s\n", run.Latency)
	fmt.Fprintf(f.writer, "Time:    %dms\n\n", run.Duration.Milliseconds())
	return nil
}
