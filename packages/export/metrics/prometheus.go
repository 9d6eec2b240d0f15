package metrics

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// PrometheusExporter writes the text exposition format. Values are gauges
// describing the last run; samples carry no timestamps, as the textfile
// collector requires.
type PrometheusExporter struct {
	namespace string
}

type PrometheusOption func(*PrometheusExporter)

// WithNamespace changes the metric name prefix (default "ddtspec").
func WithNamespace(ns string) PrometheusOption {
	return func(p *PrometheusExporter) {
		if ns != "" {
			p.namespace = ns
		}
	}
}

func NewPrometheusExporter(opts ...PrometheusOption) *PrometheusExporter {
	p := &PrometheusExporter{namespace: "ddtspec"}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type promWriter struct {
	w  *bufio.Writer
	ns string
}

func (pw *promWriter) header(name, typ, help string) {
	fmt.Fprintf(pw.w, "# HELP %s_%s %s\n", pw.ns, name, help)
	fmt.Fprintf(pw.w, "# TYPE %s_%s %s\n", pw.ns, name, typ)
}

func (pw *promWriter) sample(name string, value float64, labels ...string) {
	fmt.Fprintf(pw.w, "%s_%s", pw.ns, name)
	if len(labels) > 0 {
		pw.w.WriteByte('{')
		for i := 0; i+1 < len(labels); i += 2 {
			if i > 0 {
				pw.w.WriteByte(',')
			}
			fmt.Fprintf(pw.w, "%s=\"%s\"", labels[i], sanitizeLabel(labels[i+1]))
		}
		pw.w.WriteByte('}')
	}
	fmt.Fprintf(pw.w, " %s\n", strconv.FormatFloat(value, 'f', -1, 64))
}

func (p *PrometheusExporter) Export(w io.Writer, m *RunMetrics) error {
	pw := &promWriter{w: bufio.NewWriter(w), ns: p.namespace}

	pw.header("last_run_timestamp_seconds", "gauge", "Unix time the last run finished.")
	pw.sample("last_run_timestamp_seconds", float64(m.Timestamp.Unix()))

	pw.header("run_duration_seconds", "gauge", "Wall time of the last run.")
	pw.sample("run_duration_seconds", m.DurationMs/1000)

	pw.header("run_cases", "gauge", "Cases of the last run by status.")
	pw.sample("run_cases", float64(m.Passed), "status", "passed")
	pw.sample("run_cases", float64(m.Failed), "status", "failed")
	pw.sample("run_cases", float64(m.Skipped), "status", "skipped")

	pw.header("run_suite_errors", "gauge", "Suites of the last run that failed as a whole.")
	pw.sample("run_suite_errors", float64(m.SuiteErrors))

	pw.header("run_failures", "gauge", "Failed cases of the last run by error kind.")
	for _, kind := range sortedKeys(m.FailureKind) {
		pw.sample("run_failures", float64(m.FailureKind[kind]), "kind", kind)
	}

	pw.header("run_responses", "gauge", "Main-request responses of the last run by status code.")
	for _, code := range sortedKeys(m.StatusCodes) {
		pw.sample("run_responses", float64(m.StatusCodes[code]), "code", strconv.Itoa(code))
	}

	if m.Latency.Count > 0 {
		pw.header("request_duration_seconds", "summary", "Latency of every request the last run made.")
		pw.sample("request_duration_seconds", m.Latency.P50Ms/1000, "quantile", "0.5")
		pw.sample("request_duration_seconds", m.Latency.P95Ms/1000, "quantile", "0.95")
		pw.sample("request_duration_seconds", m.Latency.P99Ms/1000, "quantile", "0.99")
		pw.sample("request_duration_seconds_sum", m.Latency.MeanMs*float64(m.Latency.Count)/1000)
		pw.sample("request_duration_seconds_count", float64(m.Latency.Count))
	}

	pw.header("suite_cases", "gauge", "Cases per suite by status.")
	for _, s := range m.Suites {
		pw.sample("suite_cases", float64(s.Passed), "suite", s.File, "status", "passed")
		pw.sample("suite_cases", float64(s.Failed), "suite", s.File, "status", "failed")
		pw.sample("suite_cases", float64(s.Skipped), "suite", s.File, "status", "skipped")
	}

	pw.header("case_passed", "gauge", "1 when the case passed, 0 when it failed. Skipped cases are omitted.")
	for _, s := range m.Suites {
		for _, c := range s.Cases {
			switch c.Status {
			case "passed":
				pw.sample("case_passed", 1, "suite", s.File, "case", c.Name)
			case "failed":
				pw.sample("case_passed", 0, "suite", s.File, "case", c.Name)
			}
		}
	}

	pw.header("case_duration_seconds", "gauge", "Duration of each case that ran.")
	for _, s := range m.Suites {
		for _, c := range s.Cases {
			if c.Status != "skipped" {
				pw.sample("case_duration_seconds", c.DurationMs/1000, "suite", s.File, "case", c.Name)
			}
		}
	}

	return pw.w.Flush()
}

// sanitizeLabel escapes a Prometheus label value.
func sanitizeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
