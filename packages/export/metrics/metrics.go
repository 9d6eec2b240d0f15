// Package metrics exports the outcome of a run as Prometheus text or JSON,
// for node_exporter's textfile collector or any scraper that reads files.
package metrics

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/runner"
	"github.com/abdul-hamid-achik/ddtspec/packages/stats"
)

// RunMetrics is a flattened view of a finished run.
type RunMetrics struct {
	RunID       string         `json:"run_id"`
	Timestamp   time.Time      `json:"timestamp"`
	DurationMs  float64        `json:"duration_ms"`
	Total       int            `json:"total"`
	Passed      int            `json:"passed"`
	Failed      int            `json:"failed"`
	Skipped     int            `json:"skipped"`
	SuiteErrors int            `json:"suite_errors"`
	Latency     LatencyMetrics `json:"latency"`
	StatusCodes map[int]int    `json:"status_codes"`
	FailureKind map[string]int `json:"failures_by_kind"`
	Suites      []SuiteMetrics `json:"suites"`
}

type SuiteMetrics struct {
	File       string         `json:"file"`
	Passed     int            `json:"passed"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Error      string         `json:"error,omitempty"`
	DurationMs float64        `json:"duration_ms"`
	Latency    LatencyMetrics `json:"latency"`
	Cases      []CaseMetrics  `json:"cases"`
}

type CaseMetrics struct {
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	Kind       string  `json:"kind,omitempty"`
	StatusCode int     `json:"status_code,omitempty"`
	DurationMs float64 `json:"duration_ms"`
}

// LatencyMetrics mirrors stats.Summary in milliseconds.
type LatencyMetrics struct {
	Count  int64   `json:"count"`
	Errors int64   `json:"errors"`
	MinMs  float64 `json:"min_ms"`
	MeanMs float64 `json:"mean_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P95Ms  float64 `json:"p95_ms"`
	P99Ms  float64 `json:"p99_ms"`
	MaxMs  float64 `json:"max_ms"`
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func latency(s stats.Summary) LatencyMetrics {
	return LatencyMetrics{
		Count:  s.Count,
		Errors: s.Errors,
		MinMs:  ms(s.Min),
		MeanMs: ms(s.Mean),
		P50Ms:  ms(s.P50),
		P95Ms:  ms(s.P95),
		P99Ms:  ms(s.P99),
		MaxMs:  ms(s.Max),
	}
}

// FromRun flattens run.
func FromRun(run *runner.RunResult, now time.Time) *RunMetrics {
	m := &RunMetrics{
		RunID:       run.ID,
		Timestamp:   now,
		DurationMs:  ms(run.Duration),
		Total:       run.Passed + run.Failed + run.Skipped,
		Passed:      run.Passed,
		Failed:      run.Failed,
		Skipped:     run.Skipped,
		SuiteErrors: run.Errors,
		Latency:     latency(run.Latency),
		StatusCodes: make(map[int]int),
		FailureKind: make(map[string]int),
	}

	for _, s := range run.Suites {
		sm := SuiteMetrics{
			File:       s.File,
			Passed:     s.Passed,
			Failed:     s.Failed,
			Skipped:    s.Skipped,
			DurationMs: ms(s.Duration),
			Latency:    latency(s.Latency),
			Cases:      make([]CaseMetrics, 0, len(s.Cases)),
		}
		if s.Err != nil {
			sm.Error = s.Err.Error()
		}
		for _, c := range s.Cases {
			sm.Cases = append(sm.Cases, CaseMetrics{
				Name:       c.Name,
				Status:     string(c.Status),
				Kind:       c.Kind,
				StatusCode: c.Attachments.Status,
				DurationMs: ms(c.Duration),
			})
			if c.Attachments.Status != 0 {
				m.StatusCodes[c.Attachments.Status]++
			}
			if c.Failed() && c.Kind != "" {
				m.FailureKind[c.Kind]++
			}
		}
		m.Suites = append(m.Suites, sm)
	}
	return m
}

// Exporter writes a run's metrics.
type Exporter interface {
	Export(w io.Writer, m *RunMetrics) error
}

// ExporterFor picks the exporter from the file extension: .json writes
// JSON, anything else the Prometheus text format.
func ExporterFor(path string) Exporter {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return NewJSONExporter()
	}
	return NewPrometheusExporter()
}

// FileReporter exports every finished run to a file. The file is replaced
// atomically so a collector never reads a partial write.
type FileReporter struct {
	path     string
	exporter Exporter
	now      func() time.Time

	mu  sync.Mutex
	err error
}

func NewFileReporter(path string, exporter Exporter) *FileReporter {
	if exporter == nil {
		exporter = ExporterFor(path)
	}
	return &FileReporter{path: path, exporter: exporter, now: time.Now}
}

func (r *FileReporter) SuiteStarted(*runner.SuiteInfo) {}

func (r *FileReporter) CaseFinished(*runner.SuiteInfo, *runner.CaseResult) {}

func (r *FileReporter) SuiteFinished(*runner.SuiteResult) {}

func (r *FileReporter) RunFinished(run *runner.RunResult) {
	err := r.write(FromRun(run, r.now()))
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Err returns the error of the most recent export.
func (r *FileReporter) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *FileReporter) write(m *RunMetrics) error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := r.exporter.Export(tmp, m); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}

func sortedKeys[K int | string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

var (
	_ runner.Reporter    = (*FileReporter)(nil)
	_ runner.RunReporter = (*FileReporter)(nil)
)
