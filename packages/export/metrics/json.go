package metrics

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONExporter writes RunMetrics as indented JSON.
type JSONExporter struct {
	pretty bool
}

type JSONOption func(*JSONExporter)

func WithJSONPretty(pretty bool) JSONOption {
	return func(j *JSONExporter) {
		j.pretty = pretty
	}
}

func NewJSONExporter(opts ...JSONOption) *JSONExporter {
	j := &JSONExporter{pretty: true}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *JSONExporter) Export(w io.Writer, m *RunMetrics) error {
	enc := json.NewEncoder(w)
	if j.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	return nil
}
