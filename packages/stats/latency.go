// Package stats aggregates request latencies into percentile summaries.
package stats

import (
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Latencies are tracked in microseconds from 1µs to 60s with three
// significant digits.
const (
	minValue = 1
	maxValue = 60_000_000
	sigFigs  = 3
)

// Latency records request durations. It is safe for concurrent use.
type Latency struct {
	mu        sync.Mutex
	histogram *hdrhistogram.Histogram
	errors    int64
}

func NewLatency() *Latency {
	return &Latency{histogram: hdrhistogram.New(minValue, maxValue, sigFigs)}
}

// Record adds one request. Failed requests are counted but their duration
// is still recorded when known.
func (l *Latency) Record(d time.Duration, err error) {
	us := d.Microseconds()
	if us < minValue {
		us = minValue
	}
	if us > maxValue {
		us = maxValue
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.errors++
	}
	_ = l.histogram.RecordValue(us)
}

// Merge folds other into l.
func (l *Latency) Merge(other *Latency) {
	if other == nil || other == l {
		return
	}
	other.mu.Lock()
	snapshot := hdrhistogram.Import(other.histogram.Export())
	errs := other.errors
	other.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.histogram.Merge(snapshot)
	l.errors += errs
}

// Summary is a point-in-time view of a Latency.
type Summary struct {
	Count  int64
	Errors int64
	Min    time.Duration
	Mean   time.Duration
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
	Max    time.Duration
}

func (l *Latency) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	h := l.histogram
	s := Summary{Count: h.TotalCount(), Errors: l.errors}
	if s.Count == 0 {
		return s
	}
	s.Min = us(h.Min())
	s.Max = us(h.Max())
	s.Mean = time.Duration(h.Mean() * float64(time.Microsecond))
	s.P50 = us(h.ValueAtQuantile(50))
	s.P95 = us(h.ValueAtQuantile(95))
	s.P99 = us(h.ValueAtQuantile(99))
	return s
}

func (s Summary) String() string {
	if s.Count == 0 {
		return "no requests"
	}
	return fmt.Sprintf("%d requests, min %s, mean %s, p50 %s, p95 %s, p99 %s, max %s",
		s.Count, round(s.Min), round(s.Mean), round(s.P50), round(s.P95), round(s.P99), round(s.Max))
}

func us(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

func round(d time.Duration) time.Duration {
	if d >= time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(10 * time.Microsecond)
}
