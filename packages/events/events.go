// Package events publishes run results as CloudEvents.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/runner"
)

// Event types.
const (
	TypeSuiteStarted  = "dev.ddtspec.suite.started"
	TypeCaseFinished  = "dev.ddtspec.case.finished"
	TypeSuiteFinished = "dev.ddtspec.suite.finished"
	TypeRunFinished   = "dev.ddtspec.run.finished"
)

// DefaultSource is the CloudEvents source attribute.
const DefaultSource = "ddtspec"

// Policy decides which events are sent.
type Policy string

const (
	// PolicyAlways sends every event.
	PolicyAlways Policy = "always"
	// PolicyFailure sends only failed cases and unsuccessful suites and runs.
	PolicyFailure Policy = "failure"
	// PolicyRecovery behaves like PolicyFailure and also sends the first
	// successful run after a failing one.
	PolicyRecovery Policy = "recovery"
)

// ParsePolicy accepts "", always, failure and recovery.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyAlways:
		return PolicyAlways, nil
	case PolicyFailure, PolicyRecovery:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown event policy %q", s)
}

// Sender delivers a single event.
type Sender interface {
	Send(ctx context.Context, event cloudevents.Event) error
}

// HTTPSender posts events to a sink over HTTP in binary content mode.
type HTTPSender struct {
	client cloudevents.Client
	sink   string
}

func NewHTTPSender(sink string) (*HTTPSender, error) {
	c, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudevents client: %w", err)
	}
	return &HTTPSender{client: c, sink: sink}, nil
}

func (s *HTTPSender) Send(ctx context.Context, event cloudevents.Event) error {
	result := s.client.Send(cloudevents.ContextWithTarget(ctx, s.sink), event)
	if cloudevents.IsUndelivered(result) {
		return fmt.Errorf("failed to deliver %s: %w", event.Type(), result)
	}
	if !cloudevents.IsACK(result) {
		return fmt.Errorf("sink rejected %s: %w", event.Type(), result)
	}
	return nil
}

// Reporter is a runner.Reporter that turns lifecycle callbacks into events.
// Delivery failures are logged and remembered; they never fail the run.
type Reporter struct {
	sender  Sender
	source  string
	policy  Policy
	timeout time.Duration
	logger  *zap.Logger

	mu        sync.Mutex
	lastOK    bool
	firstErr  error
	delivered int
}

type Option func(*Reporter)

func WithSource(source string) Option {
	return func(r *Reporter) {
		if source != "" {
			r.source = source
		}
	}
}

func WithPolicy(p Policy) Option {
	return func(r *Reporter) {
		if p != "" {
			r.policy = p
		}
	}
}

// WithTimeout bounds each delivery.
func WithTimeout(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Reporter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewReporter(sender Sender, opts ...Option) *Reporter {
	r := &Reporter{
		sender:  sender,
		source:  DefaultSource,
		policy:  PolicyAlways,
		timeout: 10 * time.Second,
		logger:  zap.NewNop(),
		lastOK:  true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Err returns the first delivery failure.
func (r *Reporter) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstErr
}

// Delivered counts successfully sent events.
func (r *Reporter) Delivered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delivered
}

func (r *Reporter) SuiteStarted(info *runner.SuiteInfo) {
	if r.policy != PolicyAlways {
		return
	}
	r.emit(TypeSuiteStarted, info.RunID, info.File, SuiteStartedData{File: info.File, Cases: info.Cases})
}

func (r *Reporter) CaseFinished(info *runner.SuiteInfo, res *runner.CaseResult) {
	if r.policy != PolicyAlways && !res.Failed() {
		return
	}
	r.emit(TypeCaseFinished, info.RunID, res.Name, caseData(res))
}

func (r *Reporter) SuiteFinished(res *runner.SuiteResult) {
	if r.policy != PolicyAlways && res.OK() {
		return
	}
	r.emit(TypeSuiteFinished, res.RunID, res.File, suiteData(res))
}

func (r *Reporter) RunFinished(res *runner.RunResult) {
	r.mu.Lock()
	recovered := !r.lastOK && res.OK()
	r.lastOK = res.OK()
	r.mu.Unlock()

	switch r.policy {
	case PolicyFailure:
		if res.OK() {
			return
		}
	case PolicyRecovery:
		if res.OK() && !recovered {
			return
		}
	}
	data := runData(res)
	data.Recovered = recovered
	r.emit(TypeRunFinished, res.ID, "", data)
}

func (r *Reporter) emit(eventType, runID, subject string, data any) {
	event := NewEvent(eventType, r.source, runID, subject, data)

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err := r.sender.Send(ctx, event)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.logger.Warn("event delivery failed",
			zap.String("type", eventType),
			zap.String("id", event.ID()),
			zap.Error(err))
		if r.firstErr == nil {
			r.firstErr = err
		}
		return
	}
	r.delivered++
}

// NewEvent builds a JSON event with a time-ordered ID.
func NewEvent(eventType, source, runID, subject string, data any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(eventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	if subject != "" {
		event.SetSubject(subject)
	}
	if runID != "" {
		event.SetExtension("runid", runID)
	}
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}

func eventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

var _ runner.Reporter = (*Reporter)(nil)
var _ runner.RunReporter = (*Reporter)(nil)
