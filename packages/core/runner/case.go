package runner

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/descriptor"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/expr"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/failure"
	"github.com/abdul-hamid-achik/ddtspec/packages/http"
	"github.com/abdul-hamid-achik/ddtspec/packages/validation"
)

// caseRun holds the state of one case execution. Attachments and teardown
// errors are read by the scheduler even when the case goroutine was
// abandoned after a timeout, hence the mutex.
type caseRun struct {
	suite  *suite
	c      *descriptor.Case
	logger *zap.Logger

	mu          sync.Mutex
	attachments Attachments
	teardown    []error
}

func (s *suite) caseLimit(c *descriptor.Case) time.Duration {
	if c.Asserts != nil && c.Asserts.ResponseTime > 0 {
		return time.Duration(c.Asserts.ResponseTime) * time.Millisecond
	}
	return s.engine.caseTimeout()
}

// runCase executes c under its time budget. On expiry the case is reported
// as timed out and its goroutine is left to observe the cancelled context.
func (s *suite) runCase(ctx context.Context, c *descriptor.Case) *CaseResult {
	start := time.Now()
	limit := s.caseLimit(c)
	cctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	cr := &caseRun{suite: s, c: c, logger: s.logger.With(zap.String("case", c.Name))}
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- cr.run(cctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-cctx.Done():
		if ctx.Err() != nil {
			err = ctx.Err()
		} else {
			err = &failure.TimeoutError{Case: c.Name, Limit: limit}
		}
	}

	res := &CaseResult{
		Name:     c.Name,
		Declared: c.Declared,
		File:     s.doc.Path,
		Status:   StatusPassed,
		Duration: time.Since(start),
	}
	cr.mu.Lock()
	res.Attachments = cr.attachments
	res.TeardownErrors = append([]error(nil), cr.teardown...)
	cr.mu.Unlock()

	if err != nil {
		res.fail(err)
		cr.logger.Debug("case failed", zap.String("kind", res.Kind), zap.Error(err))
	}
	return res
}

func (cr *caseRun) run(ctx context.Context) error {
	s, c, doc := cr.suite, cr.c, cr.suite.doc

	locals := expr.Vars{"test": c.Raw, "fileDir": doc.Dir}

	if dep := c.Data.DependsOn; dep != "" {
		if doc.CaseByDeclaredName(dep) == nil {
			return &failure.DependencyError{Case: c.Name, Dependency: dep, Reason: "no such test is declared"}
		}
		value, ok := s.store.get(dep)
		if !ok {
			return &failure.DependencyError{Case: c.Name, Dependency: dep}
		}
		locals["dependson"] = value
		locals["$dependson"] = value
	}

	setup := append(append([]*descriptor.Hook(nil), doc.BeforeEach...), c.Before...)
	for _, h := range setup {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.runHook(ctx, h, locals); err != nil {
			return &failure.SetupError{Phase: string(h.Phase), Step: h.ID, Err: err}
		}
	}

	hc := &validation.HandlerContext{Case: c, Scope: s.scope.with(locals)}
	handler := s.engine.pipeline.ResolveHandler(c.Handler, doc.Handlers[c.Handler])
	if handler != nil && handler.Before != nil {
		if err := handler.Before(ctx, hc); err != nil {
			return &failure.SetupError{Phase: string(descriptor.PhaseBefore), Step: "handler " + c.Handler, Err: err}
		}
	}

	mainErr := cr.main(ctx, locals, handler, hc)

	teardown := append(append([]*descriptor.Hook(nil), doc.AfterEach...), c.After...)
	for _, h := range teardown {
		if ctx.Err() != nil {
			break
		}
		if err := s.runHook(ctx, h, locals); err != nil {
			cr.logger.Error("teardown failed",
				zap.String("phase", string(h.Phase)),
				zap.String("step", h.ID),
				zap.Error(err))
			cr.addTeardown(&failure.TeardownError{Phase: string(h.Phase), Step: h.ID, Err: err})
		}
	}

	if first := cr.firstTeardown(); first != nil {
		return first
	}
	return mainErr
}

// main resolves and performs the case request, then validates the outcome.
func (cr *caseRun) main(ctx context.Context, locals expr.Vars, handler *validation.Handler, hc *validation.HandlerContext) error {
	s, c := cr.suite, cr.c
	e := s.engine
	sc := s.scope.with(locals)
	method := requestMethod(c.Data.Method)

	url, err := e.eval.ResolveString(c.Data.URL, sc)
	if err != nil {
		return fmt.Errorf("(main request) %s %s: %w", method, c.Data.URL, err)
	}
	resolved, err := e.eval.ResolveTree(c.Data.Options, sc)
	if err != nil {
		return fmt.Errorf("(main request) %s %s: %w", method, url, err)
	}
	options, _ := resolved.(map[string]any)
	label := fmt.Sprintf("(main request) %s %s", method, url)

	cr.mu.Lock()
	cr.attachments = Attachments{Method: method, URL: url, Options: options}
	cr.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	out := e.driver.Perform(context.WithoutCancel(ctx), method, url, withBaseDir(options, s.doc.Dir))
	s.latency.Record(out.Elapsed, out.Err)

	cr.mu.Lock()
	cr.attachments.Status = out.StatusCode()
	cr.attachments.Body = out.Body
	cr.mu.Unlock()

	if out.Err != nil {
		return &failure.RequestError{Label: label, Err: out.Err}
	}

	// Captured before validation: dependents see the body even when this
	// case's assertions fail.
	if s.store.isTarget(c) {
		s.store.put(c, out.Body)
	}
	locals["response"] = out.Value()
	hc.Outcome = out

	return e.pipeline.Validate(ctx, &validation.Check{
		Label:   label,
		Outcome: out,
		Status:  c.Status,
		Asserts: c.Asserts,
		Schemas: s.doc.Schemas,
		Handler: handler,
		Context: hc,
	})
}

func (cr *caseRun) addTeardown(err error) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cr.teardown = append(cr.teardown, err)
}

func (cr *caseRun) firstTeardown() error {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if len(cr.teardown) == 0 {
		return nil
	}
	return cr.teardown[0]
}

func requestMethod(m string) string {
	if m == "" {
		return "GET"
	}
	return strings.ToUpper(m)
}

// withBaseDir lets file references in form data resolve next to the
// descriptor.
func withBaseDir(options map[string]any, dir string) map[string]any {
	out := maps.Clone(options)
	if out == nil {
		out = make(map[string]any, 1)
	}
	if _, ok := out["baseDir"]; !ok {
		out["baseDir"] = dir
	}
	return out
}

var _ http.Driver = (*http.Client)(nil)
