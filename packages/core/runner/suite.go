package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/descriptor"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/env"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/expr"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/failure"
	"github.com/abdul-hamid-achik/ddtspec/packages/stats"
)

// suite is one descriptor being executed. It owns its scope and result
// store, so suites never share mutable state.
type suite struct {
	engine       *Engine
	doc          *descriptor.Document
	info         *SuiteInfo
	scope        *scope
	store        *resultStore
	latency      *stats.Latency
	exclusiveRun bool
	logger       *zap.Logger
}

func (e *Engine) newSuite(runID string, doc *descriptor.Document, exclusiveRun bool) *suite {
	return &suite{
		engine:       e,
		doc:          doc,
		info:         &SuiteInfo{File: doc.Path, Cases: len(doc.Cases), RunID: runID},
		scope:        newScope(env.NewGlobals(e.globals)),
		store:        newResultStore(doc),
		latency:      stats.NewLatency(),
		exclusiveRun: exclusiveRun,
		logger:       e.logger.With(zap.String("suite", doc.Path)),
	}
}

func (s *suite) run(ctx context.Context) *SuiteResult {
	start := time.Now()
	e := s.engine
	e.reporters.suiteStarted(s.info)

	res := &SuiteResult{SuiteInfo: *s.info}
	defer func() {
		res.Duration = time.Since(start)
		res.Latency = s.latency.Summary()
		e.reporters.suiteFinished(res)
		s.logger.Info("suite finished",
			zap.Int("passed", res.Passed),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped),
			zap.Duration("duration", res.Duration))
	}()

	if err := s.doc.Check(e.handlers.Has); err != nil {
		res.Err = err
		s.logger.Error("invalid suite", zap.Error(err))
		s.skipRemaining(res, 0, SkipInvalidSuite)
		return res
	}

	if err := s.applyConfig(); err != nil {
		res.Err = err
		s.logger.Error("config assignment failed", zap.Error(err))
		s.skipRemaining(res, 0, SkipInvalidSuite)
		return res
	}

	if s.doc.SkipAll {
		s.skipRemaining(res, 0, SkipAll)
		return res
	}

	if !s.anyRunnable() {
		for _, c := range s.doc.Cases {
			s.report(res, s.skipped(c, skipReason(c, e.filter, s.exclusiveRun)))
		}
		return res
	}

	if h, err := s.runBeforeAll(ctx); err != nil {
		res.Err = &failure.SetupError{Phase: string(h.Phase), Step: h.ID, Err: err}
		s.logger.Error("beforeAll failed", zap.Error(err))
		s.skipRemaining(res, 0, SkipBeforeAllFailed)
	} else {
		s.runCases(ctx, res)
	}

	teardown := s.runAfterAll(ctx)
	if res.Err == nil && len(teardown) > 0 {
		res.Err = teardown[0]
	}
	return res
}

func (s *suite) runCases(ctx context.Context, res *SuiteResult) {
	e := s.engine
	for i, c := range s.doc.Cases {
		if ctx.Err() != nil {
			s.skipRemaining(res, i, SkipBail)
			return
		}
		if reason := skipReason(c, e.filter, s.exclusiveRun); reason != "" {
			s.report(res, s.skipped(c, reason))
			continue
		}
		result := s.runCase(ctx, c)
		s.report(res, result)
		if e.cfg.GetBail() && result.Failed() {
			s.skipRemaining(res, i+1, SkipBail)
			return
		}
	}
}

// applyConfig assigns config entries in declaration order. Values that are
// already defined win.
func (s *suite) applyConfig() error {
	eval := s.engine.eval
	for _, entry := range s.doc.Config {
		value, err := eval.ResolveTree(entry.Template, s.scope)
		if err != nil {
			return &failure.ConfigurationError{
				File:     s.doc.Path,
				Problems: []string{fmt.Sprintf("config %s: %v", entry.Name, err)},
			}
		}
		if value == nil {
			s.logger.Warn("config value resolved to nothing", zap.String("name", entry.Name))
		}
		s.scope.globals.SetIfAbsent(entry.Name, value)
		effective, _ := s.scope.globals.Lookup(entry.Name)
		s.scope.setConfig(entry.Name, effective)
	}
	return nil
}

func (s *suite) anyRunnable() bool {
	for _, c := range s.doc.Cases {
		if skipReason(c, s.engine.filter, s.exclusiveRun) == "" {
			return true
		}
	}
	return false
}

// runBeforeAll runs beforeAll hooks in order, each bounded by the hook
// timeout, and stops at the first failure.
func (s *suite) runBeforeAll(ctx context.Context) (*descriptor.Hook, error) {
	for _, h := range s.doc.BeforeAll {
		if err := s.runBoundedHook(ctx, h); err != nil {
			return h, err
		}
	}
	return nil, nil
}

// runAfterAll attempts every afterAll hook and returns the failures.
func (s *suite) runAfterAll(ctx context.Context) []error {
	var errs []error
	for _, h := range s.doc.AfterAll {
		if err := s.runBoundedHook(ctx, h); err != nil {
			terr := &failure.TeardownError{Phase: string(h.Phase), Step: h.ID, Err: err}
			s.logger.Error("teardown failed",
				zap.String("phase", string(h.Phase)),
				zap.String("step", h.ID),
				zap.Error(err))
			errs = append(errs, terr)
		}
	}
	return errs
}

func (s *suite) runBoundedHook(ctx context.Context, h *descriptor.Hook) error {
	limit := s.engine.hookTimeout()
	hctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- s.runHook(hctx, h, s.baseLocals())
	}()

	select {
	case err := <-done:
		return err
	case <-hctx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &failure.TimeoutError{Case: string(h.Phase) + " " + h.ID, Limit: limit}
	}
}

func (s *suite) baseLocals() expr.Vars {
	return expr.Vars{"fileDir": s.doc.Dir}
}

func (s *suite) skipped(c *descriptor.Case, reason string) *CaseResult {
	return &CaseResult{
		Name:       c.Name,
		Declared:   c.Declared,
		File:       s.doc.Path,
		Status:     StatusSkipped,
		SkipReason: reason,
	}
}

func (s *suite) skipRemaining(res *SuiteResult, from int, reason string) {
	for _, c := range s.doc.Cases[from:] {
		s.report(res, s.skipped(c, reason))
	}
}

func (s *suite) report(res *SuiteResult, c *CaseResult) {
	res.add(c)
	s.engine.reporters.caseFinished(s.info, c)
}

