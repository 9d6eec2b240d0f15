package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/config"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/descriptor"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/expr"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/failure"
	"github.com/abdul-hamid-achik/ddtspec/packages/db"
	"github.com/abdul-hamid-achik/ddtspec/packages/http"
	"github.com/abdul-hamid-achik/ddtspec/packages/stats"
	"github.com/abdul-hamid-achik/ddtspec/packages/validation"
)

const (
	DefaultCaseTimeout = 120 * time.Second
	DefaultHookTimeout = 60 * time.Second
	DefaultConcurrency = 4
)

// Engine runs descriptor suites.
type Engine struct {
	cfg       *config.Config
	driver    http.Driver
	eval      *expr.Evaluator
	handlers  *validation.HandlerRegistry
	schemas   validation.SchemaValidator
	pipeline  *validation.Pipeline
	reporters *reporters
	sql       *db.Pool
	ownsSQL   bool
	logger    *zap.Logger
	filter    []string
	globals   map[string]any
}

// Option configures an Engine.
type Option func(*Engine)

// WithDriver replaces the HTTP client built from the configuration.
func WithDriver(d http.Driver) Option {
	return func(e *Engine) { e.driver = d }
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithHandlers registers Go-implemented handlers.
func WithHandlers(r *validation.HandlerRegistry) Option {
	return func(e *Engine) { e.handlers = r }
}

func WithReporter(r Reporter) Option {
	return func(e *Engine) {
		if r != nil {
			e.reporters.list = append(e.reporters.list, r)
		}
	}
}

func WithEvaluator(ev *expr.Evaluator) Option {
	return func(e *Engine) { e.eval = ev }
}

func WithSchemaValidator(v validation.SchemaValidator) Option {
	return func(e *Engine) { e.schemas = v }
}

// WithSQLPool shares a database pool across engines. The caller closes it.
func WithSQLPool(p *db.Pool) Option {
	return func(e *Engine) { e.sql = p }
}

// WithFilter selects cases whose name contains any of the substrings.
func WithFilter(substrings ...string) Option {
	return func(e *Engine) { e.filter = append(e.filter, substrings...) }
}

// WithGlobals seeds the variables every suite starts from.
func WithGlobals(vars map[string]any) Option {
	return func(e *Engine) { e.globals = vars }
}

// New creates an engine. A nil cfg uses config.DefaultConfig.
func New(cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e := &Engine{
		cfg:       cfg,
		reporters: &reporters{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.eval == nil {
		e.eval = expr.New(expr.WithLogger(e.logger))
	}
	if e.handlers == nil {
		e.handlers = validation.NewHandlerRegistry()
	}
	e.pipeline = validation.NewPipeline(e.eval,
		validation.WithHandlers(e.handlers),
		validation.WithSchemaValidator(e.schemas),
		validation.WithLogger(e.logger),
	)
	if e.driver == nil {
		e.driver = newClient(cfg, e.logger)
	}
	if e.sql == nil {
		e.sql = db.NewPool(e.logger)
		e.ownsSQL = true
	}
	return e
}

func newClient(cfg *config.Config, logger *zap.Logger) *http.Client {
	opts := []http.ClientOption{
		http.WithTimeout(cfg.RequestTimeout()),
		http.WithFollowRedirects(cfg.GetFollowRedirects()),
		http.WithValidateSSL(cfg.GetValidateSSL()),
		http.WithLogger(logger),
	}
	if cfg.MaxRedirects > 0 {
		opts = append(opts, http.WithMaxRedirects(cfg.MaxRedirects))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, http.WithHeaders(cfg.Headers))
	}
	if cfg.Proxy != "" {
		opts = append(opts, http.WithProxy(cfg.Proxy))
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, http.WithRateLimit(cfg.RateLimit))
	}
	return http.NewClient(opts...)
}

// Close releases database connections opened by the engine.
func (e *Engine) Close() error {
	if e.ownsSQL {
		return e.sql.Close()
	}
	return nil
}

func (e *Engine) caseTimeout() time.Duration {
	if d := e.cfg.CaseTimeoutDuration(); d > 0 {
		return d
	}
	return DefaultCaseTimeout
}

func (e *Engine) hookTimeout() time.Duration {
	if d := e.cfg.HookTimeoutDuration(); d > 0 {
		return d
	}
	return DefaultHookTimeout
}

type loaded struct {
	path string
	doc  *descriptor.Document
	err  error
}

// RunFiles loads every descriptor, then runs them as suites. Load failures
// are reported as failed suites and do not stop the run. When any loaded
// document has an exclusive case, only exclusive cases run anywhere.
func (e *Engine) RunFiles(ctx context.Context, paths []string) (*RunResult, error) {
	docs := make([]loaded, len(paths))
	exclusiveRun := false
	for i, p := range paths {
		doc, err := descriptor.Load(p)
		docs[i] = loaded{path: p, doc: doc, err: err}
		if err == nil && doc.HasExclusive() {
			exclusiveRun = true
		}
	}
	return e.run(ctx, docs, exclusiveRun)
}

// RunFile runs a single descriptor file.
func (e *Engine) RunFile(ctx context.Context, path string) (*SuiteResult, error) {
	res, err := e.RunFiles(ctx, []string{path})
	return res.Suites[0], err
}

// RunDocument runs an already loaded document.
func (e *Engine) RunDocument(ctx context.Context, doc *descriptor.Document) (*SuiteResult, error) {
	res, err := e.run(ctx, []loaded{{path: doc.Path, doc: doc}}, doc.HasExclusive())
	return res.Suites[0], err
}

func (e *Engine) run(ctx context.Context, docs []loaded, exclusiveRun bool) (*RunResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	latency := stats.NewLatency()

	e.logger.Info("run started", zap.String("run", runID), zap.Int("suites", len(docs)))

	results := make([]*SuiteResult, len(docs))
	runOne := func(i int) {
		l := docs[i]
		if l.err != nil {
			results[i] = e.loadFailure(runID, l)
			return
		}
		s := e.newSuite(runID, l.doc, exclusiveRun)
		results[i] = s.run(ctx)
		latency.Merge(s.latency)
	}

	if e.cfg.GetParallel() && len(docs) > 1 {
		e.runParallel(ctx, len(docs), runOne)
		for i, r := range results {
			if r == nil {
				results[i] = e.abandoned(runID, docs[i])
			}
		}
	} else {
		bailed := false
		for i := range docs {
			if bailed || ctx.Err() != nil {
				results[i] = e.abandoned(runID, docs[i])
				continue
			}
			runOne(i)
			if e.cfg.GetBail() && !results[i].OK() {
				bailed = true
			}
		}
	}

	run := &RunResult{ID: runID}
	for _, r := range results {
		run.add(r)
	}
	run.Duration = time.Since(start)
	run.Latency = latency.Summary()
	e.reporters.runFinished(run)

	e.logger.Info("run finished",
		zap.String("run", runID),
		zap.Int("passed", run.Passed),
		zap.Int("failed", run.Failed),
		zap.Int("skipped", run.Skipped),
		zap.Duration("duration", run.Duration))

	return run, ctx.Err()
}

// runParallel runs suites with at most Concurrency in flight. Result order
// follows the input order.
func (e *Engine) runParallel(ctx context.Context, n int, runOne func(int)) {
	concurrency := e.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			runOne(idx)
		}(i)
	}
	wg.Wait()
}

func (e *Engine) loadFailure(runID string, l loaded) *SuiteResult {
	info := &SuiteInfo{File: l.path, RunID: runID}
	e.reporters.suiteStarted(info)
	err := l.err
	var loadErr *failure.LoadError
	if !errors.As(err, &loadErr) {
		err = &failure.LoadError{Path: l.path, Err: err}
	}
	res := &SuiteResult{SuiteInfo: *info, Err: err}
	e.logger.Error("descriptor failed to load", zap.String("suite", l.path), zap.Error(err))
	e.reporters.suiteFinished(res)
	return res
}

// abandoned reports a suite that never started because of bail or
// cancellation.
func (e *Engine) abandoned(runID string, l loaded) *SuiteResult {
	res := &SuiteResult{SuiteInfo: SuiteInfo{File: l.path, RunID: runID}}
	if l.doc == nil {
		return res
	}
	res.SuiteInfo.Cases = len(l.doc.Cases)
	for _, c := range l.doc.Cases {
		res.add(&CaseResult{
			Name:       c.Name,
			Declared:   c.Declared,
			File:       l.path,
			Status:     StatusSkipped,
			SkipReason: SkipBail,
		})
	}
	return res
}
