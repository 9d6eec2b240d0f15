package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/descriptor"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/expr"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/failure"
	"github.com/abdul-hamid-achik/ddtspec/packages/http"
)

// Stage names as they appear in AssertionError.Stage.
const (
	StageStatus       = "status"
	StageScript       = "script"
	StageSchema       = "schema"
	StageHeaders      = "headers"
	StageHasJSON      = "has-json"
	StageHasNotJSON   = "has-not-json"
	StageVerifyPath   = "verifypath"
	StageBody         = "body"
	StageResponseTime = "responsetime"
	StageHandler      = "handler"
)

// Pipeline runs the validation stages.
type Pipeline struct {
	eval     *expr.Evaluator
	schemas  SchemaValidator
	handlers *HandlerRegistry
	logger   *zap.Logger
}

type Option func(*Pipeline)

func WithSchemaValidator(v SchemaValidator) Option {
	return func(p *Pipeline) {
		if v != nil {
			p.schemas = v
		}
	}
}

func WithHandlers(r *HandlerRegistry) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.handlers = r
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewPipeline(eval *expr.Evaluator, opts ...Option) *Pipeline {
	p := &Pipeline{
		eval:     eval,
		schemas:  GoJSONSchema{},
		handlers: NewHandlerRegistry(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handlers returns the registry consulted by ResolveHandler.
func (p *Pipeline) Handlers() *HandlerRegistry {
	return p.handlers
}

// Check is one response to validate.
type Check struct {
	Label   string
	Outcome *http.Outcome
	// Status is the case-level shorthand, checked before Asserts.Status.
	Status  *descriptor.StatusExpectation
	Asserts *descriptor.Asserts
	Schemas map[string]map[string]any
	Handler *Handler
	// Context is passed to handler steps and supplies the expression scope.
	Context *HandlerContext
}

type stage struct {
	name string
	run  func(ctx context.Context, c *Check) (string, error)
}

// Validate runs every stage in order and returns the first violation as a
// *failure.AssertionError.
func (p *Pipeline) Validate(ctx context.Context, c *Check) error {
	stages := []stage{
		{StageStatus, func(_ context.Context, c *Check) (string, error) { return checkStatus(c.Outcome, c.Status), nil }},
		{StageStatus, func(_ context.Context, c *Check) (string, error) { return checkStatus(c.Outcome, c.asserts().Status), nil }},
		{StageScript, p.checkScript},
		{StageSchema, p.checkSchema},
		{StageHeaders, checkHeaders},
		{StageHasJSON, func(_ context.Context, c *Check) (string, error) { return checkJSON(c.Outcome.Body, c.asserts().HasJSON, true) }},
		{StageHasNotJSON, func(_ context.Context, c *Check) (string, error) { return checkJSON(c.Outcome.Body, c.asserts().HasNotJSON, false) }},
		{StageVerifyPath, p.checkVerifyPath},
		{StageBody, checkBody},
		{StageResponseTime, checkResponseTime},
		{StageHandler, checkHandler},
	}

	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		detail, err := s.run(ctx, c)
		if err != nil {
			detail = failureMessage(err)
		}
		if detail != "" {
			p.logger.Debug("validation failed",
				zap.String("step", c.Label),
				zap.String("stage", s.name),
				zap.String("detail", detail))
			return &failure.AssertionError{Label: c.Label, Stage: s.name, Detail: detail}
		}
	}
	return nil
}

func (c *Check) asserts() *descriptor.Asserts {
	if c.Asserts == nil {
		return &descriptor.Asserts{}
	}
	return c.Asserts
}

func (c *Check) scope() expr.Scope {
	if c.Context == nil || c.Context.Scope == nil {
		return expr.Vars{}
	}
	return c.Context.Scope
}

func checkStatus(out *http.Outcome, want *descriptor.StatusExpectation) string {
	if want == nil || len(want.Codes) == 0 {
		return ""
	}
	actual := out.StatusCode()
	for _, code := range want.Codes {
		if code == actual {
			return ""
		}
	}
	if !want.List {
		return fmt.Sprintf("expected status code %d to equal %d", actual, want.Codes[0])
	}
	codes := make([]string, len(want.Codes))
	for i, code := range want.Codes {
		codes[i] = fmt.Sprint(code)
	}
	return fmt.Sprintf("expected status code %d to be one of [%s]", actual, strings.Join(codes, ","))
}

func (p *Pipeline) checkScript(_ context.Context, c *Check) (string, error) {
	src := c.asserts().Script
	if src == "" {
		return "", nil
	}
	_, err := p.eval.Exec(src, c.scope())
	return "", err
}

func (p *Pipeline) checkSchema(_ context.Context, c *Check) (string, error) {
	a := c.asserts()
	if a.Schema == nil {
		return "", nil
	}

	schema := a.Schema
	if name, ok := a.SchemaName(); ok {
		named, found := c.Schemas[name]
		if !found {
			return fmt.Sprintf("schema %s is not defined", name), nil
		}
		schema = named
	}

	refs := make(map[string]any, len(c.Schemas))
	for name, s := range c.Schemas {
		refs[name] = s
	}

	res, err := p.schemas.Validate(c.Outcome.Body, schema, refs)
	if err != nil {
		return "", err
	}
	if res.Valid {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("expected JSON to match schema ")
	sb.WriteString(expr.Format(schema))
	sb.WriteString(".")
	if len(res.Missing) > 0 {
		sb.WriteString("\n unresolved schemas: ")
		sb.WriteString(strings.Join(res.Missing, ", "))
	}
	for _, e := range res.Errors {
		fmt.Fprintf(&sb, "\n Error: %s.\n data path: %s.\n schema path: %s.", e.Message, e.DataPath, e.SchemaPath)
	}
	return sb.String(), nil
}

func checkHeaders(_ context.Context, c *Check) (string, error) {
	if c.Outcome.Response == nil {
		return "", nil
	}
	for _, h := range c.asserts().Headers {
		value, present := lookupHeader(c.Outcome.Response.Headers, h.Name)
		if !present {
			return fmt.Sprintf("expected header %s to be present", h.Name), nil
		}
		re, err := compilePattern(h.Pattern)
		if err != nil {
			return fmt.Sprintf("invalid pattern for header %s: %v", h.Name, err), nil
		}
		if !re.MatchString(value) {
			return fmt.Sprintf("expected header %s to match /%s/", h.Name, re.String()), nil
		}
	}
	return "", nil
}

func lookupHeader(headers map[string]string, name string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// checkJSON handles has-json (want true) and has-not-json. A key starting
// with $ is a JSONPath query and matches if any result comprises the
// expected value; other keys are gjson paths.
func checkJSON(body any, checks []map[string]any, want bool) (string, error) {
	if len(checks) == 0 {
		return "", nil
	}
	var raw []byte
	for _, check := range checks {
		paths := make([]string, 0, len(check))
		for path := range check {
			paths = append(paths, path)
		}
		sort.Strings(paths)

		for _, path := range paths {
			expected := expr.Normalize(check[path])

			var candidates []any
			if strings.HasPrefix(path, "$") {
				matches, err := expr.Query(body, path)
				if err != nil {
					return fmt.Sprintf("invalid path %s: %v", path, err), nil
				}
				candidates = matches
			} else {
				if raw == nil {
					var err error
					if raw, err = json.Marshal(body); err != nil {
						return "", err
					}
				}
				if res := gjson.GetBytes(raw, path); res.Exists() {
					candidates = []any{res.Value()}
				}
			}

			found := false
			for _, candidate := range candidates {
				if Comprises(candidate, expected) {
					found = true
					break
				}
			}
			if found == want {
				continue
			}
			if want {
				return fmt.Sprintf("expected JSON to comprise %s at path %s", expr.Format(expected), path), nil
			}
			return fmt.Sprintf("expected JSON not to comprise %s at path %s", expr.Format(expected), path), nil
		}
	}
	return "", nil
}

// Comprises reports whether actual contains expected: objects by subset of
// keys, arrays by every expected element being comprised by some actual
// element, scalars by loose equality.
func Comprises(actual, expected any) bool {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, v := range exp {
			av, present := act[k]
			if !present || !Comprises(av, v) {
				return false
			}
		}
		return true
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return false
		}
		for _, ev := range exp {
			matched := false
			for _, av := range act {
				if Comprises(av, ev) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		}
		return true
	}
	return expr.LooseEqual(actual, expected)
}

func (p *Pipeline) checkVerifyPath(_ context.Context, c *Check) (string, error) {
	for _, check := range c.asserts().VerifyPath {
		matches, err := expr.Query(c.Outcome.Body, check.Path)
		if err != nil {
			return fmt.Sprintf("invalid path %s: %v", check.Path, err), nil
		}

		if check.Expect == "" {
			if len(matches) == 0 {
				return fmt.Sprintf("expected path %s to match at least one value", check.Path), nil
			}
			continue
		}

		scope := expr.Chain{expr.Vars{"value": matches}, c.scope()}
		v, err := p.eval.Exec(check.Expect, scope)
		if err != nil {
			return "", err
		}
		if !expr.Truthy(v) {
			return fmt.Sprintf("expected path %s to satisfy %s", check.Path, check.Expect), nil
		}
	}
	return "", nil
}

func checkBody(_ context.Context, c *Check) (string, error) {
	patterns := c.asserts().Body
	if len(patterns) == 0 {
		return "", nil
	}
	text, err := bodyText(c.Outcome.Body)
	if err != nil {
		return "", err
	}
	for _, pattern := range patterns {
		re, err := compilePattern(pattern)
		if err != nil {
			return fmt.Sprintf("invalid body pattern: %v", err), nil
		}
		if !re.MatchString(text) {
			return fmt.Sprintf("expected body to match /%s/", re.String()), nil
		}
	}
	return "", nil
}

func bodyText(body any) (string, error) {
	switch b := body.(type) {
	case nil:
		return "", nil
	case string:
		return b, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func checkResponseTime(_ context.Context, c *Check) (string, error) {
	limit := c.asserts().ResponseTime
	if limit <= 0 {
		return "", nil
	}
	elapsed := c.Outcome.Elapsed.Milliseconds()
	if elapsed > int64(limit) {
		return fmt.Sprintf("expected response time of %dms to be less than or equal to %dms", elapsed, limit), nil
	}
	return "", nil
}

func checkHandler(ctx context.Context, c *Check) (string, error) {
	if c.Handler == nil {
		return "", nil
	}
	hc := c.Context
	if hc == nil {
		hc = &HandlerContext{Outcome: c.Outcome, Scope: expr.Vars{}}
	}
	for _, step := range []HandlerFunc{c.Handler.Validate, c.Handler.After} {
		if step == nil {
			continue
		}
		if err := step(ctx, hc); err != nil {
			return "", err
		}
	}
	return "", nil
}

// compilePattern accepts both "re" and "/re/".
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if len(pattern) >= 2 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
		pattern = pattern[1 : len(pattern)-1]
	}
	return regexp.Compile(pattern)
}

// failureMessage prefers the message of an assert()/equal() failure over
// the wrapping expression error.
func failureMessage(err error) string {
	var f *expr.Failure
	if errors.As(err, &f) {
		return f.Message
	}
	return err.Error()
}
