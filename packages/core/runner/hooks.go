package runner

import (
	"context"
	"fmt"
	"maps"

	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/descriptor"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/expr"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/failure"
	"github.com/abdul-hamid-achik/ddtspec/packages/validation"
)

// runHook executes the steps of h in order: request, script, sql. Each
// step's result is stored in the scope under the hook's phase and id.
func (s *suite) runHook(ctx context.Context, h *descriptor.Hook, locals expr.Vars) error {
	locals = maps.Clone(locals)
	logger := s.logger.With(zap.String("phase", string(h.Phase)), zap.String("step", h.ID))

	if h.URL != "" {
		if err := s.hookRequest(ctx, h, locals); err != nil {
			return err
		}
	}

	if h.Script != "" {
		if err := ctx.Err(); err != nil {
			return err
		}
		value, err := s.engine.eval.Exec(h.Script, s.scope.with(locals))
		if err != nil {
			return fmt.Errorf("(%s - %s) script: %w", h.Phase, h.ID, err)
		}
		if expr.Truthy(value) {
			s.scope.set(h.Phase, h.ID, value)
		}
	}

	if h.SQL != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.hookSQL(ctx, h, locals); err != nil {
			return err
		}
	}

	logger.Debug("hook finished")
	return nil
}

func (s *suite) hookRequest(ctx context.Context, h *descriptor.Hook, locals expr.Vars) error {
	e := s.engine
	sc := s.scope.with(locals)
	method := requestMethod(h.Method)

	url, err := e.eval.ResolveString(h.URL, sc)
	if err != nil {
		return fmt.Errorf("(%s - %s) %s %s: %w", h.Phase, h.ID, method, h.URL, err)
	}
	resolved, err := e.eval.ResolveTree(h.Options, sc)
	if err != nil {
		return fmt.Errorf("(%s - %s) %s %s: %w", h.Phase, h.ID, method, url, err)
	}
	options, _ := resolved.(map[string]any)
	label := fmt.Sprintf("(%s - %s) %s %s", h.Phase, h.ID, method, url)

	if err := ctx.Err(); err != nil {
		return err
	}
	out := e.driver.Perform(context.WithoutCancel(ctx), method, url, withBaseDir(options, s.doc.Dir))
	s.latency.Record(out.Elapsed, out.Err)
	if out.Err != nil {
		return &failure.RequestError{Label: label, Err: out.Err}
	}

	value := out.Value()
	s.scope.set(h.Phase, h.ID, value)
	locals["response"] = value

	if h.Status == nil && h.Asserts == nil {
		return nil
	}
	return e.pipeline.Validate(ctx, &validation.Check{
		Label:   label,
		Outcome: out,
		Status:  h.Status,
		Asserts: h.Asserts,
		Schemas: s.doc.Schemas,
		Context: &validation.HandlerContext{Outcome: out, Scope: s.scope.with(locals)},
	})
}

func (s *suite) hookSQL(ctx context.Context, h *descriptor.Hook, locals expr.Vars) error {
	e := s.engine
	sc := s.scope.with(locals)

	conn, err := e.eval.ResolveString(h.SQL.DB, sc)
	if err != nil {
		return fmt.Errorf("(%s - %s) sql db: %w", h.Phase, h.ID, err)
	}
	query, err := e.eval.ResolveString(h.SQL.Query, sc)
	if err != nil {
		return fmt.Errorf("(%s - %s) sql query: %w", h.Phase, h.ID, err)
	}

	client, err := e.sql.Get(ctx, conn, s.doc.Dir)
	if err != nil {
		return fmt.Errorf("(%s - %s) sql: %w", h.Phase, h.ID, err)
	}
	value, err := client.Run(ctx, query)
	if err != nil {
		return fmt.Errorf("(%s - %s) sql: %w", h.Phase, h.ID, err)
	}
	s.scope.set(h.Phase, h.ID, value)
	return nil
}
