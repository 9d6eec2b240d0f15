package validation

import (
	"context"
	"sort"
	"sync"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/descriptor"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/expr"
	"github.com/abdul-hamid-achik/ddtspec/packages/http"
)

// HandlerContext is passed to handler steps. Outcome is nil for Before.
type HandlerContext struct {
	Case    *descriptor.Case
	Outcome *http.Outcome
	Scope   expr.Scope
}

type HandlerFunc func(ctx context.Context, hc *HandlerContext) error

// Handler carries optional custom steps for a case.
type Handler struct {
	Before   HandlerFunc
	Validate HandlerFunc
	After    HandlerFunc
}

// HandlerRegistry maps handler names to Go-implemented handlers.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]Handler)}
}

func (r *HandlerRegistry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *HandlerRegistry) Lookup(name string) (Handler, bool) {
	if r == nil {
		return Handler{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

func (r *HandlerRegistry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

func (r *HandlerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveHandler combines the registered handler and the document's
// declaration of the same name. Go steps win over expression steps.
// It returns nil when neither exists.
func (p *Pipeline) ResolveHandler(name string, spec *descriptor.HandlerSpec) *Handler {
	if name == "" {
		return nil
	}
	registered, found := p.handlers.Lookup(name)
	if !found && spec == nil {
		return nil
	}

	h := registered
	if spec != nil {
		if h.Before == nil {
			h.Before = p.exprStep(spec.Before)
		}
		if h.Validate == nil {
			h.Validate = p.exprStep(spec.Validate)
		}
		if h.After == nil {
			h.After = p.exprStep(spec.After)
		}
	}
	return &h
}

func (p *Pipeline) exprStep(src string) HandlerFunc {
	if src == "" {
		return nil
	}
	return func(_ context.Context, hc *HandlerContext) error {
		_, err := p.eval.Exec(src, hc.Scope)
		return err
	}
}
