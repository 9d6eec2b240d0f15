package runner

import (
	"maps"
	"sync"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/descriptor"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/env"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/expr"
)

// scope is the suite-wide variable namespace: hook results by phase, the
// effective config values, and the globals. It is guarded by a mutex
// because an abandoned, timed-out case may still be writing to it.
type scope struct {
	mu      sync.Mutex
	globals *env.Globals
	phases  map[string]map[string]any
	config  map[string]any
}

var scopePhases = []descriptor.Phase{
	descriptor.PhaseBefore,
	descriptor.PhaseAfter,
	descriptor.PhaseBeforeEach,
	descriptor.PhaseAfterEach,
	descriptor.PhaseBeforeAll,
	descriptor.PhaseAfterAll,
}

func newScope(globals *env.Globals) *scope {
	s := &scope{
		globals: globals,
		phases:  make(map[string]map[string]any, len(scopePhases)),
		config:  make(map[string]any),
	}
	for _, p := range scopePhases {
		s.phases[string(p)] = make(map[string]any)
	}
	return s
}

// Lookup implements expr.Scope. Sub-scope maps are returned as copies so
// evaluation never observes a concurrent write.
func (s *scope) Lookup(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "config" {
		return maps.Clone(s.config), true
	}
	if m, ok := s.phases[name]; ok {
		return maps.Clone(m), true
	}
	return s.globals.Lookup(name)
}

func (s *scope) set(phase descriptor.Phase, id string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phases[string(phase)][id] = value
}

func (s *scope) setConfig(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[name] = value
}

// with layers call-local bindings over the suite scope.
func (s *scope) with(locals expr.Vars) expr.Scope {
	return expr.Chain{locals, s}
}
