package env

import (
	"sort"
	"sync"
)

// Globals is the suite-wide variable map. Assignments follow first writer
// wins: once a name is defined, later SetIfAbsent calls are no-ops.
type Globals struct {
	mu   sync.RWMutex
	vars map[string]any
}

func NewGlobals(seed map[string]any) *Globals {
	g := &Globals{vars: make(map[string]any, len(seed))}
	for k, v := range seed {
		g.vars[k] = v
	}
	return g
}

// SetIfAbsent defines name unless it already holds a non-empty value, and
// reports whether the assignment happened.
func (g *Globals) SetIfAbsent(name string, value any) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.vars[name]; ok && !empty(cur) {
		return false
	}
	g.vars[name] = value
	return true
}

func (g *Globals) Lookup(name string) (any, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.vars[name]
	return v, ok
}

// Snapshot copies the current variables.
func (g *Globals) Snapshot() map[string]any {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]any, len(g.vars))
	for k, v := range g.vars {
		out[k] = v
	}
	return out
}

// Names lists defined variables in sorted order.
func (g *Globals) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.vars))
	for k := range g.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func empty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	}
	return false
}
