package runner

import (
	"sync"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/descriptor"
)

// resultStore keeps the response bodies of dependency targets, keyed by
// declared case name. It lives for one suite.
type resultStore struct {
	mu      sync.Mutex
	targets map[*descriptor.Case]bool
	values  map[string]any
}

func newResultStore(doc *descriptor.Document) *resultStore {
	s := &resultStore{
		targets: make(map[*descriptor.Case]bool),
		values:  make(map[string]any),
	}
	for name := range doc.DependencyTargets() {
		if c := doc.CaseByDeclaredName(name); c != nil {
			s.targets[c] = true
		}
	}
	return s
}

func (s *resultStore) isTarget(c *descriptor.Case) bool {
	return s.targets[c]
}

func (s *resultStore) put(c *descriptor.Case, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[c.Declared] = body
}

func (s *resultStore) get(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	return v, ok
}
