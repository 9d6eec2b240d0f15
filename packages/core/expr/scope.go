package expr

// Scope resolves root identifiers during evaluation.
type Scope interface {
	Lookup(name string) (any, bool)
}

// Vars is a flat variable map.
type Vars map[string]any

func (v Vars) Lookup(name string) (any, bool) {
	val, ok := v[name]
	return val, ok
}

// Chain searches each scope in order and returns the first hit.
type Chain []Scope

func (c Chain) Lookup(name string) (any, bool) {
	for _, s := range c {
		if s == nil {
			continue
		}
		if v, ok := s.Lookup(name); ok {
			return v, true
		}
	}
	return nil, false
}
