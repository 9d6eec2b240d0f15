package descriptor

import (
	"fmt"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/failure"
)

// Check gathers every structural problem of the document: decoding
// defects, case blocks that violate CaseSchema, and unresolved handler or
// schema references. registered reports handlers known outside the
// document and may be nil.
func (d *Document) Check(registered func(name string) bool) error {
	problems := append([]string(nil), d.Problems...)

	for _, c := range d.Cases {
		violations, err := ValidateCase(c.Raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("test %q: %v", c.Name, err))
		}
		for _, v := range violations {
			problems = append(problems, fmt.Sprintf("test %q: %s", c.Name, v))
		}

		if c.Handler != "" {
			_, declared := d.Handlers[c.Handler]
			if !declared && (registered == nil || !registered(c.Handler)) {
				problems = append(problems, fmt.Sprintf("test %q: handler %s is not defined", c.Name, c.Handler))
			}
		}

		problems = append(problems, d.schemaProblems(fmt.Sprintf("test %q", c.Name), c.Asserts)...)
		for _, h := range append(append([]*Hook(nil), c.Before...), c.After...) {
			problems = append(problems, d.schemaProblems(fmt.Sprintf("test %q %s %q", c.Name, h.Phase, h.ID), h.Asserts)...)
		}
	}

	for _, hooks := range [][]*Hook{d.BeforeAll, d.AfterAll, d.BeforeEach, d.AfterEach} {
		for _, h := range hooks {
			problems = append(problems, d.schemaProblems(fmt.Sprintf("%s %q", h.Phase, h.ID), h.Asserts)...)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &failure.ConfigurationError{File: d.Path, Problems: problems}
}

func (d *Document) schemaProblems(where string, a *Asserts) []string {
	name, ok := a.SchemaName()
	if !ok {
		return nil
	}
	if _, found := d.Schemas[name]; !found {
		return []string{fmt.Sprintf("%s: schema %s is not defined", where, name)}
	}
	return nil
}
