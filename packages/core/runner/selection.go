package runner

import (
	"strings"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/descriptor"
)

// skipReason returns why c must not run, or "" when it should.
func skipReason(c *descriptor.Case, filter []string, exclusiveRun bool) string {
	if exclusiveRun && !c.Exclusive {
		return SkipNotExclusive
	}
	if !matchesFilter(c.Name, filter) {
		return SkipFiltered
	}
	return ""
}

// matchesFilter reports whether name contains any of the filter
// substrings. An empty filter matches everything.
func matchesFilter(name string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f != "" && strings.Contains(name, f) {
			return true
		}
	}
	return false
}
