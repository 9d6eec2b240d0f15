package env

import (
	"fmt"
	"os"
	"strings"
)

// MergeVariables overlays sources left to right.
func MergeVariables(sources ...map[string]any) map[string]any {
	result := make(map[string]any)
	for _, src := range sources {
		for k, v := range src {
			result[k] = v
		}
	}
	return result
}

// FromStrings widens a string map.
func FromStrings(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// LoadSystemEnv returns OS variables whose name starts with prefix, with the
// prefix removed. An empty prefix selects nothing.
func LoadSystemEnv(prefix string) map[string]any {
	result := make(map[string]any)
	if prefix == "" {
		return result
	}
	for _, e := range os.Environ() {
		key, value, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		if name, found := strings.CutPrefix(key, prefix); found && name != "" {
			result[name] = value
		}
	}
	return result
}

// ParseAssignments turns NAME=value pairs into a variable map.
func ParseAssignments(pairs []string) (map[string]any, error) {
	result := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable %q, expected NAME=value", p)
		}
		result[key] = value
	}
	return result, nil
}
