package expr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Query evaluates a restricted JSONPath expression against decoded data and
// always returns the list of matches.
//
// Supported: $, .name, ['name'], [n], [*], .*, [?(@.field op literal)].
func Query(data any, path string) ([]any, error) {
	segs, err := compilePath(path)
	if err != nil {
		return nil, err
	}
	if len(segs) == 1 && segs[0].gpath == "" && segs[0].depth == 0 {
		return []any{data}, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", path, err)
	}

	current := []gjson.Result{gjson.ParseBytes(raw)}
	for _, seg := range segs[:len(segs)-1] {
		var next []gjson.Result
		for _, r := range current {
			for _, v := range seg.resolve(r) {
				if v.IsArray() || v.IsObject() {
					v.ForEach(func(_, child gjson.Result) bool {
						next = append(next, child)
						return true
					})
				}
			}
		}
		current = next
	}

	last := segs[len(segs)-1]
	matches := []any{}
	for _, r := range current {
		for _, v := range last.resolve(r) {
			matches = append(matches, v.Value())
		}
	}
	return matches, nil
}

// segment is a wildcard-free run of steps. Every segment but the last is
// followed by a wildcard that expands the values of an array or object.
type segment struct {
	gpath string
	// depth counts the filter steps whose results are lists.
	depth int
}

func (s segment) resolve(r gjson.Result) []gjson.Result {
	if s.gpath != "" {
		r = r.Get(s.gpath)
	}
	if !r.Exists() {
		return nil
	}
	var out []gjson.Result
	flatten(r, s.depth, &out)
	return out
}

func flatten(r gjson.Result, depth int, out *[]gjson.Result) {
	if depth == 0 {
		*out = append(*out, r)
		return
	}
	if r.IsArray() {
		r.ForEach(func(_, v gjson.Result) bool {
			flatten(v, depth-1, out)
			return true
		})
	}
}

// compilePath splits a JSONPath expression at its wildcards and converts
// each part into a gjson path. gjson's # only iterates arrays, so wildcards
// are expanded by Query itself to cover objects too.
func compilePath(path string) ([]segment, error) {
	p := strings.TrimSpace(path)
	if !strings.HasPrefix(p, "$") {
		return nil, fmt.Errorf("invalid path %q: must start with $", path)
	}

	var segs []segment
	var parts []string
	depth := 0
	cut := func() {
		segs = append(segs, segment{gpath: strings.Join(parts, "."), depth: depth})
		parts = nil
		depth = 0
	}
	i := 1

	for i < len(p) {
		switch p[i] {
		case '.':
			if i+1 < len(p) && p[i+1] == '.' {
				return nil, fmt.Errorf("invalid path %q: recursive descent is not supported", path)
			}
			i++
			if i < len(p) && p[i] == '*' {
				cut()
				i++
				continue
			}
			start := i
			for i < len(p) && p[i] != '.' && p[i] != '[' {
				i++
			}
			if start == i {
				return nil, fmt.Errorf("invalid path %q: empty name at position %d", path, start)
			}
			parts = append(parts, escapeName(p[start:i]))

		case '[':
			end := closingBracket(p, i)
			if end < 0 {
				return nil, fmt.Errorf("invalid path %q: unterminated [ at position %d", path, i)
			}
			inner := strings.TrimSpace(p[i+1 : end])
			i = end + 1

			switch {
			case inner == "*":
				cut()
			case strings.HasPrefix(inner, "?"):
				q, err := translateFilter(inner)
				if err != nil {
					return nil, fmt.Errorf("invalid path %q: %w", path, err)
				}
				parts = append(parts, q)
				depth++
			case len(inner) >= 2 && (inner[0] == '\'' || inner[0] == '"') && inner[len(inner)-1] == inner[0]:
				parts = append(parts, escapeName(inner[1:len(inner)-1]))
			default:
				n, err := strconv.Atoi(inner)
				if err != nil || n < 0 {
					return nil, fmt.Errorf("invalid path %q: unsupported subscript [%s]", path, inner)
				}
				parts = append(parts, inner)
			}

		default:
			return nil, fmt.Errorf("invalid path %q: unexpected %q at position %d", path, p[i], i)
		}
	}

	cut()
	return segs, nil
}

func closingBracket(p string, open int) int {
	var quote byte
	depth := 0
	for i := open; i < len(p); i++ {
		ch := p[i]
		if quote != 0 {
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

var filterOps = []string{"==", "!=", "<=", ">=", "<", ">"}

// translateFilter turns ?(@.field op literal) into #(field op literal)#.
func translateFilter(inner string) (string, error) {
	body := strings.TrimSpace(strings.TrimPrefix(inner, "?"))
	if !strings.HasPrefix(body, "(") || !strings.HasSuffix(body, ")") {
		return "", fmt.Errorf("filter must be ?(...)")
	}
	body = strings.TrimSpace(body[1 : len(body)-1])
	if !strings.HasPrefix(body, "@.") {
		return "", fmt.Errorf("filter must test a field of @")
	}
	body = body[2:]

	for _, op := range filterOps {
		idx := strings.Index(body, op)
		if idx < 0 {
			continue
		}
		field := strings.TrimSpace(body[:idx])
		lit := strings.TrimSpace(body[idx+len(op):])
		value, err := filterLiteral(lit)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("#(%s%s%s)#", field, op, value), nil
	}
	return "", fmt.Errorf("filter %q has no comparison", inner)
}

func filterLiteral(lit string) (string, error) {
	if lit == "" {
		return "", fmt.Errorf("filter is missing a value")
	}
	if lit[0] == '\'' || lit[0] == '"' {
		if len(lit) < 2 || lit[len(lit)-1] != lit[0] {
			return "", fmt.Errorf("unterminated string %s", lit)
		}
		return strconv.Quote(lit[1 : len(lit)-1]), nil
	}
	if lit == "true" || lit == "false" || lit == "null" {
		return lit, nil
	}
	if _, err := strconv.ParseFloat(lit, 64); err != nil {
		return "", fmt.Errorf("unsupported filter value %s", lit)
	}
	return lit, nil
}

func escapeName(name string) string {
	var sb strings.Builder
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			sb.WriteByte('\\')
		}
		sb.WriteByte(name[i])
	}
	return sb.String()
}
