package descriptor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/ddtspec/packages/builtin"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/failure"
)

// Extensions lists the descriptor file types the loader understands.
var Extensions = []string{".json", ".yaml", ".yml"}

// IsDescriptor reports whether path has a descriptor extension.
func IsDescriptor(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Load reads and partitions a descriptor file. The file extension selects
// the decoder.
func Load(path string) (*Document, error) {
	if !IsDescriptor(path) {
		return nil, &failure.LoadError{Path: path, Err: fmt.Errorf("unsupported descriptor type %q", filepath.Ext(path))}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &failure.LoadError{Path: path, Err: err}
	}
	return Parse(data, path)
}

// Parse decodes descriptor bytes. path supplies the format and is used in
// error messages.
func Parse(data []byte, path string) (*Document, error) {
	var (
		raws []rawBlock
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		raws, err = decodeJSON(data)
	case ".yaml", ".yml":
		raws, err = decodeYAML(data)
	default:
		err = fmt.Errorf("unsupported descriptor type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, &failure.LoadError{Path: path, Err: err}
	}

	doc := &Document{
		Path:     path,
		Dir:      filepath.Dir(path),
		Schemas:  make(map[string]map[string]any),
		Handlers: make(map[string]*HandlerSpec),
	}

	names := make(map[string]bool)
	onlyAll := false

	for i, raw := range raws {
		kind, ok := classify(raw.fields)
		if !ok {
			return nil, &failure.LoadError{Path: path, Err: fmt.Errorf("block %d has no recognised kind (expected one of config, schema, handler, beforeAll, afterAll, beforeEach, afterEach, test)", i)}
		}
		doc.Blocks = append(doc.Blocks, Block{Kind: kind, Index: i, Raw: raw.fields})

		switch kind {
		case KindConfig:
			doc.addConfig(i, raw)
		case KindSchema:
			doc.addSchema(i, raw.fields)
		case KindHandler:
			doc.addHandler(i, raw.fields)
		case KindBeforeAll:
			doc.BeforeAll = append(doc.BeforeAll, doc.parseHook(raw.fields, PhaseBeforeAll, len(doc.BeforeAll)))
		case KindAfterAll:
			doc.AfterAll = append(doc.AfterAll, doc.parseHook(raw.fields, PhaseAfterAll, len(doc.AfterAll)))
		case KindBeforeEach:
			doc.BeforeEach = append(doc.BeforeEach, doc.parseHook(raw.fields, PhaseBeforeEach, len(doc.BeforeEach)))
		case KindAfterEach:
			doc.AfterEach = append(doc.AfterEach, doc.parseHook(raw.fields, PhaseAfterEach, len(doc.AfterEach)))
		case KindTest:
			c := doc.parseCase(i, raw.fields)
			if names[c.Name] {
				renamed := fmt.Sprintf("%s (2)", c.Name)
				if names[renamed] {
					return nil, &failure.LoadError{Path: path, Err: fmt.Errorf("duplicate test name %q", c.Declared)}
				}
				c.Name = renamed
			}
			names[c.Name] = true
			onlyAll = onlyAll || c.OnlyAll
			doc.SkipAll = doc.SkipAll || c.SkipAll
			doc.Cases = append(doc.Cases, c)
		}
	}

	for _, c := range doc.Cases {
		c.Exclusive = c.Only || onlyAll
	}
	return doc, nil
}

func classify(fields map[string]any) (Kind, bool) {
	for _, m := range markers {
		if _, ok := fields[m.key]; ok {
			return m.kind, true
		}
	}
	return 0, false
}

func (d *Document) problemf(format string, args ...any) {
	d.Problems = append(d.Problems, fmt.Sprintf(format, args...))
}

func (d *Document) addConfig(index int, raw rawBlock) {
	cfg, ok := raw.fields["config"].(map[string]any)
	if !ok {
		d.problemf("block %d: config must be an object", index)
		return
	}
	keys := raw.configKeys
	if len(keys) != len(cfg) {
		keys = make([]string, 0, len(cfg))
		for k := range cfg {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}
	for _, k := range keys {
		d.Config = append(d.Config, ConfigEntry{Name: k, Template: cfg[k]})
	}
}

func (d *Document) addSchema(index int, fields map[string]any) {
	name, ok := fields["schema"].(string)
	if !ok || name == "" {
		d.problemf("block %d: schema name must be a non-empty string", index)
		return
	}
	schema := make(map[string]any, len(fields))
	for k, v := range fields {
		if k != "schema" {
			schema[k] = v
		}
	}
	d.Schemas[name] = schema
}

func (d *Document) addHandler(index int, fields map[string]any) {
	name, ok := fields["handler"].(string)
	if !ok || name == "" {
		d.problemf("block %d: handler name must be a non-empty string", index)
		return
	}
	d.Handlers[name] = &HandlerSpec{
		Name:     name,
		Before:   stringField(fields, "before"),
		Validate: stringField(fields, "validate"),
		After:    stringField(fields, "after"),
	}
}

func (d *Document) parseCase(index int, fields map[string]any) *Case {
	name := builtin.ToString(fields["test"])
	c := &Case{
		Name:     name,
		Declared: name,
		Index:    index,
		Handler:  stringField(fields, "handler"),
		Only:     boolField(fields, "only"),
		OnlyAll:  boolField(fields, "onlyall"),
		SkipAll:  boolField(fields, "skipall"),
		Raw:      fields,
	}
	if name == "" {
		d.problemf("block %d: test name must not be empty", index)
	}

	if data, ok := fields["data"].(map[string]any); ok {
		c.Data = Request{
			Method:    strings.ToUpper(stringField(data, "method")),
			URL:       stringField(data, "url"),
			DependsOn: stringField(data, "dependson"),
		}
		if opts, ok := data["options"].(map[string]any); ok {
			c.Data.Options = make(map[string]any, len(opts))
			for k, v := range opts {
				c.Data.Options[k] = v
			}
		}
		if params, ok := data["parameters"].(map[string]any); ok {
			if c.Data.Options == nil {
				c.Data.Options = make(map[string]any)
			}
			if _, set := c.Data.Options["parameters"]; !set {
				c.Data.Options["parameters"] = params
			}
		}
		if c.Data.Method == "" {
			c.Data.Method = "GET"
		}
	}

	where := fmt.Sprintf("test %q", name)
	c.Status = d.parseStatus(where, fields["status"])
	c.Asserts = d.parseAsserts(where, fields["asserts"])
	c.Before = d.parseCaseHooks(fields["before"], PhaseBefore)
	c.After = d.parseCaseHooks(fields["after"], PhaseAfter)
	return c
}

// parseCaseHooks accepts a hook, a list of hooks, or a bare script string.
func (d *Document) parseCaseHooks(v any, phase Phase) []*Hook {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return []*Hook{{Phase: phase, ID: fmt.Sprintf("%s #0", phase), Script: val}}
	case map[string]any:
		return []*Hook{d.parseHook(val, phase, 0)}
	case []any:
		hooks := make([]*Hook, 0, len(val))
		for i, item := range val {
			switch h := item.(type) {
			case map[string]any:
				hooks = append(hooks, d.parseHook(h, phase, i))
			case string:
				hooks = append(hooks, &Hook{Phase: phase, ID: fmt.Sprintf("%s #%d", phase, i), Script: h})
			default:
				d.problemf("%s #%d must be an object", phase, i)
			}
		}
		return hooks
	}
	d.problemf("%s must be an object or a list", phase)
	return nil
}

func (d *Document) parseHook(fields map[string]any, phase Phase, index int) *Hook {
	h := &Hook{
		Phase:  phase,
		ID:     stringField(fields, "id"),
		Method: strings.ToUpper(stringField(fields, "method")),
		URL:    stringField(fields, "url"),
		Script: stringField(fields, "script"),
	}
	if h.ID == "" {
		h.ID = stringField(fields, string(phase))
	}
	if h.ID == "" {
		h.ID = fmt.Sprintf("%s #%d", phase, index)
	}
	if h.Method == "" {
		h.Method = "GET"
	}
	if opts, ok := fields["options"].(map[string]any); ok {
		h.Options = opts
	}
	if sql, ok := fields["sql"].(map[string]any); ok {
		h.SQL = &SQLStep{DB: stringField(sql, "db"), Query: stringField(sql, "query")}
		if h.SQL.DB == "" || h.SQL.Query == "" {
			d.problemf("%s %q: sql needs both db and query", phase, h.ID)
		}
	}
	if h.URL == "" && h.Script == "" && h.SQL == nil {
		d.problemf("%s %q: needs a url, script or sql step", phase, h.ID)
	}

	where := fmt.Sprintf("%s %q", phase, h.ID)
	h.Status = d.parseStatus(where, fields["status"])
	h.Asserts = d.parseAsserts(where, fields["asserts"])
	return h
}

func (d *Document) parseStatus(where string, v any) *StatusExpectation {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		exp := &StatusExpectation{List: true}
		for _, item := range val {
			code, ok := builtin.ToNumber(item)
			if !ok {
				d.problemf("%s: status %v is not a number", where, item)
				continue
			}
			exp.Codes = append(exp.Codes, int(code))
		}
		return exp
	default:
		code, ok := builtin.ToNumber(val)
		if !ok {
			d.problemf("%s: status %v is not a number", where, val)
			return nil
		}
		return &StatusExpectation{Codes: []int{int(code)}}
	}
}

func (d *Document) parseAsserts(where string, v any) *Asserts {
	if v == nil {
		return nil
	}
	fields, ok := v.(map[string]any)
	if !ok {
		d.problemf("%s: asserts must be an object", where)
		return nil
	}

	a := &Asserts{
		Status: d.parseStatus(where, fields["status"]),
		Script: stringField(fields, "script"),
		Schema: fields["schema"],
	}

	if headers, ok := fields["headers"].(map[string]any); ok {
		for name, pattern := range headers {
			a.Headers = append(a.Headers, HeaderCheck{Name: name, Pattern: builtin.ToString(pattern)})
		}
		sort.Slice(a.Headers, func(i, j int) bool { return a.Headers[i].Name < a.Headers[j].Name })
	}

	a.HasJSON = d.jsonChecks(where, "has-json", fields["has-json"])
	a.HasNotJSON = d.jsonChecks(where, "has-not-json", fields["has-not-json"])

	switch paths := fields["verifypath"].(type) {
	case nil:
	case []any:
		for i, item := range paths {
			m, ok := item.(map[string]any)
			if !ok || stringField(m, "path") == "" {
				d.problemf("%s: verifypath #%d needs a path", where, i)
				continue
			}
			a.VerifyPath = append(a.VerifyPath, PathCheck{Path: stringField(m, "path"), Expect: stringField(m, "expect")})
		}
	default:
		d.problemf("%s: verifypath must be a list", where)
	}

	switch body := fields["body"].(type) {
	case nil:
	case string:
		a.Body = []string{body}
	case []any:
		for _, item := range body {
			a.Body = append(a.Body, builtin.ToString(item))
		}
	default:
		d.problemf("%s: body must be a pattern or a list of patterns", where)
	}

	if rt, ok := fields["responsetime"]; ok {
		ms, ok := builtin.ToNumber(rt)
		if !ok || ms <= 0 {
			d.problemf("%s: responsetime must be a positive number of milliseconds", where)
		} else {
			a.ResponseTime = int(ms)
		}
	}
	return a
}

func (d *Document) jsonChecks(where, key string, v any) []map[string]any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return []map[string]any{val}
	case []any:
		out := make([]map[string]any, 0, len(val))
		for _, item := range val {
			m, ok := item.(map[string]any)
			if !ok {
				d.problemf("%s: %s entries must be objects", where, key)
				continue
			}
			out = append(out, m)
		}
		return out
	}
	d.problemf("%s: %s must be an object or a list", where, key)
	return nil
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return builtin.ToString(v)
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}
