package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultResponseTime is the responsetime assert written for every case.
	DefaultResponseTime = 10000
	defaultServiceURL   = "http://localhost:3000"
	untagged            = "default"
)

var refPrefixes = []string{"#/components/schemas/", "#/definitions/"}

// Generator converts OpenAPI documents to descriptors.
type Generator struct {
	baseURL string
	tags    []string
	logger  *zap.Logger
}

// Option is a functional option for Generator
type Option func(*Generator)

// WithBaseURL overrides the SERVICE_URL default taken from the servers list.
func WithBaseURL(u string) Option {
	return func(g *Generator) {
		g.baseURL = u
	}
}

// WithTags restricts output to the named tags.
func WithTags(tags ...string) Option {
	return func(g *Generator) {
		g.tags = tags
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

func New(opts ...Option) *Generator {
	g := &Generator{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// File is one generated descriptor.
type File struct {
	Tag     string
	Name    string
	Cases   int
	Content []byte
}

// Load reads an OpenAPI document from a file path or an http(s) URL.
func (g *Generator) Load(ctx context.Context, source string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	loader.IsExternalRefsAllowed = true

	var (
		doc *openapi3.T
		err error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		var u *url.URL
		u, err = url.Parse(source)
		if err == nil {
			doc, err = loader.LoadFromURI(u)
		}
	} else {
		doc, err = loader.LoadFromFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI document %s: %w", source, err)
	}

	if err := doc.Validate(ctx); err != nil {
		g.logger.Warn("OpenAPI document does not validate, continuing", zap.String("source", source), zap.Error(err))
	}
	return doc, nil
}

type operation struct {
	path   string
	method string
	op     *openapi3.Operation
	params openapi3.Parameters
}

// Generate renders one descriptor per tag, in declaration order of the
// document's tags. Operations without tags go to "default".
func (g *Generator) Generate(doc *openapi3.T) ([]File, error) {
	byTag := map[string][]operation{}
	for _, op := range operations(doc) {
		tags := op.op.Tags
		if len(tags) == 0 {
			tags = []string{untagged}
		}
		for _, tag := range tags {
			byTag[tag] = append(byTag[tag], op)
		}
	}

	components := componentSchemas(doc)
	serviceURL := g.serviceURL(doc)

	var files []File
	for _, tag := range tagOrder(doc, byTag) {
		if len(g.tags) > 0 && !slices.Contains(g.tags, tag) {
			continue
		}
		content, err := g.render(doc, tag, serviceURL, byTag[tag], components)
		if err != nil {
			return nil, fmt.Errorf("tag %s: %w", tag, err)
		}
		files = append(files, File{
			Tag:     tag,
			Name:    fileName(tag),
			Cases:   len(byTag[tag]),
			Content: content,
		})
	}
	return files, nil
}

// WriteDir writes files into dir, creating it when needed.
func (g *Generator) WriteDir(dir string, files []File) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.Name)
		if err := os.WriteFile(path, f.Content, 0644); err != nil {
			return paths, fmt.Errorf("failed to write %s: %w", path, err)
		}
		g.logger.Info("descriptor generated", zap.String("file", path), zap.String("tag", f.Tag), zap.Int("cases", f.Cases))
		paths = append(paths, path)
	}
	return paths, nil
}

// FromOpenAPI loads source and writes its descriptors into outDir.
func FromOpenAPI(ctx context.Context, source, outDir string, opts ...Option) ([]string, error) {
	g := New(opts...)
	doc, err := g.Load(ctx, source)
	if err != nil {
		return nil, err
	}
	files, err := g.Generate(doc)
	if err != nil {
		return nil, err
	}
	return g.WriteDir(outDir, files)
}

func operations(doc *openapi3.T) []operation {
	if doc.Paths == nil {
		return nil
	}
	pathMap := doc.Paths.Map()
	paths := make([]string, 0, len(pathMap))
	for p := range pathMap {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var ops []operation
	for _, p := range paths {
		item := pathMap[p]
		if item == nil {
			continue
		}
		for _, m := range []struct {
			method string
			op     *openapi3.Operation
		}{
			{"GET", item.Get},
			{"POST", item.Post},
			{"PUT", item.Put},
			{"PATCH", item.Patch},
			{"DELETE", item.Delete},
			{"HEAD", item.Head},
			{"OPTIONS", item.Options},
		} {
			if m.op != nil {
				ops = append(ops, operation{path: p, method: m.method, op: m.op, params: item.Parameters})
			}
		}
	}
	return ops
}

func tagOrder(doc *openapi3.T, byTag map[string][]operation) []string {
	var order []string
	seen := map[string]bool{}
	for _, t := range doc.Tags {
		if t == nil || seen[t.Name] {
			continue
		}
		if _, used := byTag[t.Name]; used {
			order = append(order, t.Name)
			seen[t.Name] = true
		}
	}
	var rest []string
	for tag := range byTag {
		if !seen[tag] && tag != untagged {
			rest = append(rest, tag)
		}
	}
	sort.Strings(rest)
	order = append(order, rest...)
	if _, ok := byTag[untagged]; ok && !seen[untagged] {
		order = append(order, untagged)
	}
	return order
}

func (g *Generator) serviceURL(doc *openapi3.T) string {
	if g.baseURL != "" {
		return strings.TrimSuffix(g.baseURL, "/")
	}
	if len(doc.Servers) == 0 || doc.Servers[0] == nil || doc.Servers[0].URL == "" {
		return defaultServiceURL
	}
	server := doc.Servers[0]
	u := server.URL
	for name, v := range server.Variables {
		if v != nil {
			u = strings.ReplaceAll(u, "{"+name+"}", v.Default)
		}
	}
	return strings.TrimSuffix(u, "/")
}

func componentSchemas(doc *openapi3.T) map[string]map[string]any {
	out := map[string]map[string]any{}
	if doc.Components == nil {
		return out
	}
	for name, ref := range doc.Components.Schemas {
		if ref == nil || ref.Value == nil {
			continue
		}
		if m, ok := toMap(ref.Value).(map[string]any); ok {
			out[name] = m
		}
	}
	return out
}

type configBlock struct {
	Config map[string]string `yaml:"config"`
}

type caseBlock struct {
	Test    string       `yaml:"test"`
	Data    requestBlock `yaml:"data"`
	Asserts assertsBlock `yaml:"asserts"`
}

type requestBlock struct {
	URL        string         `yaml:"url"`
	Method     string         `yaml:"method"`
	Parameters map[string]any `yaml:"parameters,omitempty"`
	Options    optionsBlock   `yaml:"options"`
}

type optionsBlock struct {
	Headers  map[string]string `yaml:"headers,omitempty"`
	Query    map[string]any    `yaml:"qs,omitempty"`
	JSON     bool              `yaml:"json,omitempty"`
	Body     any               `yaml:"body,omitempty"`
	Form     any               `yaml:"form,omitempty"`
	FormData map[string]any    `yaml:"formData,omitempty"`
}

type assertsBlock struct {
	Status       any `yaml:"status"`
	Schema       any `yaml:"schema,omitempty"`
	ResponseTime int `yaml:"responsetime"`
}

func (g *Generator) render(doc *openapi3.T, tag, serviceURL string, ops []operation, components map[string]map[string]any) ([]byte, error) {
	blocks := []any{configBlock{Config: map[string]string{"SERVICE_URL": serviceURL}}}

	var referenced []string
	for _, op := range ops {
		c := caseFor(op)
		blocks = append(blocks, c)
		collectRefs(c.Asserts.Schema, components, &referenced)
	}

	for _, name := range referenced {
		node, err := schemaBlock(name, components[name])
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, node)
	}

	var buf bytes.Buffer
	title, version := "", ""
	if doc.Info != nil {
		title, version = doc.Info.Title, doc.Info.Version
	}
	fmt.Fprintf(&buf, "# API: %s, version %s\n", title, version)
	fmt.Fprintf(&buf, "# Tag: %s\n", tag)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(blocks); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func caseFor(o operation) *caseBlock {
	op := o.op
	name := op.Summary
	if name == "" {
		name = strings.TrimSpace(op.Description)
	}
	if name == "" {
		name = op.OperationID
	}
	if name == "" {
		name = o.path + ": " + strings.ToLower(o.method)
	}

	c := &caseBlock{
		Test: name,
		Data: requestBlock{
			URL:    "${SERVICE_URL}" + o.path,
			Method: o.method,
			Options: optionsBlock{
				Headers: map[string]string{
					"Content-Type": "application/json",
					"Accept":       accept(op),
				},
			},
		},
		Asserts: assertsBlock{ResponseTime: DefaultResponseTime},
	}

	params := append(append(openapi3.Parameters(nil), o.params...), op.Parameters...)
	for _, ref := range params {
		if ref == nil || ref.Value == nil {
			continue
		}
		p := ref.Value
		switch p.In {
		case openapi3.ParameterInPath:
			if c.Data.Parameters == nil {
				c.Data.Parameters = map[string]any{}
			}
			c.Data.Parameters[p.Name] = parameterExample(p)
			c.Data.URL = strings.ReplaceAll(c.Data.URL, "{"+p.Name+"}", "${test.data.parameters."+p.Name+"}")
		case openapi3.ParameterInQuery:
			if !p.Required {
				continue
			}
			if c.Data.Options.Query == nil {
				c.Data.Options.Query = map[string]any{}
			}
			c.Data.Options.Query[p.Name] = parameterExample(p)
		}
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		requestBody(c, op.RequestBody.Value)
	}

	c.Asserts.Status, c.Asserts.Schema = expectedResponse(o.method, op)
	return c
}

// requestBody prefers JSON, then url-encoded forms, then multipart.
func requestBody(c *caseBlock, body *openapi3.RequestBody) {
	types := make([]string, 0, len(body.Content))
	for ct := range body.Content {
		types = append(types, ct)
	}
	sort.Strings(types)

	pick := func(match string) (string, *openapi3.Schema) {
		for _, ct := range types {
			mt := body.Content[ct]
			if strings.Contains(ct, match) && mt != nil && mt.Schema != nil && mt.Schema.Value != nil {
				return ct, mt.Schema.Value
			}
		}
		return "", nil
	}

	opts := &c.Data.Options
	if _, schema := pick("json"); schema != nil {
		opts.JSON = true
		opts.Body = example(schema, 0)
		return
	}
	if ct, schema := pick("x-www-form-urlencoded"); schema != nil {
		opts.Headers["Content-Type"] = ct
		opts.Form = example(schema, 0)
		return
	}
	if _, schema := pick("multipart/form-data"); schema != nil {
		delete(opts.Headers, "Content-Type")
		opts.FormData = map[string]any{}
		for name, ref := range schema.Properties {
			if ref == nil || ref.Value == nil {
				continue
			}
			if ref.Value.Format == "binary" {
				opts.FormData[name] = map[string]any{"file": safeName(name) + ".json"}
				continue
			}
			opts.FormData[name] = example(ref.Value, 1)
		}
		return
	}
	if len(types) > 0 {
		opts.Headers["Content-Type"] = types[0]
	}
}

// expectedResponse returns the status and schema asserts. The first 2xx
// response with a JSON schema wins; otherwise the first declared 2xx code,
// otherwise a default list.
func expectedResponse(method string, op *openapi3.Operation) (any, any) {
	var codes []string
	if op.Responses != nil {
		for code := range op.Responses.Map() {
			if strings.HasPrefix(code, "2") {
				codes = append(codes, code)
			}
		}
	}
	sort.Strings(codes)

	for _, code := range codes {
		ref := op.Responses.Value(code)
		if ref == nil || ref.Value == nil {
			continue
		}
		if schema := jsonSchema(ref.Value.Content); schema != nil {
			status, _ := strconv.Atoi(code)
			return status, schema
		}
	}
	for _, code := range codes {
		if status, err := strconv.Atoi(code); err == nil {
			return status, nil
		}
	}
	if method == "GET" {
		return []int{200}, nil
	}
	return []int{200, 201, 202, 204}, nil
}

// jsonSchema returns the name of a component schema, or the inline schema
// with component references reduced to names.
func jsonSchema(content openapi3.Content) any {
	types := make([]string, 0, len(content))
	for ct := range content {
		types = append(types, ct)
	}
	sort.Strings(types)
	for _, ct := range types {
		mt := content[ct]
		if !strings.Contains(ct, "json") || mt == nil || mt.Schema == nil {
			continue
		}
		if name, ok := refName(mt.Schema.Ref); ok {
			return name
		}
		if mt.Schema.Value != nil {
			return toMap(mt.Schema.Value)
		}
	}
	return nil
}

func accept(op *openapi3.Operation) string {
	var types []string
	if op.Responses != nil {
		for _, ref := range op.Responses.Map() {
			if ref == nil || ref.Value == nil {
				continue
			}
			for ct := range ref.Value.Content {
				if !slices.Contains(types, ct) {
					types = append(types, ct)
				}
			}
		}
	}
	if len(types) == 0 {
		return "application/json"
	}
	sort.Strings(types)
	return strings.Join(types, ",")
}

func refName(ref string) (string, bool) {
	for _, prefix := range refPrefixes {
		if strings.HasPrefix(ref, prefix) {
			return strings.TrimPrefix(ref, prefix), true
		}
	}
	return "", false
}

// toMap converts a kin-openapi schema to plain data with $refs reduced to
// component names.
func toMap(schema *openapi3.Schema) any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return normalizeRefs(out)
}

func normalizeRefs(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			if k == "$ref" {
				if s, ok := item.(string); ok {
					if name, ok := refName(s); ok {
						val[k] = name
					}
				}
				continue
			}
			val[k] = normalizeRefs(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeRefs(item)
		}
		return val
	}
	return v
}

// collectRefs appends, in discovery order, every component schema that v
// names directly or through other components.
func collectRefs(v any, components map[string]map[string]any, into *[]string) {
	switch val := v.(type) {
	case string:
		if _, ok := components[val]; ok && !slices.Contains(*into, val) {
			*into = append(*into, val)
			collectRefs(components[val], components, into)
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k == "$ref" {
				if name, ok := val[k].(string); ok {
					collectRefs(name, components, into)
				}
				continue
			}
			if _, isString := val[k].(string); !isString {
				collectRefs(val[k], components, into)
			}
		}
	case []any:
		for _, item := range val {
			collectRefs(item, components, into)
		}
	}
}

// schemaBlock renders a named schema block with the schema key first.
func schemaBlock(name string, schema map[string]any) (*yaml.Node, error) {
	var body yaml.Node
	if err := body.Encode(schema); err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	node := &yaml.Node{Kind: yaml.MappingNode}
	node.Content = append(node.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "schema"},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name},
	)
	node.Content = append(node.Content, body.Content...)
	return node, nil
}

func fileName(tag string) string {
	return safeName(tag) + ".yaml"
}

func safeName(s string) string {
	name := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, s)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	name = strings.Trim(name, "_")
	if name == "" {
		name = untagged
	}
	return name
}
