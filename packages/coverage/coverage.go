// Package coverage reports which operations of an OpenAPI document the
// executed test cases reached.
package coverage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/runner"
)

// Report is the coverage of one run against one API description.
type Report struct {
	TotalEndpoints   int                   `json:"totalEndpoints"`
	CoveredEndpoints int                   `json:"coveredEndpoints"`
	CoveragePercent  float64               `json:"coveragePercent"`
	ByTag            map[string]*TagReport `json:"byTag,omitempty"`
	Endpoints        []EndpointStatus      `json:"endpoints"`
	// Unmatched lists requests that hit no documented operation.
	Unmatched []Request `json:"unmatched,omitempty"`
}

type TagReport struct {
	Tag              string  `json:"tag"`
	TotalEndpoints   int     `json:"totalEndpoints"`
	CoveredEndpoints int     `json:"coveredEndpoints"`
	CoveragePercent  float64 `json:"coveragePercent"`
}

type EndpointStatus struct {
	Method      string   `json:"method"`
	Path        string   `json:"path"`
	OperationID string   `json:"operationId,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Covered     bool     `json:"covered"`
	Requests    int      `json:"requests"`
}

// Endpoint is one documented operation.
type Endpoint struct {
	Method      string
	Path        string
	OperationID string
	Tags        []string

	pattern *regexp.Regexp
	params  int
}

// Request is a main request a case performed.
type Request struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// Analyzer matches requests to documented operations.
type Analyzer struct {
	endpoints []Endpoint
	basePaths []string
}

var paramSegment = regexp.MustCompile(`\{[^}]+\}`)

// pathPattern turns /pet/{petId} into ^/pet/[^/]+$.
func pathPattern(path string) *regexp.Regexp {
	literals := paramSegment.Split(path, -1)
	for i, l := range literals {
		literals[i] = regexp.QuoteMeta(l)
	}
	return regexp.MustCompile("^" + strings.Join(literals, `[^/]+`) + "$")
}

// NewAnalyzer builds an analyzer over endpoints. basePaths are stripped from
// request paths that do not match as they are.
func NewAnalyzer(endpoints []Endpoint, basePaths ...string) *Analyzer {
	a := &Analyzer{}
	for _, e := range endpoints {
		e.Method = strings.ToUpper(e.Method)
		e.pattern = pathPattern(e.Path)
		e.params = len(paramSegment.FindAllString(e.Path, -1))
		a.endpoints = append(a.endpoints, e)
	}
	for _, b := range basePaths {
		if b = strings.TrimRight(b, "/"); b != "" {
			a.basePaths = append(a.basePaths, b)
		}
	}
	return a
}

// Load reads an OpenAPI document from a file or an http(s) URL.
func Load(ctx context.Context, source string) (*Analyzer, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	loader.IsExternalRefsAllowed = true

	var (
		doc *openapi3.T
		err error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		u, perr := url.Parse(source)
		if perr != nil {
			return nil, fmt.Errorf("invalid OpenAPI URL %q: %w", source, perr)
		}
		doc, err = loader.LoadFromURI(u)
	} else {
		doc, err = loader.LoadFromFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI document %s: %w", source, err)
	}
	return FromDocument(doc), nil
}

// FromDocument collects the operations and server base paths of doc.
func FromDocument(doc *openapi3.T) *Analyzer {
	var endpoints []Endpoint
	if doc.Paths != nil {
		for path, item := range doc.Paths.Map() {
			for method, op := range item.Operations() {
				endpoints = append(endpoints, Endpoint{
					Method:      method,
					Path:        path,
					OperationID: op.OperationID,
					Tags:        op.Tags,
				})
			}
		}
	}

	sort.Slice(endpoints, func(i, j int) bool {
		if endpoints[i].Path != endpoints[j].Path {
			return endpoints[i].Path < endpoints[j].Path
		}
		return endpoints[i].Method < endpoints[j].Method
	})

	var basePaths []string
	for _, s := range doc.Servers {
		raw := s.URL
		for name, v := range s.Variables {
			raw = strings.ReplaceAll(raw, "{"+name+"}", v.Default)
		}
		if u, err := url.Parse(raw); err == nil {
			basePaths = append(basePaths, u.Path)
		}
	}
	return NewAnalyzer(endpoints, basePaths...)
}

// Endpoints returns the number of documented operations.
func (a *Analyzer) Endpoints() int {
	return len(a.endpoints)
}

// match returns the index of the operation req reached, or -1. Literal
// segments win over parameters, so /pet/findByStatus is not /pet/{petId}.
func (a *Analyzer) match(req Request) int {
	method := strings.ToUpper(req.Method)
	path := req.Path
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	candidates := []string{path}
	for _, base := range a.basePaths {
		if rest, ok := strings.CutPrefix(path, base); ok && (rest == "" || rest[0] == '/') {
			if rest == "" {
				rest = "/"
			}
			candidates = append(candidates, rest)
		}
	}
	for _, p := range candidates {
		best := -1
		for i, e := range a.endpoints {
			if e.Method != method || !e.pattern.MatchString(p) {
				continue
			}
			if best < 0 || e.params < a.endpoints[best].params {
				best = i
			}
		}
		if best >= 0 {
			return best
		}
	}
	return -1
}

// Analyze compares requests against the documented operations.
func (a *Analyzer) Analyze(requests []Request) *Report {
	report := &Report{
		TotalEndpoints: len(a.endpoints),
		ByTag:          make(map[string]*TagReport),
		Endpoints:      make([]EndpointStatus, 0, len(a.endpoints)),
	}

	counts := make([]int, len(a.endpoints))
	for _, req := range requests {
		if i := a.match(req); i >= 0 {
			counts[i]++
		} else {
			report.Unmatched = append(report.Unmatched, req)
		}
	}

	for i, e := range a.endpoints {
		covered := counts[i] > 0
		report.Endpoints = append(report.Endpoints, EndpointStatus{
			Method:      e.Method,
			Path:        e.Path,
			OperationID: e.OperationID,
			Tags:        e.Tags,
			Covered:     covered,
			Requests:    counts[i],
		})
		if covered {
			report.CoveredEndpoints++
		}
		for _, tag := range e.Tags {
			tr, ok := report.ByTag[tag]
			if !ok {
				tr = &TagReport{Tag: tag}
				report.ByTag[tag] = tr
			}
			tr.TotalEndpoints++
			if covered {
				tr.CoveredEndpoints++
			}
		}
	}

	report.CoveragePercent = percent(report.CoveredEndpoints, report.TotalEndpoints)
	for _, tr := range report.ByTag {
		tr.CoveragePercent = percent(tr.CoveredEndpoints, tr.TotalEndpoints)
	}

	sort.Slice(report.Endpoints, func(i, j int) bool {
		if report.Endpoints[i].Path != report.Endpoints[j].Path {
			return report.Endpoints[i].Path < report.Endpoints[j].Path
		}
		return report.Endpoints[i].Method < report.Endpoints[j].Method
	})
	return report
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// FormatConsole renders the report as text.
func (r *Report) FormatConsole() string {
	var sb strings.Builder

	sb.WriteString("\nAPI Coverage Report\n")
	sb.WriteString("===================\n\n")
	fmt.Fprintf(&sb, "Total Endpoints:   %d\n", r.TotalEndpoints)
	fmt.Fprintf(&sb, "Covered Endpoints: %d\n", r.CoveredEndpoints)
	fmt.Fprintf(&sb, "Coverage:          %.1f%%\n\n", r.CoveragePercent)

	if len(r.ByTag) > 0 {
		sb.WriteString("Coverage by Tag:\n")
		tags := make([]string, 0, len(r.ByTag))
		for tag := range r.ByTag {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		for _, tag := range tags {
			tr := r.ByTag[tag]
			fmt.Fprintf(&sb, "  %s: %d/%d (%.1f%%)\n", tag, tr.CoveredEndpoints, tr.TotalEndpoints, tr.CoveragePercent)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Endpoint Details:\n")
	for _, e := range r.Endpoints {
		mark := "[ ]"
		if e.Covered {
			mark = "[x]"
		}
		fmt.Fprintf(&sb, "  %s %s %s", mark, e.Method, e.Path)
		if e.Requests > 1 {
			fmt.Fprintf(&sb, " (x%d)", e.Requests)
		}
		sb.WriteString("\n")
	}

	if len(r.Unmatched) > 0 {
		sb.WriteString("\nUndocumented Requests:\n")
		for _, req := range r.Unmatched {
			fmt.Fprintf(&sb, "  %s %s\n", req.Method, req.Path)
		}
	}
	return sb.String()
}

func (r *Report) FormatJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Collector records the main request of every case that issued one. It is
// a runner.Reporter and is safe for parallel suites.
type Collector struct {
	mu       sync.Mutex
	requests []Request
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) SuiteStarted(*runner.SuiteInfo) {}

func (c *Collector) SuiteFinished(*runner.SuiteResult) {}

func (c *Collector) CaseFinished(_ *runner.SuiteInfo, result *runner.CaseResult) {
	a := result.Attachments
	if result.Skipped() || a.URL == "" || a.Status == 0 {
		return
	}
	u, err := url.Parse(a.URL)
	if err != nil {
		return
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	c.mu.Lock()
	c.requests = append(c.requests, Request{Method: a.Method, Path: path})
	c.mu.Unlock()
}

// Requests returns what has been recorded so far.
func (c *Collector) Requests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Request(nil), c.requests...)
}

var _ runner.Reporter = (*Collector)(nil)
