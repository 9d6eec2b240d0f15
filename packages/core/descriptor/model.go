package descriptor

import "fmt"

// Kind discriminates descriptor blocks.
type Kind int

const (
	KindConfig Kind = iota
	KindSchema
	KindHandler
	KindBeforeAll
	KindAfterAll
	KindBeforeEach
	KindAfterEach
	KindTest
)

// markers lists the discriminating keys in precedence order. A test key
// always marks a case; the other keys may appear as case attributes.
var markers = []struct {
	key  string
	kind Kind
}{
	{"test", KindTest},
	{"config", KindConfig},
	{"schema", KindSchema},
	{"handler", KindHandler},
	{"beforeAll", KindBeforeAll},
	{"afterAll", KindAfterAll},
	{"beforeEach", KindBeforeEach},
	{"afterEach", KindAfterEach},
}

func (k Kind) String() string {
	for _, m := range markers {
		if m.kind == k {
			return m.key
		}
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Block is one raw entry of a descriptor, tagged with its kind.
type Block struct {
	Kind  Kind
	Index int
	Raw   map[string]any
}

// Phase names the point in the lifecycle a hook runs at.
type Phase string

const (
	PhaseBeforeAll  Phase = "beforeAll"
	PhaseAfterAll   Phase = "afterAll"
	PhaseBeforeEach Phase = "beforeEach"
	PhaseAfterEach  Phase = "afterEach"
	PhaseBefore     Phase = "before"
	PhaseAfter      Phase = "after"
)

// Document is a fully partitioned descriptor.
type Document struct {
	Path string
	Dir  string

	Blocks   []Block
	Config   []ConfigEntry
	Schemas  map[string]map[string]any
	Handlers map[string]*HandlerSpec

	BeforeAll  []*Hook
	AfterAll   []*Hook
	BeforeEach []*Hook
	AfterEach  []*Hook

	Cases []*Case

	// SkipAll is set when any case carries skipall.
	SkipAll bool

	// Problems collects field-level defects found while decoding. They are
	// reported as a ConfigurationError before the suite runs.
	Problems []string
}

// ConfigEntry is one global assignment, kept in declaration order.
type ConfigEntry struct {
	Name     string
	Template any
}

// HandlerSpec is a handler declared inside the document; its steps are
// expressions.
type HandlerSpec struct {
	Name     string
	Before   string
	Validate string
	After    string
}

// Request is the main request of a case.
type Request struct {
	Method    string
	URL       string
	Options   map[string]any
	DependsOn string
}

// SQLStep runs a statement against a database.
type SQLStep struct {
	DB    string
	Query string
}

// Hook is a setup or teardown step. Any of URL, Script and SQL may be set;
// they run in that order.
type Hook struct {
	Phase   Phase
	ID      string
	Method  string
	URL     string
	Options map[string]any
	Script  string
	SQL     *SQLStep
	Status  *StatusExpectation
	Asserts *Asserts
}

// Case is a single test scenario.
type Case struct {
	// Name is unique within the document after disambiguation.
	Name string
	// Declared is the name as written.
	Declared string
	Index    int

	Data    Request
	Handler string
	Before  []*Hook
	After   []*Hook
	Status  *StatusExpectation
	Asserts *Asserts

	Only    bool
	OnlyAll bool
	SkipAll bool

	// Exclusive is true when the case is selected by only, or by onlyall
	// anywhere in its document.
	Exclusive bool

	// Raw is the block as written; expressions see it as `test`.
	Raw map[string]any
}

// StatusExpectation is either a single code or a list of acceptable codes.
type StatusExpectation struct {
	Codes []int
	List  bool
}

// Asserts is the validation block of a case or hook.
type Asserts struct {
	Status       *StatusExpectation
	Script       string
	Schema       any
	Headers      []HeaderCheck
	HasJSON      []map[string]any
	HasNotJSON   []map[string]any
	VerifyPath   []PathCheck
	Body         []string
	ResponseTime int
}

type HeaderCheck struct {
	Name    string
	Pattern string
}

type PathCheck struct {
	Path   string
	Expect string
}

// SchemaName returns the referenced schema name when Schema is a reference.
func (a *Asserts) SchemaName() (string, bool) {
	if a == nil {
		return "", false
	}
	name, ok := a.Schema.(string)
	return name, ok
}

// HasExclusive reports whether any case in the document is exclusive.
func (d *Document) HasExclusive() bool {
	for _, c := range d.Cases {
		if c.Exclusive {
			return true
		}
	}
	return false
}

// DependencyTargets returns the set of declared names used as dependson.
func (d *Document) DependencyTargets() map[string]bool {
	targets := make(map[string]bool)
	for _, c := range d.Cases {
		if c.Data.DependsOn != "" {
			targets[c.Data.DependsOn] = true
		}
	}
	return targets
}

// CaseByDeclaredName returns the first case declared with name.
func (d *Document) CaseByDeclaredName(name string) *Case {
	for _, c := range d.Cases {
		if c.Declared == name {
			return c
		}
	}
	return nil
}
