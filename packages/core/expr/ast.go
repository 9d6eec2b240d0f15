package expr

type Node interface {
	Pos() int
}

type Literal struct {
	Value any
	At    int
}

type Ident struct {
	Name string
	At   int
}

// Member is dotted property access: obj.name
type Member struct {
	Object   Node
	Property string
	At       int
}

// Index is bracket access: obj[expr]
type Index struct {
	Object Node
	Index  Node
	At     int
}

type Call struct {
	Name string
	Args []Node
	At   int
}

type Unary struct {
	Op      string
	Operand Node
	At      int
}

type Binary struct {
	Op          string
	Left, Right Node
	At          int
}

type ArrayLit struct {
	Elems []Node
	At    int
}

type ObjectLit struct {
	Keys   []string
	Values []Node
	At     int
}

func (n *Literal) Pos() int   { return n.At }
func (n *Ident) Pos() int     { return n.At }
func (n *Member) Pos() int    { return n.At }
func (n *Index) Pos() int     { return n.At }
func (n *Call) Pos() int      { return n.At }
func (n *Unary) Pos() int     { return n.At }
func (n *Binary) Pos() int    { return n.At }
func (n *ArrayLit) Pos() int  { return n.At }
func (n *ObjectLit) Pos() int { return n.At }
