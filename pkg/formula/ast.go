package formula

// Node is an expression tree node.
type Node interface {
	Pos() int
}

type (
	NumberLit struct {
		Text  string
		Value float64
		IsInt bool
		At    int
	}

	StringLit struct {
		Value string
		At    int
	}

	// VarRef is a bare identifier bound from the evaluation environment.
	VarRef struct {
		Name string
		At   int
	}

	// FieldRef is a {Display Name} reference that was not rewritten.
	FieldRef struct {
		Name string
		At   int
	}

	// ColumnRef is a [column_name] reference in a computed-column formula.
	ColumnRef struct {
		Name string
		At   int
	}

	Unary struct {
		Op TokenType
		X  Node
		At int
	}

	Binary struct {
		Op   TokenType
		L, R Node
		At   int
	}

	Call struct {
		Name string
		Args []Node
		At   int
	}
)

func (n *NumberLit) Pos() int { return n.At }
func (n *StringLit) Pos() int { return n.At }
func (n *VarRef) Pos() int    { return n.At }
func (n *FieldRef) Pos() int  { return n.At }
func (n *ColumnRef) Pos() int { return n.At }
func (n *Unary) Pos() int     { return n.At }
func (n *Binary) Pos() int    { return n.At }
func (n *Call) Pos() int      { return n.At }

// Walk calls fn for n and every descendant, depth first.
func Walk(n Node, fn func(Node)) {
	if n == nil {
		return
	}
	fn(n)
	switch x := n.(type) {
	case *Unary:
		Walk(x.X, fn)
	case *Binary:
		Walk(x.L, fn)
		Walk(x.R, fn)
	case *Call:
		for _, a := range x.Args {
			Walk(a, fn)
		}
	}
}

// ColumnRefs returns the distinct [column] names referenced by n, in order of
// first appearance.
func ColumnRefs(n Node) []string {
	var out []string
	seen := map[string]bool{}
	Walk(n, func(n Node) {
		if c, ok := n.(*ColumnRef); ok && !seen[c.Name] {
			seen[c.Name] = true
			out = append(out, c.Name)
		}
	})
	return out
}
