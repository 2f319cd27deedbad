package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// SQLDialect is the slice of a SQL dialect the code generator needs.
type SQLDialect interface {
	QuoteIdentifier(name string) string
	QuoteLiteral(s string) string
	// CastText casts expr to the dialect's unbounded character type.
	CastText(expr string) string
	// Coalesce returns expr, or fallback when expr is NULL.
	Coalesce(expr, fallback string) string
	// ConcatText joins text expressions.
	ConcatText(parts []string) string
	Length(expr string) string
	Round(expr string, places int) string
}

// computedFunctions is the subset allowed in generated column expressions.
var computedFunctions = map[string]bool{
	"SUM": true, "AVG": true, "IF": true, "CONCAT": true, "LEN": true,
	"UPPER": true, "LOWER": true, "ROUND": true, "ABS": true,
}

// ParseComputed parses a computed-column formula ([column] references only)
// and checks every reference against allowed columns.
func ParseComputed(expr string, allowed map[string]bool) (Node, error) {
	node, err := Parse(expr)
	if err != nil {
		return nil, err
	}

	var problem error
	Walk(node, func(n Node) {
		if problem != nil {
			return
		}
		switch x := n.(type) {
		case *FieldRef:
			problem = &SyntaxError{Pos: x.At, Msg: fmt.Sprintf("use [column] references in computed columns, not {%s}", x.Name)}
		case *VarRef:
			problem = &SyntaxError{Pos: x.At, Msg: fmt.Sprintf("unknown name %s", x.Name)}
		case *ColumnRef:
			if !allowed[x.Name] {
				problem = &SyntaxError{Pos: x.At, Msg: fmt.Sprintf("unknown column [%s]", x.Name)}
			}
		case *Call:
			if !computedFunctions[x.Name] {
				problem = &SyntaxError{Pos: x.At, Msg: fmt.Sprintf("%s is not supported in computed columns", x.Name)}
			}
			if x.Name == "ROUND" && len(x.Args) == 2 {
				if lit, ok := x.Args[1].(*NumberLit); !ok || !lit.IsInt {
					problem = &SyntaxError{Pos: x.At, Msg: "ROUND places must be an integer literal"}
				}
			}
		}
	})
	if problem != nil {
		return nil, problem
	}
	return node, nil
}

// GenerateSQL renders a computed-column expression tree as SQL for d.
func GenerateSQL(n Node, d SQLDialect) (string, error) {
	g := &generator{d: d}
	return g.gen(n)
}

type generator struct {
	d SQLDialect
}

func (g *generator) gen(n Node) (string, error) {
	switch x := n.(type) {
	case *NumberLit:
		if x.IsInt {
			return x.Text, nil
		}
		return strconv.FormatFloat(x.Value, 'f', -1, 64), nil

	case *StringLit:
		return g.d.QuoteLiteral(x.Value), nil

	case *ColumnRef:
		return g.d.QuoteIdentifier(x.Name), nil

	case *Unary:
		inner, err := g.gen(x.X)
		if err != nil {
			return "", err
		}
		return "(-" + inner + ")", nil

	case *Binary:
		l, err := g.gen(x.L)
		if err != nil {
			return "", err
		}
		r, err := g.gen(x.R)
		if err != nil {
			return "", err
		}
		if x.Op == AMP {
			return g.d.ConcatText([]string{g.textOf(l), g.textOf(r)}), nil
		}
		op := x.Op.String()
		return fmt.Sprintf("(%s %s %s)", l, op, r), nil

	case *Call:
		return g.genCall(x)
	}
	return "", fmt.Errorf("cannot generate SQL for %T", n)
}

func (g *generator) genArgs(args []Node) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		s, err := g.gen(a)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (g *generator) textOf(expr string) string {
	return g.d.Coalesce(g.d.CastText(expr), "''")
}

func (g *generator) genCall(c *Call) (string, error) {
	args, err := g.genArgs(c.Args)
	if err != nil {
		return "", err
	}

	switch c.Name {
	case "SUM", "AVG":
		terms := make([]string, len(args))
		for i, a := range args {
			terms[i] = g.d.Coalesce(a, "0")
		}
		sum := "(" + strings.Join(terms, " + ") + ")"
		if c.Name == "SUM" {
			return sum, nil
		}
		return fmt.Sprintf("(%s / %d.0)", sum, len(args)), nil

	case "IF":
		return fmt.Sprintf("(CASE WHEN %s THEN %s ELSE %s END)", args[0], args[1], args[2]), nil

	case "CONCAT":
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = g.textOf(a)
		}
		return g.d.ConcatText(parts), nil

	case "LEN":
		return g.d.Length(g.d.CastText(args[0])), nil

	case "UPPER", "LOWER":
		return fmt.Sprintf("%s(%s)", c.Name, g.d.CastText(args[0])), nil

	case "ROUND":
		places := 0
		if len(c.Args) == 2 {
			lit, ok := c.Args[1].(*NumberLit)
			if !ok || !lit.IsInt {
				return "", fmt.Errorf("ROUND places must be an integer literal")
			}
			places = int(lit.Value)
		}
		return g.d.Round(args[0], places), nil

	case "ABS":
		return fmt.Sprintf("ABS(%s)", args[0]), nil
	}
	return "", fmt.Errorf("%s is not supported in computed columns", c.Name)
}
