package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// Function arity: min and max argument counts, max -1 for variadic.
type arity struct{ min, max int }

var functions = map[string]arity{
	"SUM":    {1, -1},
	"AVG":    {1, -1},
	"MIN":    {1, -1},
	"MAX":    {1, -1},
	"IF":     {3, 3},
	"ROUND":  {1, 2},
	"ABS":    {1, 1},
	"CONCAT": {1, -1},
	"LEN":    {1, 1},
	"UPPER":  {1, 1},
	"LOWER":  {1, 1},
}

// Parse builds an expression tree. A leading "=" is accepted and ignored.
func Parse(expr string) (Node, error) {
	expr = strings.TrimSpace(expr)
	expr = strings.TrimPrefix(expr, "=")

	p := &parser{tokens: Tokenize(expr)}
	if last := p.tokens[len(p.tokens)-1]; last.Type == INVALID {
		return nil, &SyntaxError{Pos: last.Pos, Msg: fmt.Sprintf("unexpected %q", last.Value)}
	}
	if p.peek().Type == EOF {
		return nil, &SyntaxError{Pos: 0, Msg: "empty expression"}
	}

	node, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != EOF {
		return nil, &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("unexpected %q", tok.Value)}
	}
	return node, nil
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *parser) next() Token {
	tok := p.tokens[p.pos]
	if tok.Type != EOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		switch tok.Type {
		case EQ, NEQ, LT, LTE, GT, GTE:
			p.next()
			right, err := p.parseConcat()
			if err != nil {
				return nil, err
			}
			left = &Binary{Op: tok.Type, L: left, R: right, At: tok.Pos}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseConcat() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == AMP {
		tok := p.next()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: AMP, L: left, R: right, At: tok.Pos}
	}
	return left, nil
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == PLUS || p.peek().Type == MINUS {
		tok := p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: tok.Type, L: left, R: right, At: tok.Pos}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == STAR || p.peek().Type == SLASH {
		tok := p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: tok.Type, L: left, R: right, At: tok.Pos}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.peek().Type == MINUS || p.peek().Type == PLUS {
		tok := p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if tok.Type == PLUS {
			return x, nil
		}
		return &Unary{Op: MINUS, X: x, At: tok.Pos}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.next()
	switch tok.Type {
	case NUMBER:
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("invalid number %q", tok.Value)}
		}
		return &NumberLit{Text: tok.Value, Value: f, IsInt: !strings.Contains(tok.Value, "."), At: tok.Pos}, nil

	case STRING:
		return &StringLit{Value: tok.Value, At: tok.Pos}, nil

	case FIELD:
		return &FieldRef{Name: tok.Value, At: tok.Pos}, nil

	case COLUMN:
		if tok.Value == "" {
			return nil, &SyntaxError{Pos: tok.Pos, Msg: "empty column reference"}
		}
		return &ColumnRef{Name: tok.Value, At: tok.Pos}, nil

	case IDENT:
		if p.peek().Type == LPAREN {
			return p.parseCall(tok)
		}
		return &VarRef{Name: tok.Value, At: tok.Pos}, nil

	case LPAREN:
		inner, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.Type != RPAREN {
			return nil, &SyntaxError{Pos: closing.Pos, Msg: "missing closing parenthesis"}
		}
		return inner, nil

	case EOF:
		return nil, &SyntaxError{Pos: tok.Pos, Msg: "unexpected end of expression"}
	}
	return nil, &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("unexpected %q", tok.Value)}
}

func (p *parser) parseCall(name Token) (Node, error) {
	fn := strings.ToUpper(name.Value)
	ar, ok := functions[fn]
	if !ok {
		return nil, &SyntaxError{Pos: name.Pos, Msg: fmt.Sprintf("unknown function %s", name.Value)}
	}
	p.next() // (

	call := &Call{Name: fn, At: name.Pos}
	if p.peek().Type != RPAREN {
		for {
			arg, err := p.parseComparison()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
			if p.peek().Type != COMMA {
				break
			}
			p.next()
		}
	}
	if closing := p.next(); closing.Type != RPAREN {
		return nil, &SyntaxError{Pos: closing.Pos, Msg: fmt.Sprintf("missing closing parenthesis for %s", fn)}
	}

	n := len(call.Args)
	if n < ar.min || (ar.max >= 0 && n > ar.max) {
		return nil, &SyntaxError{Pos: name.Pos, Msg: fmt.Sprintf("%s takes %s, got %d", fn, ar.describe(), n)}
	}
	return call, nil
}

func (a arity) describe() string {
	switch {
	case a.max < 0:
		return fmt.Sprintf("at least %d argument(s)", a.min)
	case a.min == a.max:
		return fmt.Sprintf("%d argument(s)", a.min)
	default:
		return fmt.Sprintf("%d to %d arguments", a.min, a.max)
	}
}
