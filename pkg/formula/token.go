package formula

import "fmt"

// TokenType classifies a lexical token of a formula expression.
type TokenType int

const (
	NUMBER TokenType = iota
	STRING
	IDENT
	FIELD  // {Display Name}
	COLUMN // [column_name]

	PLUS
	MINUS
	STAR
	SLASH
	AMP
	EQ
	NEQ
	LT
	LTE
	GT
	GTE

	COMMA
	LPAREN
	RPAREN

	INVALID
	EOF
)

func (t TokenType) String() string {
	switch t {
	case NUMBER:
		return "NUMBER"
	case STRING:
		return "STRING"
	case IDENT:
		return "IDENT"
	case FIELD:
		return "FIELD"
	case COLUMN:
		return "COLUMN"
	case PLUS:
		return "+"
	case MINUS:
		return "-"
	case STAR:
		return "*"
	case SLASH:
		return "/"
	case AMP:
		return "&"
	case EQ:
		return "="
	case NEQ:
		return "<>"
	case LT:
		return "<"
	case LTE:
		return "<="
	case GT:
		return ">"
	case GTE:
		return ">="
	case COMMA:
		return ","
	case LPAREN:
		return "("
	case RPAREN:
		return ")"
	case INVALID:
		return "INVALID"
	case EOF:
		return "EOF"
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// IsBinaryOperator reports whether the token joins two operands.
func (t TokenType) IsBinaryOperator() bool {
	return t >= PLUS && t <= GTE
}

// Token is a single lexeme with its byte offset in the source.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

// SyntaxError reports a malformed expression.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at position %d", e.Msg, e.Pos)
}
