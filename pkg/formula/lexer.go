package formula

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexer splits a formula expression into tokens. The leading "=" of a
// formula must be stripped by the caller.
type Lexer struct {
	input string
	pos   int
}

func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// NextToken returns the next token, or EOF once the input is exhausted.
// Malformed input yields INVALID tokens rather than panicking.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()
	if l.pos >= len(l.input) {
		return Token{Type: EOF, Pos: l.pos}
	}

	start := l.pos
	r, width := utf8.DecodeRuneInString(l.input[l.pos:])

	switch {
	case r == '{':
		return l.readDelimited(FIELD, '}')
	case r == '[':
		return l.readDelimited(COLUMN, ']')
	case r == '"':
		return l.readString()
	case isDigit(r) || (r == '.' && l.peekDigit(width)):
		return l.readNumber()
	case unicode.IsLetter(r) || r == '_':
		return l.readIdent()
	}

	l.pos += width
	switch r {
	case '+':
		return Token{Type: PLUS, Value: "+", Pos: start}
	case '-':
		return Token{Type: MINUS, Value: "-", Pos: start}
	case '*':
		return Token{Type: STAR, Value: "*", Pos: start}
	case '/':
		return Token{Type: SLASH, Value: "/", Pos: start}
	case '&':
		return Token{Type: AMP, Value: "&", Pos: start}
	case ',':
		return Token{Type: COMMA, Value: ",", Pos: start}
	case '(':
		return Token{Type: LPAREN, Value: "(", Pos: start}
	case ')':
		return Token{Type: RPAREN, Value: ")", Pos: start}
	case '=':
		if l.match('=') {
			return Token{Type: EQ, Value: "==", Pos: start}
		}
		return Token{Type: EQ, Value: "=", Pos: start}
	case '!':
		if l.match('=') {
			return Token{Type: NEQ, Value: "!=", Pos: start}
		}
	case '<':
		if l.match('>') {
			return Token{Type: NEQ, Value: "<>", Pos: start}
		}
		if l.match('=') {
			return Token{Type: LTE, Value: "<=", Pos: start}
		}
		return Token{Type: LT, Value: "<", Pos: start}
	case '>':
		if l.match('=') {
			return Token{Type: GTE, Value: ">=", Pos: start}
		}
		return Token{Type: GT, Value: ">", Pos: start}
	}

	return Token{Type: INVALID, Value: string(r), Pos: start}
}

// Tokenize drains the lexer. The returned slice always ends with EOF unless an
// INVALID token is met, in which case it ends with that token.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == EOF || tok.Type == INVALID {
			return tokens
		}
	}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		r, width := utf8.DecodeRuneInString(l.input[l.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		l.pos += width
	}
}

func (l *Lexer) match(next byte) bool {
	if l.pos < len(l.input) && l.input[l.pos] == next {
		l.pos++
		return true
	}
	return false
}

func (l *Lexer) peekDigit(offset int) bool {
	i := l.pos + offset
	return i < len(l.input) && l.input[i] >= '0' && l.input[i] <= '9'
}

func (l *Lexer) readDelimited(typ TokenType, closer byte) Token {
	start := l.pos
	end := strings.IndexByte(l.input[start+1:], closer)
	if end < 0 {
		l.pos = len(l.input)
		return Token{Type: INVALID, Value: l.input[start:], Pos: start}
	}
	name := l.input[start+1 : start+1+end]
	l.pos = start + end + 2
	return Token{Type: typ, Value: strings.TrimSpace(name), Pos: start}
}

func (l *Lexer) readString() Token {
	start := l.pos
	l.pos++ // opening quote
	var b strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == '"' {
			if l.pos+1 < len(l.input) && l.input[l.pos+1] == '"' {
				b.WriteByte('"')
				l.pos += 2
				continue
			}
			l.pos++
			return Token{Type: STRING, Value: b.String(), Pos: start}
		}
		b.WriteByte(c)
		l.pos++
	}
	return Token{Type: INVALID, Value: l.input[start:], Pos: start}
}

func (l *Lexer) readNumber() Token {
	start := l.pos
	seenDot := false
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == '.' && !seenDot {
			seenDot = true
			l.pos++
			continue
		}
		if c < '0' || c > '9' {
			break
		}
		l.pos++
	}
	return Token{Type: NUMBER, Value: l.input[start:l.pos], Pos: start}
}

func (l *Lexer) readIdent() Token {
	start := l.pos
	for l.pos < len(l.input) {
		r, width := utf8.DecodeRuneInString(l.input[l.pos:])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		l.pos += width
	}
	return Token{Type: IDENT, Value: l.input[start:l.pos], Pos: start}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
