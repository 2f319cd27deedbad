// Package sql holds the guards every generated statement passes through:
// identifier validation, literal screening and the single-statement check.
package sql

import (
	"errors"
	"strings"
)

// ErrMultipleStatements indicates generated SQL contains more than one statement.
var ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

// NormalizeStatement trims whitespace and a trailing semicolon and rejects any
// remaining semicolon outside quoted literals and identifiers. Quoting styles
// understood: 'literal', "identifier" and [identifier].
func NormalizeStatement(stmt string) (string, error) {
	stmt = strings.TrimSpace(stmt)
	if stmt == "" {
		return stmt, nil
	}

	stmt = strings.TrimRight(stmt, " \t\n\r")
	if strings.HasSuffix(stmt, ";") {
		stmt = strings.TrimRight(strings.TrimSuffix(stmt, ";"), " \t\n\r")
	}

	if hasSemicolonOutsideQuotes(stmt) {
		return "", ErrMultipleStatements
	}
	return stmt, nil
}

func hasSemicolonOutsideQuotes(stmt string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateBracket
	)

	state := stateNormal
	runes := []rune(stmt)
	for i := 0; i < len(runes); i++ {
		char := runes[i]
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			case '[':
				state = stateBracket
			}
		case stateSingleQuote:
			// '' re-enters the literal on the next quote
			if char == '\'' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' {
				state = stateNormal
			}
		case stateBracket:
			if char == ']' {
				if i+1 < len(runes) && runes[i+1] == ']' {
					i++ // escaped ]]
					continue
				}
				state = stateNormal
			}
		}
	}
	return false
}
