package sql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-schema/pkg/apperrors"
)

// MaxIdentifierLength is the PostgreSQL identifier limit, applied to every
// dialect so that metadata stays portable.
const MaxIdentifierLength = 63

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ReservedColumnNames are managed by the engine on every physical table.
var ReservedColumnNames = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

// ErrReservedColumn is returned when a user column reuses an engine-managed name.
var ErrReservedColumn = errors.New("reserved column name")

// Ident is a table or column name that has passed ValidateIdentifier.
// Only Ident values are ever interpolated into generated DDL/DML.
type Ident string

func (i Ident) String() string {
	return string(i)
}

// ValidateIdentifier checks a table or column name against the safe-name pattern.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", apperrors.ErrInvalidIdentifier)
	}
	if len(name) > MaxIdentifierLength {
		return fmt.Errorf("%w: %q exceeds %d characters", apperrors.ErrInvalidIdentifier, name, MaxIdentifierLength)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q must start with a letter or underscore and contain only lowercase letters, numbers, and underscores",
			apperrors.ErrInvalidIdentifier, name)
	}
	return nil
}

// IsValidIdentifier is the boolean form of ValidateIdentifier.
func IsValidIdentifier(name string) bool {
	return ValidateIdentifier(name) == nil
}

// NewIdent validates name and returns it as an Ident.
func NewIdent(name string) (Ident, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", err
	}
	return Ident(name), nil
}

// MustIdent is NewIdent for engine-owned constant names.
func MustIdent(name string) Ident {
	id, err := NewIdent(name)
	if err != nil {
		panic(err)
	}
	return id
}

// SanitizeIdentifier lower-cases s and replaces every character outside
// [a-z0-9] with an underscore. A leading digit gets an underscore prefix.
// The result always satisfies the identifier pattern (up to length).
func SanitizeIdentifier(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 1)
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" {
		return "_"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

// ColumnNameFromLabel turns a human label such as a spreadsheet header into a
// column name: sanitized, runs of underscores collapsed, trimmed, truncated.
func ColumnNameFromLabel(label string) string {
	s := SanitizeIdentifier(strings.TrimSpace(label))
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	s = strings.Trim(s, "_")
	if s == "" {
		s = "column"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "_" + s
	}
	if len(s) > MaxIdentifierLength {
		s = strings.TrimRight(s[:MaxIdentifierLength], "_")
	}
	return s
}

// TruncateIdentifier shortens a generated name (index names and the like) to
// the identifier limit.
func TruncateIdentifier(name string) string {
	if len(name) <= MaxIdentifierLength {
		return name
	}
	return name[:MaxIdentifierLength]
}
