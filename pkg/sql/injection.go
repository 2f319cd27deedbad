package sql

import (
	"errors"
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"
)

// ErrSuspiciousLiteral is returned when a value destined for a DDL literal
// (a column default, for instance) matches a SQL injection pattern.
var ErrSuspiciousLiteral = errors.New("value matches a SQL injection pattern")

// InjectionCheckResult describes a value that libinjection flagged.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Field       string // What the value was for, e.g. "default_value"
	Value       any
}

// CheckValueForInjection runs libinjection over a string value. Non-string
// values cannot carry an injection and always pass.
//
//	CheckValueForInjection("default_value", "pending")            // nil
//	CheckValueForInjection("default_value", "x'; DROP TABLE t--") // IsSQLi == true
func CheckValueForInjection(field string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		IsSQLi:      true,
		Fingerprint: string(fingerprint),
		Field:       field,
		Value:       value,
	}
}

// CheckLiteral is the error-returning form used before a value is rendered as
// a quoted SQL literal. DML never needs this: its values go through placeholders.
func CheckLiteral(field string, value any) error {
	if r := CheckValueForInjection(field, value); r != nil {
		return fmt.Errorf("%w: %s (fingerprint %s)", ErrSuspiciousLiteral, field, r.Fingerprint)
	}
	return nil
}

// CheckAllValues screens several named values and returns every hit.
func CheckAllValues(values map[string]any) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for name, value := range values {
		if result := CheckValueForInjection(name, value); result != nil {
			results = append(results, result)
		}
	}
	return results
}
