package coltype

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/shopspring/decimal"
)

var (
	wholeNumberPattern    = regexp.MustCompile(`^-?\d+$`)
	plainNumberPattern    = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	decimalLiteralPattern = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)$`)
	emailPattern          = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	timeOfDayPattern      = regexp.MustCompile(`\d{1,2}:\d{2}`)
)

var booleanValues = map[string]bool{
	"true":  true,
	"yes":   true,
	"1":     true,
	"t":     true,
	"y":     true,
	"false": false,
	"no":    false,
	"0":     false,
	"f":     false,
	"n":     false,
}

// BooleanTrueValues and BooleanFalseValues are the accepted lower-cased
// spellings, exported for dialects that emit the same mapping in SQL.
var (
	BooleanTrueValues  = []string{"true", "t", "yes", "y", "1"}
	BooleanFalseValues = []string{"false", "f", "no", "n", "0"}
)

// TypedValue is a raw value after conversion to a logical type.
type TypedValue struct {
	Type  Type `json:"type"`
	Value any  `json:"value"`
	Null  bool `json:"null,omitempty"`
}

// String renders the value the way it would be displayed in a cell.
func (v TypedValue) String() string {
	if v.Null || v.Value == nil {
		return ""
	}
	switch x := v.Value.(type) {
	case time.Time:
		if v.Type == Date {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// ConversionError reports a raw value that does not satisfy a type's rule.
type ConversionError struct {
	Value  string
	Type   Type
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %q to %s: %s", e.Value, e.Type, e.Reason)
}

// Convert converts a raw string into a TypedValue for the logical type.
// Blank input converts to a null value of that type.
func Convert(raw string, t Type) (TypedValue, error) {
	if !t.Valid() {
		return TypedValue{}, &ConversionError{Value: raw, Type: t, Reason: "unknown type"}
	}

	s := strings.TrimSpace(raw)
	if s == "" {
		return TypedValue{Type: t, Null: true}, nil
	}

	fail := func(reason string) (TypedValue, error) {
		return TypedValue{}, &ConversionError{Value: raw, Type: t, Reason: reason}
	}

	switch t {
	case SingleLineText, MultipleLinesText, Formula:
		return TypedValue{Type: t, Value: raw}, nil

	case Email:
		if !emailPattern.MatchString(s) {
			return fail("not a valid email address")
		}
		return TypedValue{Type: t, Value: s}, nil

	case WholeNumber, Lookup:
		if !wholeNumberPattern.MatchString(s) {
			return fail("not a whole number")
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fail("out of range")
		}
		return TypedValue{Type: t, Value: n}, nil

	case Number, Currency, Percentage:
		digits := stripNumericSymbols(s)
		if !decimalLiteralPattern.MatchString(digits) {
			return fail("not a number")
		}
		f, err := strconv.ParseFloat(digits, 64)
		if err != nil {
			return fail("not a number")
		}
		return TypedValue{Type: t, Value: RoundMoney(f)}, nil

	case Boolean:
		b, ok := booleanValues[strings.ToLower(s)]
		if !ok {
			return fail("not a boolean")
		}
		return TypedValue{Type: t, Value: b}, nil

	case Date:
		ts, err := parseDate(s)
		if err != nil {
			return fail("not a date")
		}
		return TypedValue{Type: t, Value: time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)}, nil

	case DateAndTime:
		if !HasTimeOfDay(s) {
			return fail("missing time of day")
		}
		ts, err := parseDate(s)
		if err != nil {
			return fail("not a date and time")
		}
		return TypedValue{Type: t, Value: ts}, nil
	}

	return fail("unsupported type")
}

// Convertible reports whether raw converts cleanly to t. Blank values are
// convertible (they become null).
func Convertible(raw string, t Type) bool {
	_, err := Convert(raw, t)
	return err == nil
}

// RoundMoney rounds to 2 decimal places, half away from zero (10.555 -> 10.56).
func RoundMoney(f float64) float64 {
	r, _ := decimal.NewFromFloat(f).Round(2).Float64()
	return r
}

// IsPlainNumber reports whether s is an optionally signed integer or decimal
// literal without any symbols or grouping.
func IsPlainNumber(s string) bool {
	return plainNumberPattern.MatchString(s)
}

// HasTimeOfDay reports whether s carries an HH:MM component.
func HasTimeOfDay(s string) bool {
	return timeOfDayPattern.MatchString(s)
}

func stripNumericSymbols(s string) string {
	return strings.NewReplacer("$", "", ",", "", "%", "").Replace(s)
}

// parseDate parses with the generic parser, refusing bare numbers which the
// parser would otherwise read as years or unix timestamps.
func parseDate(s string) (time.Time, error) {
	if IsPlainNumber(s) {
		return time.Time{}, fmt.Errorf("numeric value is not a date")
	}
	return dateparse.ParseIn(s, time.UTC)
}
