// Package coltype defines the closed catalog of logical column types, their
// physical storage mapping, value conversion rules and the static conversion
// compatibility matrix. Everything here is pure; no I/O.
package coltype

import "fmt"

// Type is a user-facing logical column type.
type Type string

// Declaration order matters: it is the tie-break order used by the Detector.
const (
	SingleLineText    Type = "single_line_text"
	MultipleLinesText Type = "multiple_lines_text"
	Email             Type = "email"
	WholeNumber       Type = "whole_number"
	Number            Type = "number"
	Currency          Type = "currency"
	Percentage        Type = "percentage"
	Boolean           Type = "boolean"
	Date              Type = "date"
	DateAndTime       Type = "date_and_time"
	Lookup            Type = "lookup"
	Formula           Type = "formula"
)

var catalog = []Type{
	SingleLineText,
	MultipleLinesText,
	Email,
	WholeNumber,
	Number,
	Currency,
	Percentage,
	Boolean,
	Date,
	DateAndTime,
	Lookup,
	Formula,
}

var labels = map[Type]string{
	SingleLineText:    "Single line text",
	MultipleLinesText: "Multiple lines text",
	Email:             "Email",
	WholeNumber:       "Whole number",
	Number:            "Number",
	Currency:          "Currency",
	Percentage:        "Percentage",
	Boolean:           "Boolean",
	Date:              "Date",
	DateAndTime:       "Date and time",
	Lookup:            "Lookup",
	Formula:           "Formula",
}

// All returns every logical type in catalog declaration order.
func All() []Type {
	out := make([]Type, len(catalog))
	copy(out, catalog)
	return out
}

// Parse converts a string into a Type, rejecting anything outside the catalog.
func Parse(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown column type %q", s)
	}
	return t, nil
}

// Valid reports whether t is a catalog entry.
func (t Type) Valid() bool {
	_, ok := labels[t]
	return ok
}

// Label returns the human readable name of the type.
func (t Type) Label() string {
	if l, ok := labels[t]; ok {
		return l
	}
	return string(t)
}

func (t Type) String() string {
	return string(t)
}

// IsText reports whether values of this type are stored as character data.
func (t Type) IsText() bool {
	return t == SingleLineText || t == MultipleLinesText || t == Email
}

// IsNumeric reports whether values of this type are stored as numbers.
func (t Type) IsNumeric() bool {
	switch t {
	case WholeNumber, Number, Currency, Percentage:
		return true
	}
	return false
}

// IsTemporal reports whether values of this type are dates or timestamps.
func (t Type) IsTemporal() bool {
	return t == Date || t == DateAndTime
}

// order returns the catalog position of t, used for deterministic tie breaks.
func (t Type) order() int {
	for i, c := range catalog {
		if c == t {
			return i
		}
	}
	return len(catalog)
}
