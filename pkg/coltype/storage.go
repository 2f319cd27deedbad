package coltype

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// StorageKind is a dialect-neutral physical storage class. Dialects render it
// into their own SQL type names.
type StorageKind string

const (
	StorageVarchar   StorageKind = "varchar"
	StorageText      StorageKind = "text"
	StorageInteger   StorageKind = "integer"
	StorageBigint    StorageKind = "bigint"
	StorageDecimal   StorageKind = "decimal"
	StorageBoolean   StorageKind = "boolean"
	StorageDate      StorageKind = "date"
	StorageTimestamp StorageKind = "timestamp"
)

// StorageType is the physical column type a logical type maps to.
type StorageType struct {
	Kind      StorageKind `json:"kind"`
	Length    int         `json:"length,omitempty"`
	Precision int         `json:"precision,omitempty"`
	Scale     int         `json:"scale,omitempty"`
}

func (s StorageType) String() string {
	switch s.Kind {
	case StorageVarchar:
		return fmt.Sprintf("varchar(%d)", s.Length)
	case StorageDecimal:
		return fmt.Sprintf("decimal(%d,%d)", s.Precision, s.Scale)
	default:
		return string(s.Kind)
	}
}

// DefaultTextLength is the varchar length used for single line text and email.
const DefaultTextLength = 255

var physical = map[Type]StorageType{
	SingleLineText:    {Kind: StorageVarchar, Length: DefaultTextLength},
	MultipleLinesText: {Kind: StorageText},
	Email:             {Kind: StorageVarchar, Length: DefaultTextLength},
	WholeNumber:       {Kind: StorageInteger},
	Number:            {Kind: StorageDecimal, Precision: 15, Scale: 2},
	Currency:          {Kind: StorageDecimal, Precision: 15, Scale: 2},
	Percentage:        {Kind: StorageDecimal, Precision: 5, Scale: 2},
	Boolean:           {Kind: StorageBoolean},
	Date:              {Kind: StorageDate},
	DateAndTime:       {Kind: StorageTimestamp},
	Lookup:            {Kind: StorageBigint},
	Formula:           {Kind: StorageText},
}

// PhysicalTypeFor returns the storage type for a logical type.
func PhysicalTypeFor(t Type) (StorageType, error) {
	st, ok := physical[t]
	if !ok {
		return StorageType{}, fmt.Errorf("no physical type for %q", t)
	}
	return st, nil
}

// MustPhysicalTypeFor is PhysicalTypeFor for callers that have already
// validated t against the catalog.
func MustPhysicalTypeFor(t Type) StorageType {
	st, err := PhysicalTypeFor(t)
	if err != nil {
		panic(err)
	}
	return st
}

// FitsStorage reports whether a converted value is representable in the
// physical column of its type. Null values always fit.
func FitsStorage(v TypedValue) bool {
	if v.Null || v.Value == nil {
		return true
	}
	st, err := PhysicalTypeFor(v.Type)
	if err != nil {
		return false
	}
	switch st.Kind {
	case StorageInteger:
		n, ok := v.Value.(int64)
		return ok && n >= math.MinInt32 && n <= math.MaxInt32
	case StorageDecimal:
		f, ok := v.Value.(float64)
		return ok && math.Abs(f) < math.Pow10(st.Precision-st.Scale)
	case StorageVarchar:
		s, ok := v.Value.(string)
		return ok && len([]rune(s)) <= st.Length
	}
	return true
}

// ConvertForStorage is Convert followed by FitsStorage.
func ConvertForStorage(raw string, t Type) (TypedValue, error) {
	v, err := Convert(raw, t)
	if err != nil {
		return v, err
	}
	if !FitsStorage(v) {
		return TypedValue{}, &ConversionError{Value: raw, Type: t, Reason: "out of range for " + MustPhysicalTypeFor(t).String()}
	}
	return v, nil
}

// StorageLiteral renders a converted value in the canonical text form that
// every supported database casts back into the type's storage without
// locale or date-style ambiguity.
func StorageLiteral(v TypedValue) string {
	if v.Null || v.Value == nil {
		return ""
	}
	switch x := v.Value.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if v.Type == Date {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05.999999")
	}
	return fmt.Sprint(v.Value)
}

// ParsedConversion reports whether converting from one type to another
// needs the catalog's value parser. Text holding numbers or dates is written
// in too many shapes for a SQL predicate to judge, so these conversions are
// decided value by value with ConvertForStorage.
func ParsedConversion(from, to Type) bool {
	return from.IsText() && (to.IsNumeric() || to.IsTemporal())
}
