package coltype

import "fmt"

// Compatibility is the static judgement for converting one logical type to another.
type Compatibility struct {
	Compatible  bool   `json:"compatible"`
	Safe        bool   `json:"safe"`
	MayLoseData bool   `json:"may_lose_data"`
	Reason      string `json:"reason,omitempty"`
}

var (
	safe         = Compatibility{Compatible: true, Safe: true}
	lossy        = Compatibility{Compatible: true, MayLoseData: true}
	incompatible = Compatibility{}
)

type pair struct{ from, to Type }

// conversions lists every non-identity pair that is allowed. Pairs that do
// not appear here are incompatible.
var conversions = map[pair]Compatibility{
	// text
	{SingleLineText, MultipleLinesText}: safe,
	{SingleLineText, Email}:             lossy,
	{SingleLineText, WholeNumber}:       lossy,
	{SingleLineText, Number}:            lossy,
	{SingleLineText, Currency}:          lossy,
	{SingleLineText, Percentage}:        lossy,
	{SingleLineText, Boolean}:           lossy,
	{SingleLineText, Date}:              lossy,
	{SingleLineText, DateAndTime}:       lossy,
	{MultipleLinesText, SingleLineText}: lossy,
	{MultipleLinesText, Email}:          lossy,
	{MultipleLinesText, WholeNumber}:    lossy,
	{MultipleLinesText, Number}:         lossy,
	{MultipleLinesText, Currency}:       lossy,
	{MultipleLinesText, Percentage}:     lossy,
	{MultipleLinesText, Boolean}:        lossy,
	{MultipleLinesText, Date}:           lossy,
	{MultipleLinesText, DateAndTime}:    lossy,
	{Email, SingleLineText}:             safe,
	{Email, MultipleLinesText}:          safe,

	// numbers
	{WholeNumber, SingleLineText}:    safe,
	{WholeNumber, MultipleLinesText}: safe,
	{WholeNumber, Number}:            safe,
	{WholeNumber, Currency}:          safe,
	{WholeNumber, Percentage}:        lossy,
	{WholeNumber, Boolean}:           lossy,
	{WholeNumber, Lookup}:            lossy,
	{Number, SingleLineText}:         safe,
	{Number, MultipleLinesText}:      safe,
	{Number, WholeNumber}:            lossy,
	{Number, Currency}:               safe,
	{Number, Percentage}:             lossy,
	{Currency, SingleLineText}:       safe,
	{Currency, MultipleLinesText}:    safe,
	{Currency, WholeNumber}:          lossy,
	{Currency, Number}:               safe,
	{Currency, Percentage}:           lossy,
	{Percentage, SingleLineText}:     safe,
	{Percentage, MultipleLinesText}:  safe,
	{Percentage, WholeNumber}:        lossy,
	{Percentage, Number}:             safe,
	{Percentage, Currency}:           safe,

	// boolean
	{Boolean, SingleLineText}:    safe,
	{Boolean, MultipleLinesText}: safe,
	{Boolean, WholeNumber}:       safe,

	// dates
	{Date, SingleLineText}:           safe,
	{Date, MultipleLinesText}:        safe,
	{Date, DateAndTime}:              safe,
	{DateAndTime, SingleLineText}:    safe,
	{DateAndTime, MultipleLinesText}: safe,
	{DateAndTime, Date}:              lossy,

	// lookup
	{Lookup, SingleLineText}:    safe,
	{Lookup, MultipleLinesText}: safe,
	{Lookup, WholeNumber}:       safe,
}

// ConversionDescriptor returns the compatibility of converting from -> to.
func ConversionDescriptor(from, to Type) Compatibility {
	if !from.Valid() || !to.Valid() {
		c := incompatible
		c.Reason = fmt.Sprintf("unknown column type in conversion %s -> %s", from, to)
		return c
	}
	if from == to {
		return safe
	}
	if from == Formula || to == Formula {
		c := incompatible
		c.Reason = "formula columns cannot be converted to or from other types"
		return c
	}
	if c, ok := conversions[pair{from, to}]; ok {
		return c
	}
	c := incompatible
	c.Reason = fmt.Sprintf("cannot convert %s to %s", from.Label(), to.Label())
	return c
}

// IndexCompatible reports whether existing indexes survive a retype without a
// rebuild: identical storage, varchar widening to text, or integer to bigint.
func IndexCompatible(from, to Type) bool {
	a, errA := PhysicalTypeFor(from)
	b, errB := PhysicalTypeFor(to)
	if errA != nil || errB != nil {
		return false
	}
	if a == b {
		return true
	}
	switch {
	case a.Kind == StorageVarchar && b.Kind == StorageText:
		return true
	case a.Kind == StorageInteger && b.Kind == StorageBigint:
		return true
	}
	return false
}
