package coltype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversionDescriptor_IdentityAlwaysSafe(t *testing.T) {
	for _, typ := range All() {
		c := ConversionDescriptor(typ, typ)
		assert.True(t, c.Compatible, typ)
		assert.True(t, c.Safe, typ)
		assert.False(t, c.MayLoseData, typ)
	}
}

func TestConversionDescriptor_Matrix(t *testing.T) {
	tests := []struct {
		from, to   Type
		compatible bool
		lossy      bool
	}{
		{SingleLineText, WholeNumber, true, true},
		{SingleLineText, MultipleLinesText, true, false},
		{MultipleLinesText, SingleLineText, true, true},
		{WholeNumber, Number, true, false},
		{Number, WholeNumber, true, true},
		{Currency, Number, true, false},
		{Date, DateAndTime, true, false},
		{DateAndTime, Date, true, true},
		{Boolean, WholeNumber, true, false},
		{Boolean, Date, false, false},
		{Email, WholeNumber, false, false},
		{Lookup, WholeNumber, true, false},
		{Lookup, Date, false, false},
	}
	for _, tt := range tests {
		c := ConversionDescriptor(tt.from, tt.to)
		assert.Equal(t, tt.compatible, c.Compatible, "%s -> %s", tt.from, tt.to)
		if tt.compatible {
			assert.Equal(t, tt.lossy, c.MayLoseData, "%s -> %s", tt.from, tt.to)
			assert.Equal(t, !tt.lossy, c.Safe, "%s -> %s", tt.from, tt.to)
		} else {
			assert.NotEmpty(t, c.Reason)
		}
	}
}

func TestConversionDescriptor_FormulaIncompatible(t *testing.T) {
	for _, typ := range All() {
		if typ == Formula {
			continue
		}
		assert.False(t, ConversionDescriptor(typ, Formula).Compatible, typ)
		assert.False(t, ConversionDescriptor(Formula, typ).Compatible, typ)
	}
}

func TestConversionDescriptor_EverythingToMultipleLinesText(t *testing.T) {
	for _, typ := range All() {
		if typ == Formula {
			continue
		}
		c := ConversionDescriptor(typ, MultipleLinesText)
		assert.True(t, c.Compatible, typ)
		assert.True(t, c.Safe, typ)
	}
}

func TestIndexCompatible(t *testing.T) {
	assert.True(t, IndexCompatible(Email, SingleLineText))
	assert.True(t, IndexCompatible(SingleLineText, MultipleLinesText))
	assert.True(t, IndexCompatible(WholeNumber, Lookup))
	assert.True(t, IndexCompatible(Number, Currency))
	assert.False(t, IndexCompatible(SingleLineText, WholeNumber))
	assert.False(t, IndexCompatible(Number, Percentage))
	assert.False(t, IndexCompatible(MultipleLinesText, SingleLineText))
}
