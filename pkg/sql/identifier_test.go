package sql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-schema/pkg/apperrors"
)

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"orders", "_tmp", "line_items_2", "a"}
	for _, name := range valid {
		assert.NoError(t, ValidateIdentifier(name), name)
	}

	invalid := []string{"", "Orders", "2fast", "order-items", "drop table", `x"; --`, strings.Repeat("a", 64)}
	for _, name := range invalid {
		err := ValidateIdentifier(name)
		assert.ErrorIs(t, err, apperrors.ErrInvalidIdentifier, name)
	}
}

func TestNewIdent(t *testing.T) {
	id, err := NewIdent("customers")
	require.NoError(t, err)
	assert.Equal(t, "customers", id.String())

	_, err = NewIdent("Customers")
	assert.Error(t, err)

	assert.Panics(t, func() { MustIdent("bad name") })
}

func TestSanitizeIdentifier(t *testing.T) {
	tests := map[string]string{
		"Unit Price": "unit_price",
		"Qty":        "qty",
		"% Off":      "__off",
		"2nd Line":   "_2nd_line",
		"":           "_",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeIdentifier(in), in)
	}
}

func TestColumnNameFromLabel(t *testing.T) {
	tests := map[string]string{
		"  First Name ":  "first_name",
		"E-mail Address": "e_mail_address",
		"% Complete":     "complete",
		"2024 Revenue":   "_2024_revenue",
		"!!!":            "column",
	}
	for in, want := range tests {
		got := ColumnNameFromLabel(in)
		assert.Equal(t, want, got, in)
		assert.True(t, IsValidIdentifier(got), got)
	}

	long := ColumnNameFromLabel(strings.Repeat("abc ", 40))
	assert.LessOrEqual(t, len(long), MaxIdentifierLength)
	assert.True(t, IsValidIdentifier(long))
}

func TestTruncateIdentifier(t *testing.T) {
	assert.Equal(t, "idx_t_c", TruncateIdentifier("idx_t_c"))
	assert.Len(t, TruncateIdentifier(strings.Repeat("x", 100)), MaxIdentifierLength)
}
