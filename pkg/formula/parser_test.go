package formula

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Precedence(t *testing.T) {
	node, err := Parse("=1 + 2 * 3")
	require.NoError(t, err)

	add, ok := node.(*Binary)
	require.True(t, ok)
	assert.Equal(t, PLUS, add.Op)
	mul, ok := add.R.(*Binary)
	require.True(t, ok)
	assert.Equal(t, STAR, mul.Op)
}

func TestParse_ComparisonBindsLoosest(t *testing.T) {
	node, err := Parse(`a & "x" = b + 1`)
	require.NoError(t, err)

	cmp, ok := node.(*Binary)
	require.True(t, ok)
	assert.Equal(t, EQ, cmp.Op)
	assert.IsType(t, &Binary{}, cmp.L)
	assert.Equal(t, AMP, cmp.L.(*Binary).Op)
}

func TestParse_CallNamesAreCaseInsensitive(t *testing.T) {
	node, err := Parse("=round(1.234, 2)")
	require.NoError(t, err)
	call, ok := node.(*Call)
	require.True(t, ok)
	assert.Equal(t, "ROUND", call.Name)
	assert.Len(t, call.Args, 2)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		expr string
		msg  string
	}{
		{"", "empty expression"},
		{"=", "empty expression"},
		{"1 +", "unexpected end of expression"},
		{"(1 + 2", "missing closing parenthesis"},
		{"1 2", `unexpected "2"`},
		{"FOO(1)", "unknown function FOO"},
		{"ABS(1, 2)", "ABS takes 1 argument(s), got 2"},
		{"ROUND()", "ROUND takes 1 to 2 arguments, got 0"},
		{"SUM()", "SUM takes at least 1 argument(s), got 0"},
		{"[]", "empty column reference"},
		{"1 # 2", `unexpected "#"`},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := Parse(tt.expr)
			require.Error(t, err)
			var syn *SyntaxError
			assert.True(t, errors.As(err, &syn))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
