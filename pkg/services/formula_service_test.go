package services

import (
	"context"
	"testing"

	"github.com/spf13/cast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-schema/pkg/adapters/datasource"
)

func firstRecordResult(row map[string]any) func(string, []any) (*datasource.QueryResult, error) {
	return func(query string, _ []any) (*datasource.QueryResult, error) {
		if row == nil {
			return &datasource.QueryResult{}, nil
		}
		return &datasource.QueryResult{Rows: []map[string]any{row}, RowCount: 1}, nil
	}
}

func TestFormulaService_TestFormula(t *testing.T) {
	env := newTestEnv(t)
	env.ds.queryFn = firstRecordResult(map[string]any{"id": int64(7), "name": "Widget", "price": 2.5, "qty": int64(4)})
	ctx := context.Background()

	res, err := env.formulas.TestFormula(ctx, env.table.Table.ID, "={Price} * {Qty}")
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.InDelta(t, 10.0, cast.ToFloat64(res.Result), 1e-9)
	assert.Equal(t, int64(7), res.RecordID)

	res, err = env.formulas.TestFormula(ctx, env.table.Table.ID, "={Price} / 0")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "ERROR: division by zero", res.Error)
}

func TestFormulaService_TestFormulaWithoutRecords(t *testing.T) {
	env := newTestEnv(t)
	env.ds.queryFn = firstRecordResult(nil)

	res, err := env.formulas.TestFormula(context.Background(), env.table.Table.ID, "={Price} * 2")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "No records found to test formula", res.Error)
}

func TestFormulaService_InvalidFormulaSkipsQuery(t *testing.T) {
	env := newTestEnv(t)
	queried := false
	env.ds.queryFn = func(string, []any) (*datasource.QueryResult, error) {
		queried = true
		return &datasource.QueryResult{}, nil
	}

	res, err := env.formulas.TestFormula(context.Background(), env.table.Table.ID, "={Price} *")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Formula cannot end with operator", res.Error)
	assert.False(t, queried)

	v, err := env.formulas.ValidateFormula(context.Background(), env.table.Table.ID, "={Weight}")
	require.NoError(t, err)
	assert.Contains(t, v.Errors, "Formula references unknown field 'Weight'")
}
