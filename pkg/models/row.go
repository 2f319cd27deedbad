package models

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/cast"

	"github.com/ekaya-inc/ekaya-schema/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-schema/pkg/coltype"
	"github.com/ekaya-inc/ekaya-schema/pkg/formula"
)

// Row is one physical record read through its table schema. Values are keyed
// by column_name exactly as returned by the datasource.
type Row struct {
	schema *TableSchema
	values map[string]any
}

// NewRow binds values to schema.
func NewRow(schema *TableSchema, values map[string]any) *Row {
	return &Row{schema: schema, values: values}
}

// Raw returns the stored value without conversion.
func (r *Row) Raw(column string) (any, bool) {
	v, ok := r.values[column]
	return v, ok
}

// Get returns the value of column typed by its logical type. Formula columns
// are evaluated against the row; evaluation problems come back inline as an
// ERROR: string rather than as an error.
func (r *Row) Get(column string) (coltype.TypedValue, error) {
	col, ok := r.schema.Column(column)
	if !ok {
		return coltype.TypedValue{}, fmt.Errorf("%w: column %s", apperrors.ErrNotFound, column)
	}
	t := col.LogicalType

	if t == coltype.Formula && col.Formula != nil && !col.IsComputed() {
		v := formula.Evaluate(*col.Formula, r.values, r.schema.Fields())
		return coltype.TypedValue{Type: t, Value: v}, nil
	}

	raw, present := r.values[column]
	if !present || raw == nil {
		return coltype.TypedValue{Type: t, Null: true}, nil
	}

	switch x := raw.(type) {
	case time.Time:
		if t == coltype.Date {
			return coltype.TypedValue{Type: t, Value: time.Date(x.Year(), x.Month(), x.Day(), 0, 0, 0, 0, time.UTC)}, nil
		}
		if t == coltype.DateAndTime {
			return coltype.TypedValue{Type: t, Value: x}, nil
		}
		raw = x.Format("2006-01-02 15:04:05")
	case bool:
		if t == coltype.Boolean {
			return coltype.TypedValue{Type: t, Value: x}, nil
		}
	case int, int32, int64:
		if t == coltype.WholeNumber || t == coltype.Lookup {
			return coltype.TypedValue{Type: t, Value: cast.ToInt64(x)}, nil
		}
		if t.IsNumeric() {
			return coltype.TypedValue{Type: t, Value: cast.ToFloat64(x)}, nil
		}
	case float64:
		if t == coltype.WholeNumber && x == math.Trunc(x) {
			return coltype.TypedValue{Type: t, Value: int64(x)}, nil
		}
		if t.IsNumeric() && t != coltype.WholeNumber {
			return coltype.TypedValue{Type: t, Value: coltype.RoundMoney(x)}, nil
		}
	}

	s, err := cast.ToStringE(raw)
	if err != nil {
		return coltype.TypedValue{}, fmt.Errorf("failed to read column %s: %w", column, err)
	}
	return coltype.Convert(s, t)
}

// Values returns every column typed, keyed by column_name. Columns whose
// stored value does not convert are returned as their raw string.
func (r *Row) Values() map[string]coltype.TypedValue {
	out := make(map[string]coltype.TypedValue, len(r.schema.Columns))
	for _, c := range r.schema.Columns {
		v, err := r.Get(c.ColumnName)
		if err != nil {
			v = coltype.TypedValue{Type: c.LogicalType, Value: cast.ToString(r.values[c.ColumnName])}
		}
		out[c.ColumnName] = v
	}
	return out
}
