package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cast"

	"github.com/ekaya-inc/ekaya-schema/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-schema/pkg/coltype"
	"github.com/ekaya-inc/ekaya-schema/pkg/ddl"
)

// conversionPlan is the outcome of converting every stored value of a text
// column with the Type Catalog, grouped so that it can be written back with
// a few parameterized UPDATEs.
type conversionPlan struct {
	// rewrites maps a canonical literal to the rows whose stored text
	// differs from it.
	rewrites map[string][]int64
	// invalid rows hold values the target type rejects.
	invalid []int64
	// blank rows hold whitespace-only text, which converts to NULL.
	blank []int64
}

// planConversion reads column and converts each value to type to.
func planConversion(ctx context.Context, r datasource.Runner, b *ddl.Builder, table, column string, to coltype.Type) (*conversionPlan, error) {
	stmt, err := b.ColumnValues(table, column)
	if err != nil {
		return nil, err
	}
	res, err := r.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read values of %s: %w", column, err)
	}

	plan := &conversionPlan{rewrites: make(map[string][]int64)}
	for _, row := range res.Rows {
		raw, ok := row[column]
		if !ok || raw == nil {
			continue
		}
		id, err := cast.ToInt64E(row[ddl.IDColumn])
		if err != nil {
			return nil, fmt.Errorf("failed to read row id: %w", err)
		}
		text := cast.ToString(raw)

		v, err := coltype.ConvertForStorage(text, to)
		switch {
		case err != nil:
			plan.invalid = append(plan.invalid, id)
		case v.Null:
			if text != "" {
				plan.blank = append(plan.blank, id)
			}
		default:
			if lit := coltype.StorageLiteral(v); lit != text {
				plan.rewrites[lit] = append(plan.rewrites[lit], id)
			}
		}
	}
	return plan, nil
}

// statements rewrites the column in place: canonical literals for
// convertible values, NULL for blank and invalid ones.
func (p *conversionPlan) statements(b *ddl.Builder, table, column string) ([]ddl.Statement, error) {
	var out []ddl.Statement
	nulls := append(append([]int64(nil), p.invalid...), p.blank...)
	if len(nulls) > 0 {
		stmts, err := b.SetValueByIDs(table, column, nil, nulls)
		if err != nil {
			return nil, err
		}
		out = append(out, stmts...)
	}

	literals := make([]string, 0, len(p.rewrites))
	for lit := range p.rewrites {
		literals = append(literals, lit)
	}
	slices.SortFunc(literals, strings.Compare)
	for _, lit := range literals {
		stmts, err := b.SetValueByIDs(table, column, &lit, p.rewrites[lit])
		if err != nil {
			return nil, err
		}
		out = append(out, stmts...)
	}
	return out, nil
}
