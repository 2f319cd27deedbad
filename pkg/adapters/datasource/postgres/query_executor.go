package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ekaya-inc/ekaya-schema/pkg/adapters/datasource"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Query runs a statement that returns rows.
func (a *Adapter) Query(ctx context.Context, query string, args ...any) (*datasource.QueryResult, error) {
	return runQuery(ctx, a.pool, query, args)
}

// Execute runs any SQL statement (DDL/DML) and reports affected rows.
func (a *Adapter) Execute(ctx context.Context, statement string, args ...any) (*datasource.ExecuteResult, error) {
	return runExecute(ctx, a.pool, statement, args)
}

// Begin starts a transaction. PostgreSQL DDL is transactional, so a failed
// schema change rolls back completely.
func (a *Adapter) Begin(ctx context.Context) (datasource.Transaction, error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &transaction{tx: tx}, nil
}

type transaction struct {
	tx pgx.Tx
}

func (t *transaction) Query(ctx context.Context, query string, args ...any) (*datasource.QueryResult, error) {
	return runQuery(ctx, t.tx, query, args)
}

func (t *transaction) Execute(ctx context.Context, statement string, args ...any) (*datasource.ExecuteResult, error) {
	return runExecute(ctx, t.tx, statement, args)
}

func (t *transaction) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *transaction) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

func runQuery(ctx context.Context, q querier, query string, args []any) (*datasource.QueryResult, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = fd.Name
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &datasource.QueryResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

func runExecute(ctx context.Context, q querier, statement string, args []any) (*datasource.ExecuteResult, error) {
	rows, err := q.Query(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute statement: %w", err)
	}

	// pgx defers execution until rows are consumed; drain them so errors and
	// the CommandTag are populated.
	for rows.Next() {
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to execute statement: %w", err)
	}

	return &datasource.ExecuteResult{RowsAffected: rows.CommandTag().RowsAffected()}, nil
}

// normalizeValue converts pgx-specific value types into plain Go values.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	}
	return v
}
