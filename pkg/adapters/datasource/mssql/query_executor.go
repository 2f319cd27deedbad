package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-schema/pkg/adapters/datasource"
)

// conn is satisfied by both *sql.DB and *sql.Tx.
type conn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Query runs a statement that returns rows. Placeholders are @p1, @p2, ...
func (a *Adapter) Query(ctx context.Context, query string, args ...any) (*datasource.QueryResult, error) {
	return runQuery(ctx, a.db, query, args)
}

// Execute runs a DDL/DML statement and reports affected rows.
func (a *Adapter) Execute(ctx context.Context, statement string, args ...any) (*datasource.ExecuteResult, error) {
	return runExecute(ctx, a.db, statement, args)
}

// Begin starts a transaction. ALTER TABLE and sp_rename inside an explicit
// transaction roll back with it.
func (a *Adapter) Begin(ctx context.Context) (datasource.Transaction, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &transaction{tx: tx}, nil
}

type transaction struct {
	tx *sql.Tx
}

func (t *transaction) Query(ctx context.Context, query string, args ...any) (*datasource.QueryResult, error) {
	return runQuery(ctx, t.tx, query, args)
}

func (t *transaction) Execute(ctx context.Context, statement string, args ...any) (*datasource.ExecuteResult, error) {
	return runExecute(ctx, t.tx, statement, args)
}

func (t *transaction) Commit(ctx context.Context) error {
	return t.tx.Commit()
}

func (t *transaction) Rollback(ctx context.Context) error {
	return t.tx.Rollback()
}

func runQuery(ctx context.Context, c conn, query string, args []any) (*datasource.QueryResult, error) {
	rows, err := c.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columnNames))
		valuePtrs := make([]any, len(columnNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rowMap := make(map[string]any, len(columnNames))
		for i, col := range columnNames {
			rowMap[col] = normalizeValue(values[i], columnTypes[i].DatabaseTypeName())
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &datasource.QueryResult{
		Columns:  columnNames,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

func runExecute(ctx context.Context, c conn, statement string, args []any) (*datasource.ExecuteResult, error) {
	res, err := c.ExecContext(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute statement: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	// DDL reports -1.
	if rowsAffected < 0 {
		rowsAffected = 0
	}
	return &datasource.ExecuteResult{RowsAffected: rowsAffected}, nil
}

// normalizeValue converts driver byte slices into strings or numbers based on
// the column's SQL Server type.
func normalizeValue(val any, dbType string) any {
	b, ok := val.([]byte)
	if !ok {
		return val
	}
	switch {
	case isNumericType(dbType):
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return f
		}
	case isStringType(dbType):
		return string(b)
	}
	return val
}

// isNumericType returns true if the type is a numeric type in SQL Server.
func isNumericType(sqlType string) bool {
	switch strings.ToUpper(sqlType) {
	case "TINYINT", "SMALLINT", "INT", "BIGINT",
		"DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY",
		"FLOAT", "REAL":
		return true
	}
	return false
}

// isStringType returns true if the type is a string type in SQL Server.
func isStringType(sqlType string) bool {
	switch strings.ToUpper(sqlType) {
	case "CHAR", "NCHAR", "VARCHAR", "NVARCHAR", "TEXT", "NTEXT":
		return true
	}
	return false
}
