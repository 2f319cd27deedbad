package datasource

import (
	"context"

	"github.com/ekaya-inc/ekaya-schema/pkg/ddl"
)

// Runner executes statements against a connection or inside a transaction.
// Placeholders follow the dialect returned by QueryExecutor.Dialect.
type Runner interface {
	// Query runs a statement that returns rows.
	Query(ctx context.Context, query string, args ...any) (*QueryResult, error)

	// Execute runs a DDL/DML statement and reports the affected row count.
	// DDL statements report zero.
	Execute(ctx context.Context, statement string, args ...any) (*ExecuteResult, error)
}

// Transaction is a Runner bound to one database transaction.
type Transaction interface {
	Runner
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// QueryExecutor executes SQL against the physical datasource.
// Each implementation owns its connection and must be closed when done.
type QueryExecutor interface {
	Runner

	// Begin starts a transaction. Callers must Commit or Rollback it.
	Begin(ctx context.Context) (Transaction, error)

	// Dialect returns the SQL dialect statements must be rendered in.
	Dialect() ddl.Dialect

	// Close releases any resources held by the executor.
	Close() error
}

// ConnectionTester tests database connectivity.
type ConnectionTester interface {
	// TestConnection verifies the database is reachable with valid credentials
	// and that the configured database is the one connected to.
	TestConnection(ctx context.Context) error

	Close() error
}

// SchemaInspector reads the physical catalog of the datasource. It is used
// for pre-flight checks that metadata alone cannot answer.
type SchemaInspector interface {
	// TableExists reports whether a table with this name exists in the
	// datasource's working schema.
	TableExists(ctx context.Context, table string) (bool, error)

	// Columns returns the physical columns of table in ordinal order.
	Columns(ctx context.Context, table string) ([]Column, error)

	// IndexesOnColumn returns every index that includes column.
	IndexesOnColumn(ctx context.Context, table, column string) ([]Index, error)

	// ForeignKeysReferencing returns foreign keys in other tables that point
	// at table.column.
	ForeignKeysReferencing(ctx context.Context, table, column string) ([]ForeignKey, error)
}

// Datasource is everything the engine needs from a physical database.
type Datasource interface {
	ConnectionTester
	QueryExecutor
	SchemaInspector
}

// Column represents a physical database column.
type Column struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	IsNullable bool   `json:"is_nullable"`
	IsPrimary  bool   `json:"is_primary"`
}

// Index represents a physical index.
type Index struct {
	Name      string `json:"name"`
	IsUnique  bool   `json:"is_unique"`
	IsPrimary bool   `json:"is_primary"`
}

// ForeignKey is a constraint in Table.Column referencing ReferencedTable.ReferencedColumn.
type ForeignKey struct {
	Name             string `json:"name"`
	Table            string `json:"table"`
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

// QueryResult contains the rows returned by a query.
type QueryResult struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// ExecuteResult holds the outcome of a DDL/DML statement.
type ExecuteResult struct {
	RowsAffected int64 `json:"rows_affected"`
}
