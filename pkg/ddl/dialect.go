// Package ddl renders the DDL and DML the engine issues against physical
// tables. Every identifier is validated before it is quoted, and every value
// that can be bound as a parameter is bound; values that must appear inside
// DDL (column defaults) are converted, screened and quoted as literals.
package ddl

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-schema/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-schema/pkg/coltype"
	"github.com/ekaya-inc/ekaya-schema/pkg/formula"
	sqlutil "github.com/ekaya-inc/ekaya-schema/pkg/sql"
)

// Dialect renders engine statements for one database family. Identifiers
// handed to a Dialect have already been validated; column arguments named
// col are already quoted.
type Dialect interface {
	formula.SQLDialect

	// Name returns the datasource type this dialect serves ("postgres", "sqlserver").
	Name() string

	// Placeholder returns the bind placeholder for the n-th (1-based) parameter.
	Placeholder(n int) string

	// MaxParameters is the largest number of bind parameters one statement may carry.
	MaxParameters() int

	SQLType(st coltype.StorageType) string
	BooleanLiteral(b bool) string

	// IdentityColumn returns the full definition of the surrogate primary key.
	IdentityColumn(name sqlutil.Ident) string

	// SupportsTransactionalDDL reports whether ALTER/CREATE/DROP can be rolled
	// back as part of a transaction.
	SupportsTransactionalDDL() bool

	// ExplicitIndexMaintenance reports whether indexes and default constraints
	// on a column must be dropped before the column is dropped or rewritten.
	ExplicitIndexMaintenance() bool

	// Limit bounds a SELECT statement to n rows.
	Limit(query string, n int) string

	AddColumn(table sqlutil.Ident, definition string) string
	DropColumn(table, col sqlutil.Ident) string
	RenameColumn(table, from, to sqlutil.Ident) string
	RenameIndex(table sqlutil.Ident, from, to string) string
	AlterNullability(table, col sqlutil.Ident, sqlType string, notNull bool) string

	// InlineDefault returns the default clause used inside a column definition.
	InlineDefault(table, col sqlutil.Ident, literal string) string
	SetDefault(table, col sqlutil.Ident, literal string) []string
	DropDefault(table, col sqlutil.Ident) string
	RenameDefault(table, from, to sqlutil.Ident) []string

	CreateIndex(name string, table, col sqlutil.Ident, unique bool) string
	DropIndex(name string, table sqlutil.Ident) string

	// ComputedColumn returns a stored generated column definition.
	ComputedColumn(col sqlutil.Ident, sqlType, expr string) string

	// ConvertiblePredicate returns a boolean expression that is true when the
	// value of col (of logical type from) converts cleanly to logical type to.
	// coltype.ParsedConversion pairs are decided per value in Go and always
	// yield a false predicate here.
	ConvertiblePredicate(col string, from, to coltype.Type) string

	// ConvertExpr returns an expression converting col from one logical type
	// to the storage type of another.
	ConvertExpr(col string, from, to coltype.Type) string

	// RetypeColumn returns the statements that change the storage type of col.
	// With clearInvalid, values failing ConvertiblePredicate become NULL.
	RetypeColumn(table, col sqlutil.Ident, from, to coltype.Type, clearInvalid bool) []string
}

var dialects = map[string]Dialect{
	"postgres":  Postgres{},
	"sqlserver": SQLServer{},
}

// ForType returns the dialect for a datasource type.
func ForType(dsType string) (Dialect, error) {
	if dsType == "mssql" {
		dsType = "sqlserver"
	}
	d, ok := dialects[dsType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedDialect, dsType)
	}
	return d, nil
}

// decimalLimit is the smallest magnitude that overflows a decimal(p,s) column.
func decimalLimit(st coltype.StorageType) string {
	return "1" + strings.Repeat("0", st.Precision-st.Scale)
}

// integerLimit is the largest magnitude stored by integer or bigint.
func integerLimit(to coltype.Type) string {
	if st, _ := coltype.PhysicalTypeFor(to); st.Kind == coltype.StorageBigint {
		return "9223372036854775807"
	}
	return "2147483647"
}

func quotedList(d Dialect, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = d.QuoteLiteral(v)
	}
	return strings.Join(quoted, ", ")
}
