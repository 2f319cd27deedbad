package ddl

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-schema/pkg/coltype"
	"github.com/ekaya-inc/ekaya-schema/pkg/formula"
	sqlutil "github.com/ekaya-inc/ekaya-schema/pkg/sql"
)

// Engine-managed columns present on every physical table.
const (
	IDColumn        = "id"
	CreatedAtColumn = "created_at"
	UpdatedAtColumn = "updated_at"
)

// Result column names of DistinctValues.
const (
	ChoiceValueColumn = "choice_value"
	ChoiceCountColumn = "row_count"
)

// Statement is one SQL statement with its bind arguments.
type Statement struct {
	SQL  string
	Args []any
}

// ColumnDef is the physical shape of a user column.
type ColumnDef struct {
	Name     string
	Type     coltype.Type
	Required bool
	Unique   bool
	// Default is the raw default value; empty means no default.
	Default string
	// Computed is a [column] formula for a stored generated column.
	Computed string
}

// Indexed reports whether the engine maintains an index on the column.
func (c ColumnDef) Indexed() bool {
	return c.Unique || c.Type == coltype.Lookup
}

// IndexName returns the plain index name for table.column.
func IndexName(table, column string) string {
	return sqlutil.TruncateIdentifier("idx_" + table + "_" + column)
}

// UniqueIndexName returns the unique index name for table.column.
func UniqueIndexName(table, column string) string {
	return sqlutil.TruncateIdentifier("uq_" + table + "_" + column)
}

// DefaultConstraintName names default constraints on dialects where they are
// schema objects.
func DefaultConstraintName(table, column string) string {
	return sqlutil.TruncateIdentifier("df_" + table + "_" + column)
}

// Builder produces validated, dialect-specific statements.
type Builder struct {
	d Dialect
}

func NewBuilder(d Dialect) *Builder {
	return &Builder{d: d}
}

func (b *Builder) Dialect() Dialect {
	return b.d
}

func (b *Builder) quote(id sqlutil.Ident) string {
	return b.d.QuoteIdentifier(id.String())
}

func (b *Builder) stmt(query string, args ...any) (Statement, error) {
	normalized, err := sqlutil.NormalizeStatement(query)
	if err != nil {
		return Statement{}, fmt.Errorf("failed to build statement: %w", err)
	}
	return Statement{SQL: normalized, Args: args}, nil
}

func (b *Builder) stmts(queries ...string) ([]Statement, error) {
	out := make([]Statement, 0, len(queries))
	for _, q := range queries {
		s, err := b.stmt(q)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func idents(names ...string) ([]sqlutil.Ident, error) {
	out := make([]sqlutil.Ident, len(names))
	for i, n := range names {
		id, err := sqlutil.NewIdent(n)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

// Literal renders raw as a SQL literal for a column of type t. The value is
// converted first, and text is screened for injection patterns before quoting.
func (b *Builder) Literal(t coltype.Type, raw string) (string, error) {
	v, err := coltype.Convert(raw, t)
	if err != nil {
		return "", err
	}
	if v.Null {
		return "NULL", nil
	}
	switch x := v.Value.(type) {
	case string:
		if err := sqlutil.CheckLiteral("default_value", x); err != nil {
			return "", err
		}
		return b.d.QuoteLiteral(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return b.d.BooleanLiteral(x), nil
	case time.Time:
		if t == coltype.Date {
			return b.d.QuoteLiteral(x.Format("2006-01-02")), nil
		}
		return b.d.QuoteLiteral(x.Format("2006-01-02 15:04:05")), nil
	}
	return "", fmt.Errorf("unsupported default value %v for %s", v.Value, t)
}

func (b *Builder) sqlType(t coltype.Type) (string, error) {
	st, err := coltype.PhysicalTypeFor(t)
	if err != nil {
		return "", err
	}
	return b.d.SQLType(st), nil
}

// ComputedExpr translates a [column] formula into a SQL expression. Only
// names in columns may be referenced.
func (b *Builder) ComputedExpr(expr string, columns []string) (string, error) {
	allowed := make(map[string]bool, len(columns))
	for _, c := range columns {
		allowed[c] = true
	}
	node, err := formula.ParseComputed(expr, allowed)
	if err != nil {
		return "", err
	}
	for _, ref := range formula.ColumnRefs(node) {
		if err := sqlutil.ValidateIdentifier(ref); err != nil {
			return "", err
		}
	}
	return formula.GenerateSQL(node, b.d)
}

func (b *Builder) columnDefinition(table sqlutil.Ident, col ColumnDef, columns []string) (string, error) {
	name, err := sqlutil.NewIdent(col.Name)
	if err != nil {
		return "", err
	}
	sqlType, err := b.sqlType(col.Type)
	if err != nil {
		return "", err
	}
	if col.Computed != "" {
		expr, err := b.ComputedExpr(col.Computed, columns)
		if err != nil {
			return "", fmt.Errorf("invalid formula for %s: %w", col.Name, err)
		}
		return b.d.ComputedColumn(name, sqlType, expr), nil
	}

	def := b.quote(name) + " " + sqlType
	if col.Required {
		def += " NOT NULL"
	}
	if col.Default != "" {
		lit, err := b.Literal(col.Type, col.Default)
		if err != nil {
			return "", fmt.Errorf("invalid default for %s: %w", col.Name, err)
		}
		def += " " + b.d.InlineDefault(table, name, lit)
	}
	return def, nil
}

func (b *Builder) indexStatements(table, col sqlutil.Ident, def ColumnDef) []string {
	var out []string
	if def.Unique {
		out = append(out, b.d.CreateIndex(UniqueIndexName(table.String(), col.String()), table, col, true))
	}
	if def.Type == coltype.Lookup {
		out = append(out, b.d.CreateIndex(IndexName(table.String(), col.String()), table, col, false))
	}
	return out
}

func (b *Builder) dropIndexStatements(table, col sqlutil.Ident, def ColumnDef) []string {
	var out []string
	if def.Unique {
		out = append(out, b.d.DropIndex(UniqueIndexName(table.String(), col.String()), table))
	}
	if def.Type == coltype.Lookup {
		out = append(out, b.d.DropIndex(IndexName(table.String(), col.String()), table))
	}
	return out
}

// CreateTable returns the CREATE TABLE statement followed by its indexes.
// The surrogate id and the created_at/updated_at timestamps are added here.
func (b *Builder) CreateTable(table string, cols []ColumnDef) ([]Statement, error) {
	t, err := sqlutil.NewIdent(table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s needs at least one column", table)
	}

	var plain []string
	seen := map[string]bool{}
	for _, c := range cols {
		if sqlutil.ReservedColumnNames[c.Name] {
			return nil, fmt.Errorf("%w: %s is managed by the engine", sqlutil.ErrReservedColumn, c.Name)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate column %s", c.Name)
		}
		seen[c.Name] = true
		if c.Computed == "" {
			plain = append(plain, c.Name)
		}
	}

	ts, _ := b.sqlType(coltype.DateAndTime)
	defs := []string{b.d.IdentityColumn(sqlutil.MustIdent(IDColumn))}
	var indexes []string
	for _, c := range cols {
		def, err := b.columnDefinition(t, c, plain)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
		indexes = append(indexes, b.indexStatements(t, sqlutil.Ident(c.Name), c)...)
	}
	for _, name := range []string{CreatedAtColumn, UpdatedAtColumn} {
		defs = append(defs, fmt.Sprintf("%s %s NOT NULL DEFAULT CURRENT_TIMESTAMP", b.d.QuoteIdentifier(name), ts))
	}

	create := fmt.Sprintf("CREATE TABLE %s (%s)", b.quote(t), strings.Join(defs, ", "))
	return b.stmts(append([]string{create}, indexes...)...)
}

// DropTable drops the table if it exists.
func (b *Builder) DropTable(table string) (Statement, error) {
	t, err := sqlutil.NewIdent(table)
	if err != nil {
		return Statement{}, err
	}
	return b.stmt("DROP TABLE IF EXISTS " + b.quote(t))
}

// AddColumn adds a plain column and its indexes.
func (b *Builder) AddColumn(table string, col ColumnDef) ([]Statement, error) {
	if col.Computed != "" {
		return nil, fmt.Errorf("column %s is computed; use AddComputedColumn", col.Name)
	}
	ids, err := idents(table, col.Name)
	if err != nil {
		return nil, err
	}
	def, err := b.columnDefinition(ids[0], col, nil)
	if err != nil {
		return nil, err
	}
	return b.stmts(append([]string{b.d.AddColumn(ids[0], def)}, b.indexStatements(ids[0], ids[1], col)...)...)
}

// AddComputedColumn adds a stored generated column whose formula may
// reference the given columns.
func (b *Builder) AddComputedColumn(table string, col ColumnDef, columns []string) ([]Statement, error) {
	if col.Computed == "" {
		return nil, fmt.Errorf("column %s has no formula", col.Name)
	}
	t, err := sqlutil.NewIdent(table)
	if err != nil {
		return nil, err
	}
	def, err := b.columnDefinition(t, col, columns)
	if err != nil {
		return nil, err
	}
	return b.stmts(b.d.AddColumn(t, def))
}

// DropColumn drops a column, removing engine-managed indexes and default
// constraints first where the dialect requires it.
func (b *Builder) DropColumn(table string, col ColumnDef) ([]Statement, error) {
	ids, err := idents(table, col.Name)
	if err != nil {
		return nil, err
	}
	var queries []string
	if b.d.ExplicitIndexMaintenance() {
		queries = append(queries, b.dropIndexStatements(ids[0], ids[1], col)...)
		if col.Default != "" {
			queries = append(queries, b.d.DropDefault(ids[0], ids[1]))
		}
	}
	queries = append(queries, b.d.DropColumn(ids[0], ids[1]))
	return b.stmts(queries...)
}

// RenameColumn renames a column together with its engine-managed index and
// default constraint names.
func (b *Builder) RenameColumn(table string, col ColumnDef, newName string) ([]Statement, error) {
	ids, err := idents(table, col.Name, newName)
	if err != nil {
		return nil, err
	}
	t, from, to := ids[0], ids[1], ids[2]
	queries := []string{b.d.RenameColumn(t, from, to)}
	if col.Unique {
		queries = append(queries, b.d.RenameIndex(t, UniqueIndexName(table, col.Name), UniqueIndexName(table, newName)))
	}
	if col.Type == coltype.Lookup {
		queries = append(queries, b.d.RenameIndex(t, IndexName(table, col.Name), IndexName(table, newName)))
	}
	if col.Default != "" {
		queries = append(queries, b.d.RenameDefault(t, from, to)...)
	}
	return b.stmts(queries...)
}

// ChangeType converts col from its current logical type to col.Type. With
// clearInvalid, values that cannot be converted become NULL; otherwise a
// direct cast is applied and any bad value fails the statement.
//
// For coltype.ParsedConversion pairs the caller must first rewrite the
// column to canonical literals (see ColumnValues and SetValueByIDs); the
// retype is then a direct cast.
func (b *Builder) ChangeType(table string, col ColumnDef, from coltype.Type, clearInvalid bool) ([]Statement, error) {
	ids, err := idents(table, col.Name)
	if err != nil {
		return nil, err
	}
	t, c := ids[0], ids[1]
	if compat := coltype.ConversionDescriptor(from, col.Type); !compat.Compatible {
		return nil, fmt.Errorf("cannot change %s: %s", col.Name, compat.Reason)
	}
	sqlType, err := b.sqlType(col.Type)
	if err != nil {
		return nil, err
	}

	rebuild := b.d.ExplicitIndexMaintenance()
	old := col
	old.Type = from

	var queries []string
	if rebuild {
		queries = append(queries, b.dropIndexStatements(t, c, old)...)
	}
	if coltype.ParsedConversion(from, col.Type) {
		clearInvalid = false
	}
	queries = append(queries, b.d.RetypeColumn(t, c, from, col.Type, clearInvalid)...)
	if rebuild {
		if col.Required {
			queries = append(queries, b.d.AlterNullability(t, c, sqlType, true))
		}
		queries = append(queries, b.indexStatements(t, c, col)...)
	} else if from == coltype.Lookup && col.Type != coltype.Lookup {
		queries = append(queries, b.d.DropIndex(IndexName(table, col.Name), t))
	} else if col.Type == coltype.Lookup && from != coltype.Lookup {
		queries = append(queries, b.d.CreateIndex(IndexName(table, col.Name), t, c, false))
	}
	if col.Default != "" && coltype.Convertible(col.Default, col.Type) {
		lit, err := b.Literal(col.Type, col.Default)
		if err != nil {
			return nil, err
		}
		queries = append(queries, b.d.SetDefault(t, c, lit)...)
	}
	return b.stmts(queries...)
}

// SetNullability applies col.Required as the column's null constraint.
func (b *Builder) SetNullability(table string, col ColumnDef) ([]Statement, error) {
	ids, err := idents(table, col.Name)
	if err != nil {
		return nil, err
	}
	sqlType, err := b.sqlType(col.Type)
	if err != nil {
		return nil, err
	}
	var queries []string
	// SQL Server refuses ALTER COLUMN on an indexed column.
	if b.d.ExplicitIndexMaintenance() {
		queries = append(queries, b.dropIndexStatements(ids[0], ids[1], col)...)
	}
	queries = append(queries, b.d.AlterNullability(ids[0], ids[1], sqlType, col.Required))
	if b.d.ExplicitIndexMaintenance() {
		queries = append(queries, b.indexStatements(ids[0], ids[1], col)...)
	}
	return b.stmts(queries...)
}

// SetDefault applies col.Default, or drops the default when it is empty.
func (b *Builder) SetDefault(table string, col ColumnDef) ([]Statement, error) {
	ids, err := idents(table, col.Name)
	if err != nil {
		return nil, err
	}
	if col.Default == "" {
		return b.stmts(b.d.DropDefault(ids[0], ids[1]))
	}
	lit, err := b.Literal(col.Type, col.Default)
	if err != nil {
		return nil, err
	}
	return b.stmts(b.d.SetDefault(ids[0], ids[1], lit)...)
}

// CountRows counts every row of table.
func (b *Builder) CountRows(table string) (Statement, error) {
	t, err := sqlutil.NewIdent(table)
	if err != nil {
		return Statement{}, err
	}
	return b.stmt("SELECT COUNT(*) FROM " + b.quote(t))
}

// CountNulls counts rows where column is NULL.
func (b *Builder) CountNulls(table, column string) (Statement, error) {
	ids, err := idents(table, column)
	if err != nil {
		return Statement{}, err
	}
	return b.stmt(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", b.quote(ids[0]), b.quote(ids[1])))
}

// CountInvalid counts non-blank values of column that would not survive a
// conversion from one logical type to another. coltype.ParsedConversion
// pairs are judged in Go and have no SQL count.
func (b *Builder) CountInvalid(table, column string, from, to coltype.Type) (Statement, error) {
	if coltype.ParsedConversion(from, to) {
		return Statement{}, fmt.Errorf("converting %s to %s is checked value by value", from, to)
	}
	ids, err := idents(table, column)
	if err != nil {
		return Statement{}, err
	}
	c := b.quote(ids[1])
	where := fmt.Sprintf("%s IS NOT NULL", c)
	if from.IsText() {
		where += fmt.Sprintf(" AND %s <> ''", c)
	}
	return b.stmt(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s AND NOT (%s)",
		b.quote(ids[0]), where, b.d.ConvertiblePredicate(c, from, to)))
}

// ColumnValues selects the id and value of every row where column is not
// NULL, in id order.
func (b *Builder) ColumnValues(table, column string) (Statement, error) {
	ids, err := idents(table, column)
	if err != nil {
		return Statement{}, err
	}
	id := b.d.QuoteIdentifier(IDColumn)
	c := b.quote(ids[1])
	return b.stmt(fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IS NOT NULL ORDER BY %s", id, c, b.quote(ids[0]), c, id))
}

// SetValueByIDs writes value into column for the rows in rowIDs, or NULL when
// value is nil. Large id sets are split so no statement exceeds the
// dialect's parameter limit.
func (b *Builder) SetValueByIDs(table, column string, value *string, rowIDs []int64) ([]Statement, error) {
	ids, err := idents(table, column)
	if err != nil {
		return nil, err
	}
	t, c := b.quote(ids[0]), b.quote(ids[1])
	id := b.d.QuoteIdentifier(IDColumn)

	var out []Statement
	for len(rowIDs) > 0 {
		args := make([]any, 0, b.d.MaxParameters())
		set := "NULL"
		if value != nil {
			args = append(args, *value)
			set = b.d.Placeholder(1)
		}
		n := min(len(rowIDs), b.d.MaxParameters()-len(args))
		placeholders := make([]string, n)
		for i, rowID := range rowIDs[:n] {
			args = append(args, rowID)
			placeholders[i] = b.d.Placeholder(len(args))
		}
		s, err := b.stmt(fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s IN (%s)", t, c, set, id, strings.Join(placeholders, ", ")), args...)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		rowIDs = rowIDs[n:]
	}
	return out, nil
}

// CountValues counts rows whose column equals any of values.
func (b *Builder) CountValues(table, column string, values []string) (Statement, error) {
	ids, err := idents(table, column)
	if err != nil {
		return Statement{}, err
	}
	if len(values) == 0 {
		return Statement{}, fmt.Errorf("no values to count")
	}
	in, args := b.inList(values, 1)
	return b.stmt(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IN (%s)", b.quote(ids[0]), b.quote(ids[1]), in), args...)
}

func (b *Builder) inList(values []string, start int) (string, []any) {
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = b.d.Placeholder(start + i)
		args[i] = v
	}
	return strings.Join(placeholders, ", "), args
}

// RenameChoice rewrites every exact occurrence of oldValue to newValue.
func (b *Builder) RenameChoice(table, column, oldValue, newValue string) (Statement, error) {
	ids, err := idents(table, column)
	if err != nil {
		return Statement{}, err
	}
	return b.stmt(fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s",
		b.quote(ids[0]), b.quote(ids[1]), b.d.Placeholder(1), b.quote(ids[1]), b.d.Placeholder(2)),
		newValue, oldValue)
}

// DeleteChoice replaces value with replacement, or with NULL when
// replacement is nil.
func (b *Builder) DeleteChoice(table, column, value string, replacement *string) (Statement, error) {
	ids, err := idents(table, column)
	if err != nil {
		return Statement{}, err
	}
	t, c := b.quote(ids[0]), b.quote(ids[1])
	if replacement == nil {
		return b.stmt(fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s = %s", t, c, c, b.d.Placeholder(1)), value)
	}
	return b.stmt(fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s", t, c, b.d.Placeholder(1), c, b.d.Placeholder(2)),
		*replacement, value)
}

// MergeChoices rewrites every occurrence of any source value to target.
func (b *Builder) MergeChoices(table, column string, sources []string, target string) (Statement, error) {
	ids, err := idents(table, column)
	if err != nil {
		return Statement{}, err
	}
	if len(sources) == 0 {
		return Statement{}, fmt.Errorf("no source values to merge")
	}
	in, args := b.inList(sources, 2)
	return b.stmt(fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s IN (%s)",
		b.quote(ids[0]), b.quote(ids[1]), b.d.Placeholder(1), b.quote(ids[1]), in),
		append([]any{target}, args...)...)
}

// Insert builds one multi-row INSERT. Every row must have one value per column.
func (b *Builder) Insert(table string, columns []string, rows [][]any) (Statement, error) {
	t, err := sqlutil.NewIdent(table)
	if err != nil {
		return Statement{}, err
	}
	if len(columns) == 0 || len(rows) == 0 {
		return Statement{}, fmt.Errorf("insert into %s needs columns and rows", table)
	}
	if n := len(columns) * len(rows); n > b.d.MaxParameters() {
		return Statement{}, fmt.Errorf("insert into %s binds %d parameters, limit is %d", table, n, b.d.MaxParameters())
	}
	cols, err := idents(columns...)
	if err != nil {
		return Statement{}, err
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = b.quote(c)
	}

	args := make([]any, 0, len(columns)*len(rows))
	tuples := make([]string, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return Statement{}, fmt.Errorf("row %d has %d values, want %d", i+1, len(row), len(columns))
		}
		ph := make([]string, len(row))
		for j, v := range row {
			args = append(args, v)
			ph[j] = b.d.Placeholder(len(args))
		}
		tuples[i] = "(" + strings.Join(ph, ", ") + ")"
	}
	return b.stmt(fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", b.quote(t), strings.Join(quoted, ", "), strings.Join(tuples, ", ")), args...)
}

// DistinctValues lists the non-NULL values of column with their row counts,
// most frequent first.
func (b *Builder) DistinctValues(table, column string, limit int) (Statement, error) {
	ids, err := idents(table, column)
	if err != nil {
		return Statement{}, err
	}
	c := b.quote(ids[1])
	query := fmt.Sprintf("SELECT %s AS %s, COUNT(*) AS %s FROM %s WHERE %s IS NOT NULL GROUP BY %s ORDER BY COUNT(*) DESC, %s",
		c, ChoiceValueColumn, ChoiceCountColumn, b.quote(ids[0]), c, c, c)
	return b.stmt(b.d.Limit(query, limit))
}

// FirstRecord selects the row with the lowest id.
func (b *Builder) FirstRecord(table string) (Statement, error) {
	t, err := sqlutil.NewIdent(table)
	if err != nil {
		return Statement{}, err
	}
	return b.stmt(b.d.Limit(fmt.Sprintf("SELECT * FROM %s ORDER BY %s", b.quote(t), b.d.QuoteIdentifier(IDColumn)), 1))
}
