package ddl

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-schema/pkg/coltype"
	sqlutil "github.com/ekaya-inc/ekaya-schema/pkg/sql"
)

// SQLServer renders statements for SQL Server 2016+ and Azure SQL.
type SQLServer struct{}

var _ Dialect = SQLServer{}

func (SQLServer) Name() string { return "sqlserver" }

// Placeholder uses the @pN names go-mssqldb binds positional arguments to.
func (SQLServer) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

func (SQLServer) MaxParameters() int { return 2100 }

func (SQLServer) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (SQLServer) QuoteLiteral(s string) string {
	return "N'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (SQLServer) CastText(expr string) string { return "CAST(" + expr + " AS NVARCHAR(MAX))" }

func (SQLServer) Coalesce(expr, fallback string) string {
	return "COALESCE(" + expr + ", " + fallback + ")"
}

// ConcatText uses CONCAT, which requires at least two arguments.
func (SQLServer) ConcatText(parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	return "CONCAT(" + strings.Join(parts, ", ") + ")"
}

func (SQLServer) Length(expr string) string { return "LEN(" + expr + ")" }

func (SQLServer) Round(expr string, places int) string {
	return fmt.Sprintf("ROUND(%s, %d)", expr, places)
}

func (SQLServer) SQLType(st coltype.StorageType) string {
	switch st.Kind {
	case coltype.StorageVarchar:
		return fmt.Sprintf("NVARCHAR(%d)", st.Length)
	case coltype.StorageText:
		return "NVARCHAR(MAX)"
	case coltype.StorageInteger:
		return "INT"
	case coltype.StorageBigint:
		return "BIGINT"
	case coltype.StorageDecimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", st.Precision, st.Scale)
	case coltype.StorageBoolean:
		return "BIT"
	case coltype.StorageDate:
		return "DATE"
	case coltype.StorageTimestamp:
		return "DATETIME2"
	}
	return "NVARCHAR(MAX)"
}

func (SQLServer) BooleanLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (d SQLServer) IdentityColumn(name sqlutil.Ident) string {
	return d.QuoteIdentifier(name.String()) + " BIGINT IDENTITY(1,1) PRIMARY KEY"
}

// SupportsTransactionalDDL is true: SQL Server rolls back ALTER TABLE inside
// an explicit transaction.
func (SQLServer) SupportsTransactionalDDL() bool { return true }

func (SQLServer) ExplicitIndexMaintenance() bool { return true }

// Limit rewrites the leading SELECT into SELECT TOP (n).
func (SQLServer) Limit(query string, n int) string {
	if rest, ok := strings.CutPrefix(query, "SELECT "); ok {
		return fmt.Sprintf("SELECT TOP (%d) %s", n, rest)
	}
	return fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _q", n, query)
}

func (d SQLServer) AddColumn(table sqlutil.Ident, definition string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s", d.q(table), definition)
}

func (d SQLServer) DropColumn(table, col sqlutil.Ident) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s", d.q(table), d.q(col))
}

func (d SQLServer) RenameColumn(table, from, to sqlutil.Ident) string {
	return fmt.Sprintf("EXEC sp_rename %s, %s, 'COLUMN'",
		d.QuoteLiteral(table.String()+"."+from.String()), d.QuoteLiteral(to.String()))
}

func (d SQLServer) RenameIndex(table sqlutil.Ident, from, to string) string {
	return fmt.Sprintf("IF EXISTS (SELECT 1 FROM sys.indexes WHERE name = %s AND object_id = OBJECT_ID(%s)) EXEC sp_rename %s, %s, 'INDEX'",
		d.QuoteLiteral(from), d.QuoteLiteral(table.String()),
		d.QuoteLiteral(table.String()+"."+from), d.QuoteLiteral(to))
}

// AlterNullability restates the column type: SQL Server has no SET NOT NULL.
func (d SQLServer) AlterNullability(table, col sqlutil.Ident, sqlType string, notNull bool) string {
	null := "NULL"
	if notNull {
		null = "NOT NULL"
	}
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s %s", d.q(table), d.q(col), sqlType, null)
}

func (d SQLServer) InlineDefault(table, col sqlutil.Ident, literal string) string {
	return fmt.Sprintf("CONSTRAINT %s DEFAULT %s", d.QuoteIdentifier(DefaultConstraintName(table.String(), col.String())), literal)
}

func (d SQLServer) SetDefault(table, col sqlutil.Ident, literal string) []string {
	return []string{
		d.DropDefault(table, col),
		fmt.Sprintf("ALTER TABLE %s ADD %s FOR %s", d.q(table), d.InlineDefault(table, col, literal), d.q(col)),
	}
}

func (d SQLServer) DropDefault(table, col sqlutil.Ident) string {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s",
		d.q(table), d.QuoteIdentifier(DefaultConstraintName(table.String(), col.String())))
}

func (d SQLServer) RenameDefault(table, from, to sqlutil.Ident) []string {
	oldName := DefaultConstraintName(table.String(), from.String())
	newName := DefaultConstraintName(table.String(), to.String())
	return []string{fmt.Sprintf("IF OBJECT_ID(%s, 'D') IS NOT NULL EXEC sp_rename %s, %s, 'OBJECT'",
		d.QuoteLiteral(oldName), d.QuoteLiteral(oldName), d.QuoteLiteral(newName))}
}

// CreateIndex filters unique indexes to non-NULL rows so that more than one
// row may hold NULL, matching PostgreSQL semantics.
func (d SQLServer) CreateIndex(name string, table, col sqlutil.Ident, unique bool) string {
	if unique {
		return fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (%s) WHERE %s IS NOT NULL",
			d.QuoteIdentifier(name), d.q(table), d.q(col), d.q(col))
	}
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)", d.QuoteIdentifier(name), d.q(table), d.q(col))
}

func (d SQLServer) DropIndex(name string, table sqlutil.Ident) string {
	return fmt.Sprintf("DROP INDEX IF EXISTS %s ON %s", d.QuoteIdentifier(name), d.q(table))
}

func (d SQLServer) ComputedColumn(col sqlutil.Ident, sqlType, expr string) string {
	return fmt.Sprintf("%s AS (CAST(%s AS %s)) PERSISTED", d.q(col), expr, sqlType)
}

func (d SQLServer) ConvertiblePredicate(col string, from, to coltype.Type) string {
	text := d.text(col)
	switch {
	case coltype.ParsedConversion(from, to):
		return "1 = 0"

	case from == to, to == coltype.MultipleLinesText, to == coltype.Formula:
		return "1 = 1"

	case to == coltype.SingleLineText:
		return fmt.Sprintf("LEN(CAST(%s AS NVARCHAR(MAX))) <= %d", col, coltype.DefaultTextLength)

	case to == coltype.Email:
		return fmt.Sprintf("(%s LIKE '_%%@_%%._%%' AND %s NOT LIKE '%% %%' AND %s NOT LIKE '%%@%%@%%')", text, text, text)

	case to == coltype.WholeNumber || to == coltype.Lookup:
		if from.IsNumeric() && from != coltype.WholeNumber {
			return fmt.Sprintf("(%s = ROUND(%s, 0, 1) AND ABS(%s) <= %s)", col, col, col, integerLimit(to))
		}
		return "1 = 1"

	case to.IsNumeric():
		if from.IsNumeric() {
			return fmt.Sprintf("ABS(%s) < %s", col, decimalLimit(coltype.MustPhysicalTypeFor(to)))
		}
		return "1 = 1"

	case to == coltype.Boolean:
		if from == coltype.WholeNumber {
			return fmt.Sprintf("%s IN (0, 1)", col)
		}
		values := append(append([]string{}, coltype.BooleanTrueValues...), coltype.BooleanFalseValues...)
		return fmt.Sprintf("LOWER(%s) IN (%s)", text, quotedList(d, values))

	case to.IsTemporal() && from.IsTemporal():
		return "1 = 1"
	}
	return "1 = 0"
}

func (d SQLServer) ConvertExpr(col string, from, to coltype.Type) string {
	sqlType := d.SQLType(coltype.MustPhysicalTypeFor(to))
	text := d.text(col)
	switch {
	case from == coltype.Boolean && to.IsText():
		return fmt.Sprintf("CASE WHEN %s = 1 THEN N'true' WHEN %s = 0 THEN N'false' END", col, col)

	case to == coltype.Boolean && from == coltype.WholeNumber:
		return fmt.Sprintf("CAST(CASE WHEN %s = 0 THEN 0 ELSE 1 END AS BIT)", col)

	case to == coltype.Boolean:
		return fmt.Sprintf("CASE WHEN LOWER(%s) IN (%s) THEN CAST(1 AS BIT) WHEN LOWER(%s) IN (%s) THEN CAST(0 AS BIT) ELSE NULL END",
			text, quotedList(d, coltype.BooleanTrueValues), text, quotedList(d, coltype.BooleanFalseValues))

	case to.IsNumeric() && to != coltype.WholeNumber && from.IsText():
		return fmt.Sprintf("CAST(NULLIF(%s, '') AS %s)", d.stripped(col), sqlType)

	case from.IsText() && !to.IsText():
		return fmt.Sprintf("CAST(NULLIF(%s, '') AS %s)", text, sqlType)

	case to == coltype.Email:
		return fmt.Sprintf("CAST(%s AS %s)", text, sqlType)
	}
	return fmt.Sprintf("CAST(%s AS %s)", col, sqlType)
}

// RetypeColumn rewrites through a staging column: SQL Server's ALTER COLUMN
// cannot transform values while changing the type.
func (d SQLServer) RetypeColumn(table, col sqlutil.Ident, from, to coltype.Type, clearInvalid bool) []string {
	staging := sqlutil.Ident(sqlutil.TruncateIdentifier(col.String() + "__retype"))
	c := d.q(col)
	expr := d.ConvertExpr(c, from, to)
	if clearInvalid {
		expr = fmt.Sprintf("CASE WHEN %s THEN %s ELSE NULL END", d.ConvertiblePredicate(c, from, to), expr)
	}
	return []string{
		d.DropDefault(table, col),
		fmt.Sprintf("ALTER TABLE %s ADD %s %s NULL", d.q(table), d.q(staging), d.SQLType(coltype.MustPhysicalTypeFor(to))),
		fmt.Sprintf("UPDATE %s SET %s = %s", d.q(table), d.q(staging), expr),
		fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.q(table), c),
		d.RenameColumn(table, staging, col),
	}
}

func (d SQLServer) q(id sqlutil.Ident) string {
	return d.QuoteIdentifier(id.String())
}

func (SQLServer) text(col string) string {
	return fmt.Sprintf("LTRIM(RTRIM(CAST(%s AS NVARCHAR(MAX))))", col)
}

func (d SQLServer) stripped(col string) string {
	return fmt.Sprintf("REPLACE(REPLACE(REPLACE(%s, '$', ''), ',', ''), '%%', '')", d.text(col))
}
