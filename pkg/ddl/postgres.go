package ddl

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-schema/pkg/coltype"
	sqlutil "github.com/ekaya-inc/ekaya-schema/pkg/sql"
)

const pgEmailPattern = `^[^@[:space:]]+@[^@[:space:]]+\.[^@[:space:]]+$`

// Postgres renders statements for PostgreSQL 12+.
type Postgres struct{}

var _ Dialect = Postgres{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (Postgres) MaxParameters() int { return 65535 }

func (Postgres) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (Postgres) QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (Postgres) CastText(expr string) string { return "CAST(" + expr + " AS TEXT)" }

func (Postgres) Coalesce(expr, fallback string) string {
	return "COALESCE(" + expr + ", " + fallback + ")"
}

func (Postgres) ConcatText(parts []string) string {
	return "(" + strings.Join(parts, " || ") + ")"
}

func (Postgres) Length(expr string) string { return "LENGTH(" + expr + ")" }

// Round casts to NUMERIC first: PostgreSQL has no ROUND(double precision, int).
func (Postgres) Round(expr string, places int) string {
	return fmt.Sprintf("ROUND(CAST(%s AS NUMERIC), %d)", expr, places)
}

func (Postgres) SQLType(st coltype.StorageType) string {
	switch st.Kind {
	case coltype.StorageVarchar:
		return fmt.Sprintf("VARCHAR(%d)", st.Length)
	case coltype.StorageText:
		return "TEXT"
	case coltype.StorageInteger:
		return "INTEGER"
	case coltype.StorageBigint:
		return "BIGINT"
	case coltype.StorageDecimal:
		return fmt.Sprintf("NUMERIC(%d,%d)", st.Precision, st.Scale)
	case coltype.StorageBoolean:
		return "BOOLEAN"
	case coltype.StorageDate:
		return "DATE"
	case coltype.StorageTimestamp:
		return "TIMESTAMP"
	}
	return "TEXT"
}

func (Postgres) BooleanLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (d Postgres) IdentityColumn(name sqlutil.Ident) string {
	return d.QuoteIdentifier(name.String()) + " BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
}

func (Postgres) SupportsTransactionalDDL() bool { return true }

func (Postgres) ExplicitIndexMaintenance() bool { return false }

func (Postgres) Limit(query string, n int) string {
	return fmt.Sprintf("%s LIMIT %d", query, n)
}

func (d Postgres) AddColumn(table sqlutil.Ident, definition string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.q(table), definition)
}

func (d Postgres) DropColumn(table, col sqlutil.Ident) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s", d.q(table), d.q(col))
}

func (d Postgres) RenameColumn(table, from, to sqlutil.Ident) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", d.q(table), d.q(from), d.q(to))
}

func (d Postgres) RenameIndex(_ sqlutil.Ident, from, to string) string {
	return fmt.Sprintf("ALTER INDEX IF EXISTS %s RENAME TO %s", d.QuoteIdentifier(from), d.QuoteIdentifier(to))
}

func (d Postgres) AlterNullability(table, col sqlutil.Ident, _ string, notNull bool) string {
	action := "DROP NOT NULL"
	if notNull {
		action = "SET NOT NULL"
	}
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s", d.q(table), d.q(col), action)
}

func (Postgres) InlineDefault(_, _ sqlutil.Ident, literal string) string {
	return "DEFAULT " + literal
}

func (d Postgres) SetDefault(table, col sqlutil.Ident, literal string) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", d.q(table), d.q(col), literal)}
}

func (d Postgres) DropDefault(table, col sqlutil.Ident) string {
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", d.q(table), d.q(col))
}

// RenameDefault is a no-op: PostgreSQL defaults are not named objects.
func (Postgres) RenameDefault(_, _, _ sqlutil.Ident) []string { return nil }

func (d Postgres) CreateIndex(name string, table, col sqlutil.Ident, unique bool) string {
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, d.QuoteIdentifier(name), d.q(table), d.q(col))
}

func (d Postgres) DropIndex(name string, _ sqlutil.Ident) string {
	return "DROP INDEX IF EXISTS " + d.QuoteIdentifier(name)
}

func (d Postgres) ComputedColumn(col sqlutil.Ident, sqlType, expr string) string {
	return fmt.Sprintf("%s %s GENERATED ALWAYS AS (CAST(%s AS %s)) STORED", d.q(col), sqlType, expr, sqlType)
}

func (d Postgres) ConvertiblePredicate(col string, from, to coltype.Type) string {
	switch {
	case coltype.ParsedConversion(from, to):
		return "FALSE"

	case from == to, to == coltype.MultipleLinesText, to == coltype.Formula:
		return "TRUE"

	case to == coltype.SingleLineText:
		return fmt.Sprintf("LENGTH(CAST(%s AS TEXT)) <= %d", col, coltype.DefaultTextLength)

	case to == coltype.Email:
		return fmt.Sprintf("%s ~ '%s'", d.text(col), pgEmailPattern)

	case to == coltype.WholeNumber || to == coltype.Lookup:
		if from.IsNumeric() && from != coltype.WholeNumber {
			return fmt.Sprintf("(%s = TRUNC(%s) AND ABS(%s) <= %s)", col, col, col, integerLimit(to))
		}
		return "TRUE"

	case to.IsNumeric():
		if from.IsNumeric() {
			return fmt.Sprintf("ABS(%s) < %s", col, decimalLimit(coltype.MustPhysicalTypeFor(to)))
		}
		return "TRUE"

	case to == coltype.Boolean:
		if from == coltype.WholeNumber {
			return fmt.Sprintf("%s IN (0, 1)", col)
		}
		values := append(append([]string{}, coltype.BooleanTrueValues...), coltype.BooleanFalseValues...)
		return fmt.Sprintf("LOWER(%s) IN (%s)", d.text(col), quotedList(d, values))

	case to.IsTemporal() && from.IsTemporal():
		return "TRUE"
	}
	return "FALSE"
}

func (d Postgres) ConvertExpr(col string, from, to coltype.Type) string {
	sqlType := d.SQLType(coltype.MustPhysicalTypeFor(to))
	text := d.text(col)
	switch {
	case to == coltype.Boolean && from == coltype.WholeNumber:
		return fmt.Sprintf("(%s <> 0)", col)

	case to == coltype.Boolean:
		return fmt.Sprintf("CASE WHEN LOWER(%s) IN (%s) THEN TRUE WHEN LOWER(%s) IN (%s) THEN FALSE ELSE NULL END",
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

func (d Postgres) RetypeColumn(table, col sqlutil.Ident, from, to coltype.Type, clearInvalid bool) []string {
	c := d.q(col)
	expr := d.ConvertExpr(c, from, to)
	if clearInvalid {
		expr = fmt.Sprintf("CASE WHEN %s THEN %s ELSE NULL END", d.ConvertiblePredicate(c, from, to), expr)
	}
	return []string{
		d.DropDefault(table, col),
		fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s",
			d.q(table), c, d.SQLType(coltype.MustPhysicalTypeFor(to)), expr),
	}
}

func (d Postgres) q(id sqlutil.Ident) string {
	return d.QuoteIdentifier(id.String())
}

func (Postgres) text(col string) string {
	return fmt.Sprintf("TRIM(CAST(%s AS TEXT))", col)
}

func (d Postgres) stripped(col string) string {
	return fmt.Sprintf("REGEXP_REPLACE(%s, '[$,%%]', '', 'g')", d.text(col))
}
