package mssql

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-schema/pkg/adapters/datasource"
)

// TableExists checks the caller's default schema for table.
func (a *Adapter) TableExists(ctx context.Context, table string) (bool, error) {
	const query = `
	SELECT COUNT(*)
	FROM sys.tables t
	WHERE t.name = @p1 AND t.schema_id = SCHEMA_ID()`

	var n int
	if err := a.db.QueryRowContext(ctx, query, table).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return n > 0, nil
}

// Columns returns the physical columns of table in ordinal order.
func (a *Adapter) Columns(ctx context.Context, table string) ([]datasource.Column, error) {
	const query = `
	SELECT
	    c.name,
	    TYPE_NAME(c.user_type_id) AS data_type,
	    c.is_nullable,
	    CAST(CASE WHEN EXISTS (
	        SELECT 1 FROM sys.index_columns ic
	        JOIN sys.indexes i ON i.object_id = ic.object_id AND i.index_id = ic.index_id
	        WHERE i.is_primary_key = 1 AND ic.object_id = c.object_id AND ic.column_id = c.column_id
	    ) THEN 1 ELSE 0 END AS BIT) AS is_primary
	FROM sys.columns c
	WHERE c.object_id = OBJECT_ID(QUOTENAME(SCHEMA_NAME()) + '.' + QUOTENAME(@p1))
	ORDER BY c.column_id`

	rows, err := a.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []datasource.Column
	for rows.Next() {
		var c datasource.Column
		if err := rows.Scan(&c.Name, &c.DataType, &c.IsNullable, &c.IsPrimary); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}

// IndexesOnColumn returns every index on table that includes column.
func (a *Adapter) IndexesOnColumn(ctx context.Context, table, column string) ([]datasource.Index, error) {
	const query = `
	SELECT i.name, i.is_unique, i.is_primary_key
	FROM sys.indexes i
	JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
	WHERE i.object_id = OBJECT_ID(QUOTENAME(SCHEMA_NAME()) + '.' + QUOTENAME(@p1))
	  AND c.name = @p2
	  AND i.name IS NOT NULL
	ORDER BY i.name`

	rows, err := a.db.QueryContext(ctx, query, table, column)
	if err != nil {
		return nil, fmt.Errorf("query indexes: %w", err)
	}
	defer rows.Close()

	var indexes []datasource.Index
	for rows.Next() {
		var idx datasource.Index
		if err := rows.Scan(&idx.Name, &idx.IsUnique, &idx.IsPrimary); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		indexes = append(indexes, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate indexes: %w", err)
	}
	return indexes, nil
}

// ForeignKeysReferencing returns foreign keys that point at table.column.
func (a *Adapter) ForeignKeysReferencing(ctx context.Context, table, column string) ([]datasource.ForeignKey, error) {
	const query = `
	SELECT
	    fk.name,
	    OBJECT_NAME(fkc.parent_object_id) AS source_table,
	    pc.name AS source_column,
	    OBJECT_NAME(fkc.referenced_object_id) AS referenced_table,
	    rc.name AS referenced_column
	FROM sys.foreign_keys fk
	JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
	JOIN sys.columns pc ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id
	JOIN sys.columns rc ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
	WHERE fkc.referenced_object_id = OBJECT_ID(QUOTENAME(SCHEMA_NAME()) + '.' + QUOTENAME(@p1))
	  AND rc.name = @p2
	ORDER BY fk.name`

	rows, err := a.db.QueryContext(ctx, query, table, column)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []datasource.ForeignKey
	for rows.Next() {
		var fk datasource.ForeignKey
		if err := rows.Scan(&fk.Name, &fk.Table, &fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}
	return fks, nil
}
