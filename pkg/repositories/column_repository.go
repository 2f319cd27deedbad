package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-schema/pkg/coltype"
	"github.com/ekaya-inc/ekaya-schema/pkg/database"
	"github.com/ekaya-inc/ekaya-schema/pkg/models"
)

// ColumnRepository provides data access for column metadata.
type ColumnRepository interface {
	// ListByTable returns the table's columns in position order.
	ListByTable(ctx context.Context, tableID uuid.UUID) ([]models.Column, error)
	// ListLookupsTo returns columns in other tables whose lookup points at tableID.
	ListLookupsTo(ctx context.Context, tableID uuid.UUID) ([]models.Column, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Column, error)
	Create(ctx context.Context, column *models.Column) error
	Update(ctx context.Context, column *models.Column) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type columnRepository struct {
	db *database.DB
}

// NewColumnRepository creates a ColumnRepository backed by engine_columns.
func NewColumnRepository(db *database.DB) ColumnRepository {
	return &columnRepository{db: db}
}

var _ ColumnRepository = (*columnRepository)(nil)

const columnColumns = `id, table_id, display_name, column_name, logical_type,
	max_length, min_length, default_value, min_value, max_value,
	required, is_unique, is_title, searchable, position,
	lookup_table_id, lookup_display_column, formula, computed_formula,
	created_at, updated_at`

func (r *columnRepository) ListByTable(ctx context.Context, tableID uuid.UUID) ([]models.Column, error) {
	return r.list(ctx, "list columns", `
		SELECT `+columnColumns+`
		FROM engine_columns
		WHERE table_id = $1
		ORDER BY position, column_name`, tableID)
}

func (r *columnRepository) ListLookupsTo(ctx context.Context, tableID uuid.UUID) ([]models.Column, error) {
	return r.list(ctx, "list lookup columns", `
		SELECT `+columnColumns+`
		FROM engine_columns
		WHERE lookup_table_id = $1 AND table_id <> $1
		ORDER BY table_id, position`, tableID)
}

func (r *columnRepository) list(ctx context.Context, op, query string, args ...any) ([]models.Column, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	var columns []models.Column
	for rows.Next() {
		c, err := scanColumn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		columns = append(columns, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	return columns, nil
}

func (r *columnRepository) Get(ctx context.Context, id uuid.UUID) (*models.Column, error) {
	row := r.db.Conn(ctx).QueryRow(ctx, `
		SELECT `+columnColumns+`
		FROM engine_columns
		WHERE id = $1`, id)
	c, err := scanColumn(row)
	if err != nil {
		return nil, translateError("get column", err)
	}
	return c, nil
}

func (r *columnRepository) Create(ctx context.Context, c *models.Column) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := r.db.Conn(ctx).Exec(ctx, `
		INSERT INTO engine_columns (`+columnColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
		        $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		c.ID, c.TableID, c.DisplayName, c.ColumnName, string(c.LogicalType),
		c.MaxLength, c.MinLength, c.DefaultValue, c.MinValue, c.MaxValue,
		c.Required, c.IsUnique, c.IsTitle, c.Searchable, c.Position,
		c.LookupTableID, c.LookupDisplayColumn, c.Formula, c.ComputedFormula,
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return translateError("create column", err)
	}
	return nil
}

func (r *columnRepository) Update(ctx context.Context, c *models.Column) error {
	c.UpdatedAt = time.Now().UTC()

	tag, err := r.db.Conn(ctx).Exec(ctx, `
		UPDATE engine_columns
		SET display_name = $2, column_name = $3, logical_type = $4,
		    max_length = $5, min_length = $6, default_value = $7, min_value = $8, max_value = $9,
		    required = $10, is_unique = $11, is_title = $12, searchable = $13, position = $14,
		    lookup_table_id = $15, lookup_display_column = $16, formula = $17, computed_formula = $18,
		    updated_at = $19
		WHERE id = $1`,
		c.ID, c.DisplayName, c.ColumnName, string(c.LogicalType),
		c.MaxLength, c.MinLength, c.DefaultValue, c.MinValue, c.MaxValue,
		c.Required, c.IsUnique, c.IsTitle, c.Searchable, c.Position,
		c.LookupTableID, c.LookupDisplayColumn, c.Formula, c.ComputedFormula,
		c.UpdatedAt)
	if err != nil {
		return translateError("update column", err)
	}
	return requireOneRow("update column", tag)
}

func (r *columnRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM engine_columns WHERE id = $1`, id)
	if err != nil {
		return translateError("delete column", err)
	}
	return requireOneRow("delete column", tag)
}

func scanColumn(row pgx.Row) (*models.Column, error) {
	c := &models.Column{}
	var logicalType string
	err := row.Scan(
		&c.ID, &c.TableID, &c.DisplayName, &c.ColumnName, &logicalType,
		&c.MaxLength, &c.MinLength, &c.DefaultValue, &c.MinValue, &c.MaxValue,
		&c.Required, &c.IsUnique, &c.IsTitle, &c.Searchable, &c.Position,
		&c.LookupTableID, &c.LookupDisplayColumn, &c.Formula, &c.ComputedFormula,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.LogicalType = coltype.Type(logicalType)
	return c, nil
}
