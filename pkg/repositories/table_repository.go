package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-schema/pkg/database"
	"github.com/ekaya-inc/ekaya-schema/pkg/models"
)

// TableRepository provides data access for table metadata.
type TableRepository interface {
	List(ctx context.Context) ([]*models.Table, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Table, error)
	GetByName(ctx context.Context, databaseTableName string) (*models.Table, error)
	Create(ctx context.Context, table *models.Table) error
	Update(ctx context.Context, table *models.Table) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type tableRepository struct {
	db *database.DB
}

// NewTableRepository creates a TableRepository backed by engine_tables.
func NewTableRepository(db *database.DB) TableRepository {
	return &tableRepository{db: db}
}

var _ TableRepository = (*tableRepository)(nil)

const tableColumns = `id, name, database_table_name, title_column, searchable,
	is_live, is_protected, slug, created_at, updated_at`

func (r *tableRepository) List(ctx context.Context) ([]*models.Table, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, `
		SELECT `+tableColumns+`
		FROM engine_tables
		ORDER BY name, database_table_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []*models.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return tables, nil
}

func (r *tableRepository) Get(ctx context.Context, id uuid.UUID) (*models.Table, error) {
	row := r.db.Conn(ctx).QueryRow(ctx, `
		SELECT `+tableColumns+`
		FROM engine_tables
		WHERE id = $1`, id)
	t, err := scanTable(row)
	if err != nil {
		return nil, translateError("get table", err)
	}
	return t, nil
}

func (r *tableRepository) GetByName(ctx context.Context, databaseTableName string) (*models.Table, error) {
	row := r.db.Conn(ctx).QueryRow(ctx, `
		SELECT `+tableColumns+`
		FROM engine_tables
		WHERE database_table_name = $1`, databaseTableName)
	t, err := scanTable(row)
	if err != nil {
		return nil, translateError("get table by name", err)
	}
	return t, nil
}

func (r *tableRepository) Create(ctx context.Context, table *models.Table) error {
	if table.ID == uuid.Nil {
		table.ID = uuid.New()
	}
	now := time.Now().UTC()
	table.CreatedAt = now
	table.UpdatedAt = now

	_, err := r.db.Conn(ctx).Exec(ctx, `
		INSERT INTO engine_tables (`+tableColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		table.ID, table.Name, table.DatabaseTableName, table.TitleColumn, table.Searchable,
		table.IsLive, table.IsProtected, table.Slug, table.CreatedAt, table.UpdatedAt)
	if err != nil {
		return translateError("create table", err)
	}
	return nil
}

func (r *tableRepository) Update(ctx context.Context, table *models.Table) error {
	table.UpdatedAt = time.Now().UTC()

	tag, err := r.db.Conn(ctx).Exec(ctx, `
		UPDATE engine_tables
		SET name = $2, database_table_name = $3, title_column = $4, searchable = $5,
		    is_live = $6, is_protected = $7, slug = $8, updated_at = $9
		WHERE id = $1`,
		table.ID, table.Name, table.DatabaseTableName, table.TitleColumn, table.Searchable,
		table.IsLive, table.IsProtected, table.Slug, table.UpdatedAt)
	if err != nil {
		return translateError("update table", err)
	}
	return requireOneRow("update table", tag)
}

// Delete removes the table and, through ON DELETE CASCADE, its columns.
func (r *tableRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM engine_tables WHERE id = $1`, id)
	if err != nil {
		return translateError("delete table", err)
	}
	return requireOneRow("delete table", tag)
}

func scanTable(row pgx.Row) (*models.Table, error) {
	t := &models.Table{}
	err := row.Scan(
		&t.ID, &t.Name, &t.DatabaseTableName, &t.TitleColumn, &t.Searchable,
		&t.IsLive, &t.IsProtected, &t.Slug, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}
