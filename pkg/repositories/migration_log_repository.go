package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-schema/pkg/database"
	"github.com/ekaya-inc/ekaya-schema/pkg/models"
)

// MigrationLogRepository persists the append-only migration log.
// There is no update or delete: entries are immutable once written.
type MigrationLogRepository interface {
	Append(ctx context.Context, entry *models.MigrationLogEntry) error
	// ListByTable returns the newest entries first.
	ListByTable(ctx context.Context, tableID uuid.UUID, limit int) ([]models.MigrationLogEntry, error)
}

type migrationLogRepository struct {
	db *database.DB
}

// NewMigrationLogRepository creates a MigrationLogRepository backed by
// engine_migration_log.
func NewMigrationLogRepository(db *database.DB) MigrationLogRepository {
	return &migrationLogRepository{db: db}
}

var _ MigrationLogRepository = (*migrationLogRepository)(nil)

func (r *migrationLogRepository) Append(ctx context.Context, e *models.MigrationLogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.db.Conn(ctx).Exec(ctx, `
		INSERT INTO engine_migration_log
			(id, table_id, table_name, operation, kind, message, affected_rows, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.TableID, e.TableName, string(e.Operation), string(e.Kind),
		e.Message, e.AffectedRows, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append migration log entry: %w", err)
	}
	return nil
}

func (r *migrationLogRepository) ListByTable(ctx context.Context, tableID uuid.UUID, limit int) ([]models.MigrationLogEntry, error) {
	limit, _ = normalizePageParams(limit, 0)

	rows, err := r.db.Conn(ctx).Query(ctx, `
		SELECT id, table_id, table_name, operation, kind, message, affected_rows, created_at
		FROM engine_migration_log
		WHERE table_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, tableID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list migration log: %w", err)
	}
	defer rows.Close()

	var entries []models.MigrationLogEntry
	for rows.Next() {
		var e models.MigrationLogEntry
		var op, kind string
		if err := rows.Scan(&e.ID, &e.TableID, &e.TableName, &op, &kind,
			&e.Message, &e.AffectedRows, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration log entry: %w", err)
		}
		e.Operation = models.ChangeKind(op)
		e.Kind = models.LogKind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migration log: %w", err)
	}
	return entries, nil
}
