// Package repositories persists engine metadata (tables, columns and the
// migration log) in the engine PostgreSQL database.
package repositories

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-schema/pkg/apperrors"
)

// normalizePageParams clamps list limits/offsets to sane bounds.
func normalizePageParams(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// translateError maps driver errors to apperrors sentinels.
func translateError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, apperrors.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("%s: %w (%s)", op, apperrors.ErrConflict, pgErr.ConstraintName)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// requireOneRow turns a zero-row UPDATE/DELETE into ErrNotFound.
func requireOneRow(op string, tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, apperrors.ErrNotFound)
	}
	return nil
}
