package datasource

import (
	"context"
	"fmt"

	"github.com/spf13/cast"

	"github.com/ekaya-inc/ekaya-schema/pkg/ddl"
)

// Run executes a built statement.
func Run(ctx context.Context, r Runner, s ddl.Statement) (int64, error) {
	res, err := r.Execute(ctx, s.SQL, s.Args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

// RunAll executes statements in order and returns the summed affected rows.
// It stops at the first failure.
func RunAll(ctx context.Context, r Runner, stmts []ddl.Statement) (int64, error) {
	var total int64
	for _, s := range stmts {
		n, err := Run(ctx, r, s)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// QueryInt64 runs a single-value query such as SELECT COUNT(*) and returns
// the value as int64.
func QueryInt64(ctx context.Context, r Runner, s ddl.Statement) (int64, error) {
	res, err := r.Query(ctx, s.SQL, s.Args...)
	if err != nil {
		return 0, err
	}
	if len(res.Rows) == 0 || len(res.Columns) == 0 {
		return 0, fmt.Errorf("query returned no value")
	}
	n, err := cast.ToInt64E(res.Rows[0][res.Columns[0]])
	if err != nil {
		return 0, fmt.Errorf("failed to read count: %w", err)
	}
	return n, nil
}

// WithTransaction runs fn inside a transaction when the dialect supports
// transactional DDL, committing on success and rolling back on error. On
// other dialects fn runs directly against the executor.
func WithTransaction(ctx context.Context, exec QueryExecutor, fn func(Runner) error) error {
	if !exec.Dialect().SupportsTransactionalDDL() {
		return fn(exec)
	}

	tx, err := exec.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
