package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-schema/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-schema/pkg/ddl"
	"github.com/ekaya-inc/ekaya-schema/pkg/logging"
	"github.com/ekaya-inc/ekaya-schema/pkg/models"
	"github.com/ekaya-inc/ekaya-schema/pkg/repositories"
	"github.com/ekaya-inc/ekaya-schema/pkg/retry"
)

// ChangeDeps groups the collaborators shared by TableBuilder and
// SchemaMigrationService.
type ChangeDeps struct {
	Tables     repositories.TableRepository
	Columns    repositories.ColumnRepository
	Logs       repositories.MigrationLogRepository
	Journal    *models.MigrationLog
	Registry   SchemaRegistry
	Locker     TableLocker
	MetaTx     MetadataTx
	Datasource datasource.Datasource
}

// changeOutcome is what a successful change reports back.
type changeOutcome struct {
	message  string
	affected *int64
	dropped  bool
}

// changeFunc performs one change. Metadata writes go through ctx, physical
// statements through r; both commit or roll back together.
type changeFunc func(ctx context.Context, schema *models.TableSchema, r datasource.Runner, b *ddl.Builder) (changeOutcome, error)

// rolledBackError marks a failure after which the previous definition is
// known to be intact.
type rolledBackError struct {
	err error
}

func (e *rolledBackError) Error() string { return e.err.Error() }
func (e *rolledBackError) Unwrap() error { return e.err }

type schemaChanger struct {
	ChangeDeps
	retry  *retry.Config
	logger *zap.Logger
}

func newSchemaChanger(deps ChangeDeps, opts SchemaOptions, logger *zap.Logger) *schemaChanger {
	if deps.Journal == nil {
		deps.Journal = &models.MigrationLog{}
	}
	return &schemaChanger{
		ChangeDeps: deps,
		retry:      retry.WithMaxRetries(opts.MigrationRetries),
		logger:     logger,
	}
}

// apply runs fn for an approved change on an existing table. Precondition
// failures (unknown table, busy table, bad approval) return an error;
// execution failures come back as a failed result and are logged.
func (c *schemaChanger) apply(ctx context.Context, tableID uuid.UUID, change models.Change, approval *Approval, fn changeFunc) (*models.MigrationResult, error) {
	schema, err := c.Registry.Get(ctx, tableID)
	if err != nil {
		return nil, err
	}
	unlock, err := c.Locker.Lock(ctx, schema.Table.DatabaseTableName)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Approvals are checked against the schema as it is under the lock.
	schema, err = c.Registry.Reload(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if err := approval.consume(schema, change); err != nil {
		return nil, err
	}

	var outcome changeOutcome
	b := ddl.NewBuilder(c.Datasource.Dialect())
	err = retry.DoIfRetryable(ctx, c.retry, func() error {
		return c.MetaTx.WithTx(ctx, func(ctx context.Context) error {
			working := cloneSchema(schema)
			return datasource.WithTransaction(ctx, c.Datasource, func(r datasource.Runner) error {
				var err error
				outcome, err = fn(ctx, working, r, b)
				if err != nil || outcome.dropped {
					return err
				}
				if err := c.Tables.Update(ctx, &working.Table); err != nil {
					return fmt.Errorf("failed to update table metadata: %w", err)
				}
				return nil
			})
		})
	})
	c.Registry.Invalidate(tableID)

	res := result(outcome, approval, err)
	c.record(ctx, &schema.Table, change.Kind, res)
	return res, nil
}

// runInTx runs fn inside the metadata transaction and, when the dialect
// allows it, a physical transaction, retrying transient failures.
func (c *schemaChanger) runInTx(ctx context.Context, fn func(ctx context.Context, r datasource.Runner) error) error {
	return retry.DoIfRetryable(ctx, c.retry, func() error {
		return c.MetaTx.WithTx(ctx, func(ctx context.Context) error {
			return datasource.WithTransaction(ctx, c.Datasource, func(r datasource.Runner) error {
				return fn(ctx, r)
			})
		})
	})
}

func result(outcome changeOutcome, approval *Approval, err error) *models.MigrationResult {
	if err != nil {
		var rb *rolledBackError
		if errors.As(err, &rb) {
			return models.Failed(models.OutcomeRolledBack, err)
		}
		return models.Failed(models.OutcomeFailed, err)
	}
	return models.Succeeded(outcome.message, outcome.affected, approval.Warnings())
}

// record appends the result to the in-memory journal and the persisted
// migration log. A failure to persist is logged, not returned.
func (c *schemaChanger) record(ctx context.Context, table *models.Table, kind models.ChangeKind, res *models.MigrationResult) {
	entry := models.EntryFromResult(table, kind, res)
	c.Journal.Append(entry)

	fields := []zap.Field{
		zap.String("table", table.DatabaseTableName),
		zap.String("kind", string(kind)),
		zap.String("outcome", string(res.Outcome)),
	}
	if res.AffectedRows != nil {
		fields = append(fields, zap.Int64("affected_rows", *res.AffectedRows))
	}
	if res.Success {
		c.logger.Info("Schema change applied", fields...)
	} else {
		c.logger.Error("Schema change failed", append(fields, zap.String("error", logging.SanitizeError(errors.New(res.Error))))...)
	}

	if err := c.Logs.Append(ctx, &entry); err != nil {
		c.logger.Error("Failed to persist migration log entry",
			zap.String("table", table.DatabaseTableName),
			zap.Error(err))
	}
}

// columnDef is the physical shape of a metadata column.
func columnDef(c *models.Column) ddl.ColumnDef {
	def := ddl.ColumnDef{
		Name:     c.ColumnName,
		Type:     c.LogicalType,
		Required: c.Required,
		Unique:   c.IsUnique,
		Default:  c.Default(),
	}
	if c.IsComputed() {
		def.Computed = *c.ComputedFormula
	}
	return def
}

func nextPosition(schema *models.TableSchema) int {
	pos := 0
	for _, c := range schema.Columns {
		if c.Position >= pos {
			pos = c.Position + 1
		}
	}
	return pos
}

func int64Ptr(n int64) *int64 {
	return &n
}
