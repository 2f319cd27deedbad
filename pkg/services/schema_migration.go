package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-schema/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-schema/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-schema/pkg/coltype"
	"github.com/ekaya-inc/ekaya-schema/pkg/ddl"
	"github.com/ekaya-inc/ekaya-schema/pkg/models"
)

// SchemaMigrationService executes approved data-rewriting changes on
// existing columns.
type SchemaMigrationService interface {
	// Apply executes change on the table. The approval must have been issued
	// for this exact change and is consumed.
	Apply(ctx context.Context, tableID uuid.UUID, change models.Change, approval *Approval) (*models.MigrationResult, error)

	// History returns the table's migration log, newest first.
	History(ctx context.Context, tableID uuid.UUID, limit int) ([]models.MigrationLogEntry, error)
}

type schemaMigrationService struct {
	*schemaChanger
	strategy models.ConversionStrategy
}

// NewSchemaMigrationService creates a migrator.
func NewSchemaMigrationService(deps ChangeDeps, opts SchemaOptions, logger *zap.Logger) SchemaMigrationService {
	opts = opts.withDefaults()
	return &schemaMigrationService{
		schemaChanger: newSchemaChanger(deps, opts, logger.Named("schema-migration")),
		strategy:      opts.DefaultStrategy,
	}
}

func (s *schemaMigrationService) History(ctx context.Context, tableID uuid.UUID, limit int) ([]models.MigrationLogEntry, error) {
	entries, err := s.Logs.ListByTable(ctx, tableID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list migration log: %w", err)
	}
	return entries, nil
}

func (s *schemaMigrationService) Apply(ctx context.Context, tableID uuid.UUID, change models.Change, approval *Approval) (*models.MigrationResult, error) {
	var fn changeFunc
	switch change.Kind {
	case models.ChangeRenameColumn:
		fn = s.renameColumn(change)
	case models.ChangeColumnType:
		fn = s.changeType(change)
	case models.ChangeNullConstraint:
		fn = s.changeNull(change)
	case models.ChangeDefaultValue:
		fn = s.changeDefault(change)
	case models.ChangeRenameChoice, models.ChangeDeleteChoice, models.ChangeMergeChoices:
		fn = s.changeChoices(change)
	case models.ChangeAddComputedColumn:
		fn = s.addComputedColumn(change)
	case models.ChangeUpdateComputedColumn:
		fn = s.updateComputedColumn(change)
	default:
		return nil, fmt.Errorf("%w: %s is not a column migration", apperrors.ErrValidationFailed, change.Kind)
	}
	return s.apply(ctx, tableID, change, approval, fn)
}

func lookupColumn(schema *models.TableSchema, name string) (*models.Column, error) {
	col, ok := schema.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w: column %s", apperrors.ErrNotFound, name)
	}
	return col, nil
}

func (s *schemaMigrationService) renameColumn(change models.Change) changeFunc {
	return func(ctx context.Context, schema *models.TableSchema, r datasource.Runner, b *ddl.Builder) (changeOutcome, error) {
		col, err := lookupColumn(schema, change.Column)
		if err != nil {
			return changeOutcome{}, err
		}
		oldName, newName := col.ColumnName, change.NewName

		stmts, err := b.RenameColumn(schema.Table.DatabaseTableName, columnDef(col), newName)
		if err != nil {
			return changeOutcome{}, err
		}
		if _, err := datasource.RunAll(ctx, r, stmts); err != nil {
			return changeOutcome{}, fmt.Errorf("failed to rename column %s: %w", oldName, err)
		}

		col.ColumnName = newName
		if err := s.Columns.Update(ctx, col); err != nil {
			return changeOutcome{}, fmt.Errorf("failed to update column metadata: %w", err)
		}
		for _, dep := range computedDependents(schema, oldName) {
			depCol, _ := schema.Column(dep)
			rewritten := strings.ReplaceAll(*depCol.ComputedFormula, "["+oldName+"]", "["+newName+"]")
			depCol.ComputedFormula = &rewritten
			if err := s.Columns.Update(ctx, depCol); err != nil {
				return changeOutcome{}, fmt.Errorf("failed to update formula of %s: %w", dep, err)
			}
		}
		if schema.Table.TitleColumn == oldName {
			schema.Table.TitleColumn = newName
		}
		return changeOutcome{message: fmt.Sprintf("Renamed column %s to %s", oldName, newName)}, nil
	}
}

func (s *schemaMigrationService) changeType(change models.Change) changeFunc {
	return func(ctx context.Context, schema *models.TableSchema, r datasource.Runner, b *ddl.Builder) (changeOutcome, error) {
		col, err := lookupColumn(schema, change.Column)
		if err != nil {
			return changeOutcome{}, err
		}
		table := schema.Table.DatabaseTableName
		from, to := col.LogicalType, change.NewType
		strategy := change.Strategy
		if strategy == "" {
			strategy = s.strategy
		}
		clearInvalid := strategy == models.StrategyClearInvalid

		var (
			cleared int64
			stmts   []ddl.Statement
		)
		switch {
		case coltype.ParsedConversion(from, to):
			plan, err := planConversion(ctx, r, b, table, col.ColumnName, to)
			if err != nil {
				return changeOutcome{}, err
			}
			if len(plan.invalid) > 0 && !clearInvalid {
				return changeOutcome{}, fmt.Errorf("%d rows contain values that cannot be converted", len(plan.invalid))
			}
			cleared = int64(len(plan.invalid))
			if stmts, err = plan.statements(b, table, col.ColumnName); err != nil {
				return changeOutcome{}, err
			}
		case clearInvalid && !coltype.ConversionDescriptor(from, to).Safe:
			stmt, err := b.CountInvalid(table, col.ColumnName, from, to)
			if err != nil {
				return changeOutcome{}, err
			}
			if cleared, err = datasource.QueryInt64(ctx, r, stmt); err != nil {
				return changeOutcome{}, fmt.Errorf("failed to count invalid values: %w", err)
			}
		}

		def := columnDef(col)
		def.Type = to
		retype, err := b.ChangeType(table, def, from, clearInvalid)
		if err != nil {
			return changeOutcome{}, err
		}
		stmts = append(stmts, retype...)
		if _, err := datasource.RunAll(ctx, r, stmts); err != nil {
			return changeOutcome{}, fmt.Errorf("failed to change type of %s: %w", col.ColumnName, err)
		}

		col.LogicalType = to
		if !to.IsText() {
			col.MaxLength, col.MinLength = nil, nil
		}
		if !to.IsNumeric() {
			col.MinValue, col.MaxValue = nil, nil
		}
		if col.DefaultValue != nil && !coltype.Convertible(*col.DefaultValue, to) {
			col.DefaultValue = nil
		}
		if err := s.Columns.Update(ctx, col); err != nil {
			return changeOutcome{}, fmt.Errorf("failed to update column metadata: %w", err)
		}

		msg := fmt.Sprintf("Changed column %s from %s to %s", col.ColumnName, from.Label(), to.Label())
		if cleared > 0 {
			msg += fmt.Sprintf("; %d invalid values set to NULL", cleared)
		}
		return changeOutcome{message: msg, affected: int64Ptr(cleared)}, nil
	}
}

func (s *schemaMigrationService) changeNull(change models.Change) changeFunc {
	return func(ctx context.Context, schema *models.TableSchema, r datasource.Runner, b *ddl.Builder) (changeOutcome, error) {
		col, err := lookupColumn(schema, change.Column)
		if err != nil {
			return changeOutcome{}, err
		}
		if change.Required == nil {
			return changeOutcome{}, fmt.Errorf("%w: required flag missing", apperrors.ErrValidationFailed)
		}
		col.Required = *change.Required

		stmts, err := b.SetNullability(schema.Table.DatabaseTableName, columnDef(col))
		if err != nil {
			return changeOutcome{}, err
		}
		if _, err := datasource.RunAll(ctx, r, stmts); err != nil {
			return changeOutcome{}, fmt.Errorf("failed to change null constraint of %s: %w", col.ColumnName, err)
		}
		if err := s.Columns.Update(ctx, col); err != nil {
			return changeOutcome{}, fmt.Errorf("failed to update column metadata: %w", err)
		}

		state := "nullable"
		if col.Required {
			state = "required"
		}
		return changeOutcome{message: fmt.Sprintf("Column %s is now %s", col.ColumnName, state)}, nil
	}
}

func (s *schemaMigrationService) changeDefault(change models.Change) changeFunc {
	return func(ctx context.Context, schema *models.TableSchema, r datasource.Runner, b *ddl.Builder) (changeOutcome, error) {
		col, err := lookupColumn(schema, change.Column)
		if err != nil {
			return changeOutcome{}, err
		}
		col.DefaultValue = nil
		if change.Default != nil && *change.Default != "" {
			v := *change.Default
			col.DefaultValue = &v
		}

		stmts, err := b.SetDefault(schema.Table.DatabaseTableName, columnDef(col))
		if err != nil {
			return changeOutcome{}, err
		}
		if _, err := datasource.RunAll(ctx, r, stmts); err != nil {
			return changeOutcome{}, fmt.Errorf("failed to change default of %s: %w", col.ColumnName, err)
		}
		if err := s.Columns.Update(ctx, col); err != nil {
			return changeOutcome{}, fmt.Errorf("failed to update column metadata: %w", err)
		}

		if col.DefaultValue == nil {
			return changeOutcome{message: fmt.Sprintf("Removed default of column %s", col.ColumnName)}, nil
		}
		return changeOutcome{message: fmt.Sprintf("Set default of column %s", col.ColumnName)}, nil
	}
}

func (s *schemaMigrationService) changeChoices(change models.Change) changeFunc {
	return func(ctx context.Context, schema *models.TableSchema, r datasource.Runner, b *ddl.Builder) (changeOutcome, error) {
		col, err := lookupColumn(schema, change.Column)
		if err != nil {
			return changeOutcome{}, err
		}
		table := schema.Table.DatabaseTableName

		var (
			stmt ddl.Statement
			msg  string
		)
		switch change.Kind {
		case models.ChangeRenameChoice:
			stmt, err = b.RenameChoice(table, col.ColumnName, change.OldValue, change.NewValue)
			msg = "Renamed choice in %d rows"
		case models.ChangeDeleteChoice:
			stmt, err = b.DeleteChoice(table, col.ColumnName, change.OldValue, change.Replacement)
			msg = "Deleted choice from %d rows"
		default:
			stmt, err = b.MergeChoices(table, col.ColumnName, change.Sources, change.Target)
			msg = "Merged choices in %d rows"
		}
		if err != nil {
			return changeOutcome{}, err
		}

		n, err := datasource.Run(ctx, r, stmt)
		if err != nil {
			return changeOutcome{}, fmt.Errorf("failed to update choices of %s: %w", col.ColumnName, err)
		}
		return changeOutcome{message: fmt.Sprintf(msg, n), affected: int64Ptr(n)}, nil
	}
}

func (s *schemaMigrationService) addComputedColumn(change models.Change) changeFunc {
	return func(ctx context.Context, schema *models.TableSchema, r datasource.Runner, b *ddl.Builder) (changeOutcome, error) {
		if change.NewColumn == nil || !change.NewColumn.IsComputed() {
			return changeOutcome{}, fmt.Errorf("%w: computed column needs a formula", apperrors.ErrValidationFailed)
		}
		col := *change.NewColumn
		col.ID = uuid.New()
		col.TableID = schema.Table.ID
		col.Position = nextPosition(schema)
		if col.DisplayName == "" {
			col.DisplayName = col.ColumnName
		}

		stmts, err := b.AddComputedColumn(schema.Table.DatabaseTableName, columnDef(&col), plainColumnNames(schema, ""))
		if err != nil {
			return changeOutcome{}, err
		}
		if _, err := datasource.RunAll(ctx, r, stmts); err != nil {
			return changeOutcome{}, fmt.Errorf("failed to add computed column %s: %w", col.ColumnName, err)
		}
		if err := s.Columns.Create(ctx, &col); err != nil {
			return changeOutcome{}, fmt.Errorf("failed to store column %s: %w", col.ColumnName, err)
		}
		return changeOutcome{message: fmt.Sprintf("Added computed column %s", col.ColumnName)}, nil
	}
}

// updateComputedColumn drops and recreates the generated column. The old
// definition is kept until the new one exists; if recreation fails it is
// restored and the result is rolled_back.
func (s *schemaMigrationService) updateComputedColumn(change models.Change) changeFunc {
	return func(ctx context.Context, schema *models.TableSchema, r datasource.Runner, b *ddl.Builder) (changeOutcome, error) {
		col, err := lookupColumn(schema, change.Column)
		if err != nil {
			return changeOutcome{}, err
		}
		if !col.IsComputed() {
			return changeOutcome{}, fmt.Errorf("%w: %s is not computed", apperrors.ErrValidationFailed, col.ColumnName)
		}
		table := schema.Table.DatabaseTableName
		columns := plainColumnNames(schema, col.ColumnName)

		snapshot := columnDef(col)
		next := snapshot
		next.Computed = change.Formula

		// Build everything first so a bad formula never reaches the drop.
		drop, err := b.DropColumn(table, snapshot)
		if err != nil {
			return changeOutcome{}, err
		}
		recreate, err := b.AddComputedColumn(table, next, columns)
		if err != nil {
			return changeOutcome{}, err
		}
		restore, err := b.AddComputedColumn(table, snapshot, columns)
		if err != nil {
			return changeOutcome{}, err
		}

		if _, err := datasource.RunAll(ctx, r, drop); err != nil {
			return changeOutcome{}, fmt.Errorf("failed to drop computed column %s: %w", col.ColumnName, err)
		}
		if _, err := datasource.RunAll(ctx, r, recreate); err != nil {
			recreateErr := fmt.Errorf("failed to recreate computed column %s: %w", col.ColumnName, err)
			if b.Dialect().SupportsTransactionalDDL() {
				// The enclosing transaction rolls the drop back.
				return changeOutcome{}, &rolledBackError{err: recreateErr}
			}
			if _, restoreErr := datasource.RunAll(ctx, r, restore); restoreErr != nil {
				s.logger.Error("Failed to restore computed column",
					zap.String("table", table),
					zap.String("column", col.ColumnName),
					zap.Error(restoreErr))
				return changeOutcome{}, fmt.Errorf("%w; restore failed: %v", recreateErr, restoreErr)
			}
			return changeOutcome{}, &rolledBackError{err: recreateErr}
		}

		formula := change.Formula
		col.ComputedFormula = &formula
		if err := s.Columns.Update(ctx, col); err != nil {
			return changeOutcome{}, fmt.Errorf("failed to update column metadata: %w", err)
		}
		return changeOutcome{message: fmt.Sprintf("Updated formula of computed column %s", col.ColumnName)}, nil
	}
}

var _ SchemaMigrationService = (*schemaMigrationService)(nil)
