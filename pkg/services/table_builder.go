package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-schema/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-schema/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-schema/pkg/ddl"
	"github.com/ekaya-inc/ekaya-schema/pkg/models"
)

// TableBuilder owns the physical table lifecycle: create, add and remove
// columns, drop. Every call except Bootstrap requires an Approval for the
// exact change being made.
type TableBuilder interface {
	// CreateTable stores the metadata and creates the physical table with
	// its indexes. Both happen or neither does.
	CreateTable(ctx context.Context, schema *models.TableSchema, approval *Approval) (*models.MigrationResult, error)

	AddColumn(ctx context.Context, tableID uuid.UUID, change models.Change, approval *Approval) (*models.MigrationResult, error)
	RemoveColumn(ctx context.Context, tableID uuid.UUID, change models.Change, approval *Approval) (*models.MigrationResult, error)

	// DropTable drops the physical table and deletes its metadata. A
	// physical table that is already gone is not an error.
	DropTable(ctx context.Context, tableID uuid.UUID, change models.Change, approval *Approval) (*models.MigrationResult, error)

	// Bootstrap creates every manifest table that does not exist yet.
	Bootstrap(ctx context.Context, schemas []models.TableSchema) error
}

type tableBuilder struct {
	*schemaChanger
	validator SchemaValidationService
}

// NewTableBuilder creates a table builder.
func NewTableBuilder(deps ChangeDeps, validator SchemaValidationService, opts SchemaOptions, logger *zap.Logger) TableBuilder {
	opts = opts.withDefaults()
	return &tableBuilder{
		schemaChanger: newSchemaChanger(deps, opts, logger.Named("table-builder")),
		validator:     validator,
	}
}

// PrepareTableSchema fills in what a new table definition may leave out:
// ids, the slug, column positions and title flags.
func PrepareTableSchema(schema *models.TableSchema) {
	t := &schema.Table
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.DatabaseTableName == "" && t.Name != "" {
		t.DatabaseTableName = models.DatabaseTableName(t.Name)
	}
	if t.Name == "" {
		t.Name = models.TableTitle(t.DatabaseTableName)
	}
	t.Slug = models.Slug(t.DatabaseTableName)

	for i := range schema.Columns {
		c := &schema.Columns[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.TableID = t.ID
		c.Position = i
		if c.DisplayName == "" {
			c.DisplayName = c.ColumnName
		}
		c.IsTitle = t.TitleColumn != "" && c.ColumnName == t.TitleColumn
	}
}

// CreateTableChange describes the creation of schema as a change, for
// approval.
func CreateTableChange(schema *models.TableSchema) models.Change {
	return models.Change{
		Kind:    models.ChangeCreateTable,
		Columns: append([]models.Column(nil), schema.Columns...),
	}
}

func (s *tableBuilder) CreateTable(ctx context.Context, schema *models.TableSchema, approval *Approval) (*models.MigrationResult, error) {
	name := schema.Table.DatabaseTableName
	unlock, err := s.Locker.Lock(ctx, name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := approval.consume(schema, CreateTableChange(schema)); err != nil {
		return nil, err
	}

	defs := make([]ddl.ColumnDef, len(schema.Columns))
	for i := range schema.Columns {
		defs[i] = columnDef(&schema.Columns[i])
	}
	stmts, err := ddl.NewBuilder(s.Datasource.Dialect()).CreateTable(name, defs)
	if err == nil {
		err = s.runInTx(ctx, func(ctx context.Context, r datasource.Runner) error {
			if err := s.Tables.Create(ctx, &schema.Table); err != nil {
				return fmt.Errorf("failed to store table metadata: %w", err)
			}
			for i := range schema.Columns {
				if err := s.Columns.Create(ctx, &schema.Columns[i]); err != nil {
					return fmt.Errorf("failed to store column %s: %w", schema.Columns[i].ColumnName, err)
				}
			}
			_, err := datasource.RunAll(ctx, r, stmts)
			return err
		})
	}

	res := result(changeOutcome{
		message: fmt.Sprintf("Created table %s with %d columns", name, len(schema.Columns)),
	}, approval, err)
	s.record(ctx, &schema.Table, models.ChangeCreateTable, res)
	return res, nil
}

func (s *tableBuilder) AddColumn(ctx context.Context, tableID uuid.UUID, change models.Change, approval *Approval) (*models.MigrationResult, error) {
	if change.Kind != models.ChangeAddColumn || change.NewColumn == nil {
		return nil, fmt.Errorf("%w: add_column needs a new column", apperrors.ErrValidationFailed)
	}
	return s.apply(ctx, tableID, change, approval, func(ctx context.Context, schema *models.TableSchema, r datasource.Runner, b *ddl.Builder) (changeOutcome, error) {
		col := *change.NewColumn
		col.ID = uuid.New()
		col.TableID = schema.Table.ID
		col.Position = nextPosition(schema)
		if col.DisplayName == "" {
			col.DisplayName = col.ColumnName
		}

		stmts, err := b.AddColumn(schema.Table.DatabaseTableName, columnDef(&col))
		if err != nil {
			return changeOutcome{}, err
		}
		if _, err := datasource.RunAll(ctx, r, stmts); err != nil {
			return changeOutcome{}, fmt.Errorf("failed to add column %s: %w", col.ColumnName, err)
		}
		if err := s.Columns.Create(ctx, &col); err != nil {
			return changeOutcome{}, fmt.Errorf("failed to store column %s: %w", col.ColumnName, err)
		}
		return changeOutcome{message: fmt.Sprintf("Added column %s", col.ColumnName)}, nil
	})
}

func (s *tableBuilder) RemoveColumn(ctx context.Context, tableID uuid.UUID, change models.Change, approval *Approval) (*models.MigrationResult, error) {
	if change.Kind != models.ChangeRemoveColumn {
		return nil, fmt.Errorf("%w: expected remove_column, got %s", apperrors.ErrValidationFailed, change.Kind)
	}
	return s.apply(ctx, tableID, change, approval, func(ctx context.Context, schema *models.TableSchema, r datasource.Runner, b *ddl.Builder) (changeOutcome, error) {
		col, ok := schema.Column(change.Column)
		if !ok {
			return changeOutcome{}, fmt.Errorf("%w: column %s", apperrors.ErrNotFound, change.Column)
		}

		stmts, err := b.DropColumn(schema.Table.DatabaseTableName, columnDef(col))
		if err != nil {
			return changeOutcome{}, err
		}
		if _, err := datasource.RunAll(ctx, r, stmts); err != nil {
			return changeOutcome{}, fmt.Errorf("failed to drop column %s: %w", col.ColumnName, err)
		}
		if err := s.Columns.Delete(ctx, col.ID); err != nil {
			return changeOutcome{}, fmt.Errorf("failed to delete column metadata: %w", err)
		}
		if schema.Table.TitleColumn == col.ColumnName {
			schema.Table.TitleColumn = ""
		}
		return changeOutcome{message: fmt.Sprintf("Removed column %s", col.ColumnName)}, nil
	})
}

func (s *tableBuilder) DropTable(ctx context.Context, tableID uuid.UUID, change models.Change, approval *Approval) (*models.MigrationResult, error) {
	if change.Kind != models.ChangeDropTable {
		return nil, fmt.Errorf("%w: expected drop_table, got %s", apperrors.ErrValidationFailed, change.Kind)
	}
	return s.apply(ctx, tableID, change, approval, func(ctx context.Context, schema *models.TableSchema, r datasource.Runner, b *ddl.Builder) (changeOutcome, error) {
		name := schema.Table.DatabaseTableName
		stmt, err := b.DropTable(name)
		if err != nil {
			return changeOutcome{}, err
		}
		if _, err := datasource.Run(ctx, r, stmt); err != nil {
			return changeOutcome{}, fmt.Errorf("failed to drop table %s: %w", name, err)
		}
		if err := s.Tables.Delete(ctx, schema.Table.ID); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return changeOutcome{}, fmt.Errorf("failed to delete table metadata: %w", err)
		}
		return changeOutcome{message: fmt.Sprintf("Dropped table %s", name), dropped: true}, nil
	})
}

func (s *tableBuilder) Bootstrap(ctx context.Context, schemas []models.TableSchema) error {
	for i := range schemas {
		schema := &schemas[i]
		name := schema.Table.DatabaseTableName

		_, err := s.Tables.GetByName(ctx, name)
		if err == nil {
			s.logger.Debug("Manifest table already exists", zap.String("table", name))
			continue
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("failed to look up table %s: %w", name, err)
		}

		PrepareTableSchema(schema)
		approval, validation, err := s.validator.Approve(ctx, schema, CreateTableChange(schema))
		if err != nil {
			return fmt.Errorf("failed to validate table %s: %w", name, err)
		}
		if approval == nil {
			return fmt.Errorf("%w: table %s: %v", apperrors.ErrValidationFailed, name, validation.Errors)
		}
		res, err := s.CreateTable(ctx, schema, approval)
		if err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("failed to create table %s: %s", name, res.Error)
		}
		s.logger.Info("Created manifest table", zap.String("table", name), zap.Int("columns", len(schema.Columns)))
	}
	return nil
}

var _ TableBuilder = (*tableBuilder)(nil)
