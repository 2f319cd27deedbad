package services

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-schema/pkg/models"
	"github.com/ekaya-inc/ekaya-schema/pkg/repositories"
)

// SchemaRegistry serves table schemas from a cache backed by the metadata
// repositories. Callers receive copies and may modify them freely.
type SchemaRegistry interface {
	Get(ctx context.Context, tableID uuid.UUID) (*models.TableSchema, error)
	GetByName(ctx context.Context, databaseTableName string) (*models.TableSchema, error)
	List(ctx context.Context) ([]*models.Table, error)
	// Invalidate drops the cached schema; the next Get reloads it.
	Invalidate(tableID uuid.UUID)
	// Reload replaces the cached schema with a fresh read.
	Reload(ctx context.Context, tableID uuid.UUID) (*models.TableSchema, error)
	Close()
}

type schemaRegistry struct {
	tables  repositories.TableRepository
	columns repositories.ColumnRepository
	cache   *ristretto.Cache[string, *models.TableSchema]
	logger  *zap.Logger
}

// NewSchemaRegistry creates a registry holding at most maxCost schemas.
func NewSchemaRegistry(
	tables repositories.TableRepository,
	columns repositories.ColumnRepository,
	maxCost int64,
	logger *zap.Logger,
) (SchemaRegistry, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *models.TableSchema]{
		NumCounters: maxCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create schema cache: %w", err)
	}
	return &schemaRegistry{
		tables:  tables,
		columns: columns,
		cache:   cache,
		logger:  logger.Named("schema-registry"),
	}, nil
}

func (r *schemaRegistry) Get(ctx context.Context, tableID uuid.UUID) (*models.TableSchema, error) {
	if schema, ok := r.cache.Get(tableID.String()); ok {
		return cloneSchema(schema), nil
	}
	return r.Reload(ctx, tableID)
}

func (r *schemaRegistry) GetByName(ctx context.Context, databaseTableName string) (*models.TableSchema, error) {
	table, err := r.tables.GetByName(ctx, databaseTableName)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, table.ID)
}

func (r *schemaRegistry) List(ctx context.Context) ([]*models.Table, error) {
	return r.tables.List(ctx)
}

func (r *schemaRegistry) Invalidate(tableID uuid.UUID) {
	r.cache.Del(tableID.String())
}

func (r *schemaRegistry) Reload(ctx context.Context, tableID uuid.UUID) (*models.TableSchema, error) {
	table, err := r.tables.Get(ctx, tableID)
	if err != nil {
		return nil, err
	}
	columns, err := r.columns.ListByTable(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to load columns for %s: %w", table.DatabaseTableName, err)
	}

	schema := &models.TableSchema{Table: *table, Columns: columns}
	r.cache.Set(tableID.String(), schema, 1)
	r.cache.Wait()

	r.logger.Debug("Loaded table schema",
		zap.String("table", table.DatabaseTableName),
		zap.Int("columns", len(columns)))
	return cloneSchema(schema), nil
}

func (r *schemaRegistry) Close() {
	r.cache.Close()
}

func cloneSchema(s *models.TableSchema) *models.TableSchema {
	out := &models.TableSchema{Table: s.Table}
	out.Columns = append([]models.Column(nil), s.Columns...)
	return out
}

var _ SchemaRegistry = (*schemaRegistry)(nil)
