package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-schema/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-schema/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-schema/pkg/ddl"
	"github.com/ekaya-inc/ekaya-schema/pkg/models"
)

// DefaultChoiceLimit caps the distinct values returned for a column.
const DefaultChoiceLimit = 100

// ChoiceCount is one distinct column value and how many rows hold it.
type ChoiceCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// TableDataService reads rows of physical tables through their schema.
type TableDataService interface {
	// Choices lists the distinct non-NULL values of a column, most frequent first.
	Choices(ctx context.Context, tableID, columnID uuid.UUID, limit int) ([]ChoiceCount, error)

	// FirstRecord returns the row with the lowest id, or nil when the table
	// is empty.
	FirstRecord(ctx context.Context, tableID uuid.UUID) (*models.Row, error)
}

type tableDataService struct {
	registry SchemaRegistry
	ds       datasource.Datasource
	logger   *zap.Logger
}

// NewTableDataService creates a TableDataService.
func NewTableDataService(registry SchemaRegistry, ds datasource.Datasource, logger *zap.Logger) TableDataService {
	return &tableDataService{
		registry: registry,
		ds:       ds,
		logger:   logger.Named("table-data"),
	}
}

func (s *tableDataService) Choices(ctx context.Context, tableID, columnID uuid.UUID, limit int) ([]ChoiceCount, error) {
	schema, err := s.registry.Get(ctx, tableID)
	if err != nil {
		return nil, err
	}
	col, err := ColumnByID(schema, columnID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > DefaultChoiceLimit {
		limit = DefaultChoiceLimit
	}

	stmt, err := ddl.NewBuilder(s.ds.Dialect()).DistinctValues(schema.Table.DatabaseTableName, col.ColumnName, limit)
	if err != nil {
		return nil, err
	}
	res, err := s.ds.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list values of %s: %w", col.ColumnName, err)
	}

	out := make([]ChoiceCount, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, ChoiceCount{
			Value: cast.ToString(row[ddl.ChoiceValueColumn]),
			Count: cast.ToInt64(row[ddl.ChoiceCountColumn]),
		})
	}
	return out, nil
}

func (s *tableDataService) FirstRecord(ctx context.Context, tableID uuid.UUID) (*models.Row, error) {
	schema, err := s.registry.Get(ctx, tableID)
	if err != nil {
		return nil, err
	}
	stmt, err := ddl.NewBuilder(s.ds.Dialect()).FirstRecord(schema.Table.DatabaseTableName)
	if err != nil {
		return nil, err
	}
	res, err := s.ds.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read first record of %s: %w", schema.Table.DatabaseTableName, err)
	}
	if len(res.Rows) == 0 {
		return nil, nil
	}
	return models.NewRow(schema, res.Rows[0]), nil
}

// ColumnByID finds a column of schema by its metadata id.
func ColumnByID(schema *models.TableSchema, id uuid.UUID) (*models.Column, error) {
	for i := range schema.Columns {
		if schema.Columns[i].ID == id {
			return &schema.Columns[i], nil
		}
	}
	return nil, fmt.Errorf("%w: column %s", apperrors.ErrNotFound, id)
}

var _ TableDataService = (*tableDataService)(nil)
