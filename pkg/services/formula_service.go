package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-schema/pkg/ddl"
	"github.com/ekaya-inc/ekaya-schema/pkg/formula"
	"github.com/ekaya-inc/ekaya-schema/pkg/models"
)

// FormulaTestResult is the value a formula produces for a sample record.
type FormulaTestResult struct {
	Success  bool   `json:"success"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
	RecordID any    `json:"record_id,omitempty"`
}

// FormulaService validates record formulas and tries them on live data.
type FormulaService interface {
	ValidateFormula(ctx context.Context, tableID uuid.UUID, expr string) (*models.ValidationResult, error)

	// TestFormula evaluates expr against the table's first record.
	TestFormula(ctx context.Context, tableID uuid.UUID, expr string) (*FormulaTestResult, error)
}

type formulaService struct {
	registry  SchemaRegistry
	validator SchemaValidationService
	data      TableDataService
	logger    *zap.Logger
}

// NewFormulaService creates a FormulaService.
func NewFormulaService(registry SchemaRegistry, validator SchemaValidationService, data TableDataService, logger *zap.Logger) FormulaService {
	return &formulaService{
		registry:  registry,
		validator: validator,
		data:      data,
		logger:    logger.Named("formula"),
	}
}

func (s *formulaService) ValidateFormula(ctx context.Context, tableID uuid.UUID, expr string) (*models.ValidationResult, error) {
	schema, err := s.registry.Get(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return s.validator.ValidateFormula(schema, expr), nil
}

func (s *formulaService) TestFormula(ctx context.Context, tableID uuid.UUID, expr string) (*FormulaTestResult, error) {
	schema, err := s.registry.Get(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if v := s.validator.ValidateFormula(schema, expr); !v.Valid {
		return &FormulaTestResult{Error: strings.Join(v.Errors, "; ")}, nil
	}

	row, err := s.data.FirstRecord(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return &FormulaTestResult{Error: "No records found to test formula"}, nil
	}

	record := make(map[string]any, len(schema.Columns))
	for _, c := range schema.Columns {
		if v, ok := row.Raw(c.ColumnName); ok {
			record[c.ColumnName] = v
		}
	}
	id, _ := row.Raw(ddl.IDColumn)

	value := formula.Evaluate(expr, record, schema.Fields())
	if formula.IsError(value) {
		s.logger.Debug("Formula test failed",
			zap.String("table", schema.Table.DatabaseTableName),
			zap.Any("result", value))
		return &FormulaTestResult{Error: value.(string), RecordID: id}, nil
	}
	return &FormulaTestResult{Success: true, Result: value, RecordID: id}, nil
}

var _ FormulaService = (*formulaService)(nil)
