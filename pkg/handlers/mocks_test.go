package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-schema/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-schema/pkg/coltype"
	"github.com/ekaya-inc/ekaya-schema/pkg/models"
	"github.com/ekaya-inc/ekaya-schema/pkg/services"
)

type mockRegistry struct {
	schemas map[uuid.UUID]*models.TableSchema
	listErr error
}

func (m *mockRegistry) Get(ctx context.Context, tableID uuid.UUID) (*models.TableSchema, error) {
	s, ok := m.schemas[tableID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *s
	cp.Columns = append([]models.Column(nil), s.Columns...)
	return &cp, nil
}

func (m *mockRegistry) GetByName(ctx context.Context, name string) (*models.TableSchema, error) {
	for _, s := range m.schemas {
		if s.Table.DatabaseTableName == name {
			return m.Get(ctx, s.Table.ID)
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockRegistry) List(ctx context.Context) ([]*models.Table, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.Table
	for _, s := range m.schemas {
		t := s.Table
		out = append(out, &t)
	}
	return out, nil
}

func (m *mockRegistry) Invalidate(tableID uuid.UUID) {}

func (m *mockRegistry) Reload(ctx context.Context, tableID uuid.UUID) (*models.TableSchema, error) {
	return m.Get(ctx, tableID)
}

func (m *mockRegistry) Close() {}

// mockValidator approves every change unless result says otherwise.
type mockValidator struct {
	result     *models.ValidationResult
	err        error
	lastChange models.Change
}

func (m *mockValidator) validation() *models.ValidationResult {
	if m.result != nil {
		return m.result
	}
	return &models.ValidationResult{Valid: true}
}

func (m *mockValidator) ValidateCreateTable(ctx context.Context, schema *models.TableSchema) (*models.ValidationResult, error) {
	return m.validation(), m.err
}

func (m *mockValidator) ValidateChange(ctx context.Context, schema *models.TableSchema, change models.Change) (*models.ValidationResult, error) {
	m.lastChange = change
	return m.validation(), m.err
}

func (m *mockValidator) ValidateFormula(schema *models.TableSchema, expr string) *models.ValidationResult {
	return m.validation()
}

func (m *mockValidator) Approve(ctx context.Context, schema *models.TableSchema, change models.Change) (*services.Approval, *models.ValidationResult, error) {
	m.lastChange = change
	if m.err != nil {
		return nil, nil, m.err
	}
	res := m.validation()
	if !res.Valid {
		return nil, res, nil
	}
	return &services.Approval{}, res, nil
}

// changeRecorder backs the builder and migrator mocks.
type changeRecorder struct {
	calls  []models.Change
	result *models.MigrationResult
	err    error
}

func (m *changeRecorder) run(change models.Change) (*models.MigrationResult, error) {
	m.calls = append(m.calls, change)
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return models.Succeeded("done", nil, nil), nil
}

type mockBuilder struct {
	changeRecorder
	created []*models.TableSchema
}

func (m *mockBuilder) CreateTable(ctx context.Context, schema *models.TableSchema, approval *services.Approval) (*models.MigrationResult, error) {
	m.created = append(m.created, schema)
	return m.run(services.CreateTableChange(schema))
}

func (m *mockBuilder) AddColumn(ctx context.Context, tableID uuid.UUID, change models.Change, approval *services.Approval) (*models.MigrationResult, error) {
	return m.run(change)
}

func (m *mockBuilder) RemoveColumn(ctx context.Context, tableID uuid.UUID, change models.Change, approval *services.Approval) (*models.MigrationResult, error) {
	return m.run(change)
}

func (m *mockBuilder) DropTable(ctx context.Context, tableID uuid.UUID, change models.Change, approval *services.Approval) (*models.MigrationResult, error) {
	return m.run(change)
}

func (m *mockBuilder) Bootstrap(ctx context.Context, schemas []models.TableSchema) error {
	return nil
}

type mockMigrator struct {
	changeRecorder
	history      []models.MigrationLogEntry
	historyLimit int
}

func (m *mockMigrator) Apply(ctx context.Context, tableID uuid.UUID, change models.Change, approval *services.Approval) (*models.MigrationResult, error) {
	return m.run(change)
}

func (m *mockMigrator) History(ctx context.Context, tableID uuid.UUID, limit int) ([]models.MigrationLogEntry, error) {
	m.historyLimit = limit
	return m.history, nil
}

type mockTableData struct {
	choices   []services.ChoiceCount
	err       error
	lastLimit int
}

func (m *mockTableData) Choices(ctx context.Context, tableID, columnID uuid.UUID, limit int) ([]services.ChoiceCount, error) {
	m.lastLimit = limit
	return m.choices, m.err
}

func (m *mockTableData) FirstRecord(ctx context.Context, tableID uuid.UUID) (*models.Row, error) {
	return nil, nil
}

type mockFormulas struct {
	test     *services.FormulaTestResult
	lastExpr string
}

func (m *mockFormulas) ValidateFormula(ctx context.Context, tableID uuid.UUID, expr string) (*models.ValidationResult, error) {
	m.lastExpr = expr
	return &models.ValidationResult{Valid: true}, nil
}

func (m *mockFormulas) TestFormula(ctx context.Context, tableID uuid.UUID, expr string) (*services.FormulaTestResult, error) {
	m.lastExpr = expr
	return m.test, nil
}

type mockImports struct {
	headers []string
	rows    [][]string
	result  *models.ImportResult
	err     error
}

func (m *mockImports) DetectType(values []string) coltype.Detection {
	return coltype.Detect(values)
}

func (m *mockImports) Analyze(fileName string, headers []string, rows [][]string) *models.ImportAnalysis {
	m.headers, m.rows = headers, rows
	return &models.ImportAnalysis{SuggestedTableName: models.DatabaseTableName(fileName), RowCount: len(rows)}
}

func (m *mockImports) ConvertRows(schema *models.TableSchema, headers []string, rows [][]string) (*services.ConvertedRows, []models.FailedRow, error) {
	return nil, nil, nil
}

func (m *mockImports) Import(ctx context.Context, tableID uuid.UUID, headers []string, rows [][]string) (*models.ImportResult, error) {
	m.headers, m.rows = headers, rows
	return m.result, m.err
}

func passthrough(next http.Handler) http.Handler {
	return next
}
