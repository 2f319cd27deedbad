package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-schema/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-schema/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-schema/pkg/coltype"
	"github.com/ekaya-inc/ekaya-schema/pkg/ddl"
	"github.com/ekaya-inc/ekaya-schema/pkg/models"
	"github.com/ekaya-inc/ekaya-schema/pkg/repositories"
)

// mockTableRepository keeps tables in memory.
type mockTableRepository struct {
	mu     sync.Mutex
	tables map[uuid.UUID]*models.Table
	getErr error
}

func newMockTableRepository() *mockTableRepository {
	return &mockTableRepository{tables: make(map[uuid.UUID]*models.Table)}
}

func (m *mockTableRepository) List(ctx context.Context) ([]*models.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Table
	for _, t := range m.tables {
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

func (m *mockTableRepository) Get(ctx context.Context, id uuid.UUID) (*models.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	t, ok := m.tables[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (m *mockTableRepository) GetByName(ctx context.Context, name string) (*models.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tables {
		if t.DatabaseTableName == name {
			c := *t
			return &c, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockTableRepository) Create(ctx context.Context, table *models.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tables {
		if t.DatabaseTableName == table.DatabaseTableName {
			return apperrors.ErrConflict
		}
	}
	c := *table
	m.tables[table.ID] = &c
	return nil
}

func (m *mockTableRepository) Update(ctx context.Context, table *models.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table.ID]; !ok {
		return apperrors.ErrNotFound
	}
	table.UpdatedAt = time.Now().UTC()
	c := *table
	m.tables[table.ID] = &c
	return nil
}

func (m *mockTableRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.tables, id)
	return nil
}

var _ repositories.TableRepository = (*mockTableRepository)(nil)

// mockColumnRepository keeps columns in memory.
type mockColumnRepository struct {
	mu        sync.Mutex
	columns   map[uuid.UUID]*models.Column
	createErr error
}

func newMockColumnRepository() *mockColumnRepository {
	return &mockColumnRepository{columns: make(map[uuid.UUID]*models.Column)}
}

func (m *mockColumnRepository) ListByTable(ctx context.Context, tableID uuid.UUID) ([]models.Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Column
	for _, c := range m.columns {
		if c.TableID == tableID {
			out = append(out, *c)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Position < out[j-1].Position; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (m *mockColumnRepository) ListLookupsTo(ctx context.Context, tableID uuid.UUID) ([]models.Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Column
	for _, c := range m.columns {
		if c.LookupTableID != nil && *c.LookupTableID == tableID && c.TableID != tableID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockColumnRepository) Get(ctx context.Context, id uuid.UUID) (*models.Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.columns[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockColumnRepository) Create(ctx context.Context, column *models.Column) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	c := *column
	m.columns[column.ID] = &c
	return nil
}

func (m *mockColumnRepository) Update(ctx context.Context, column *models.Column) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.columns[column.ID]; !ok {
		return apperrors.ErrNotFound
	}
	c := *column
	m.columns[column.ID] = &c
	return nil
}

func (m *mockColumnRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.columns, id)
	return nil
}

var _ repositories.ColumnRepository = (*mockColumnRepository)(nil)

// mockMigrationLogRepository records appended entries.
type mockMigrationLogRepository struct {
	mu        sync.Mutex
	entries   []models.MigrationLogEntry
	appendErr error
}

func (m *mockMigrationLogRepository) Append(ctx context.Context, entry *models.MigrationLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockMigrationLogRepository) ListByTable(ctx context.Context, tableID uuid.UUID, limit int) ([]models.MigrationLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.MigrationLogEntry
	for i := len(m.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.entries[i].TableID == tableID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

var _ repositories.MigrationLogRepository = (*mockMigrationLogRepository)(nil)

// passthroughTx runs fn directly and counts calls.
type passthroughTx struct {
	calls int
}

func (p *passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	p.calls++
	return fn(ctx)
}

// fakeDatasource records statements. Queries are answered by queryFn, or
// with a zero count when it is nil.
type fakeDatasource struct {
	mu        sync.Mutex
	dialect   ddl.Dialect
	executed  []string
	args      [][]any
	failOn    func(statement string) error
	queryFn   func(query string, args []any) (*datasource.QueryResult, error)
	affected  int64
	exists    bool
	indexes   []datasource.Index
	fks       []datasource.ForeignKey
	commits   int
	rollbacks int
}

func newFakeDatasource() *fakeDatasource {
	return &fakeDatasource{dialect: ddl.Postgres{}, exists: true}
}

func countResult(n int64) *datasource.QueryResult {
	return &datasource.QueryResult{
		Columns:  []string{"count"},
		Rows:     []map[string]any{{"count": n}},
		RowCount: 1,
	}
}

// tableCounts answers the validator's COUNT queries by their shape.
type tableCounts struct {
	rows    int64
	nulls   int64
	invalid int64
	values  int64
}

func (c tableCounts) queryFn(query string, _ []any) (*datasource.QueryResult, error) {
	switch {
	case strings.Contains(query, "AND NOT ("):
		return countResult(c.invalid), nil
	case strings.Contains(query, " IS NULL"):
		return countResult(c.nulls), nil
	case strings.Contains(query, " IN ("):
		return countResult(c.values), nil
	}
	return countResult(c.rows), nil
}

// withValues serves the stored values of column (ids from 1) to value reads
// and answers every other query like queryFn.
func (c tableCounts) withValues(column string, values ...string) func(string, []any) (*datasource.QueryResult, error) {
	return func(query string, args []any) (*datasource.QueryResult, error) {
		if !strings.HasPrefix(query, `SELECT "id", `) {
			return c.queryFn(query, args)
		}
		rows := make([]map[string]any, len(values))
		for i, v := range values {
			rows[i] = map[string]any{"id": int64(i + 1), column: v}
		}
		return &datasource.QueryResult{Columns: []string{"id", column}, Rows: rows, RowCount: len(rows)}, nil
	}
}

func (f *fakeDatasource) TestConnection(ctx context.Context) error { return nil }
func (f *fakeDatasource) Close() error                             { return nil }
func (f *fakeDatasource) Dialect() ddl.Dialect                     { return f.dialect }

func (f *fakeDatasource) Query(ctx context.Context, query string, args ...any) (*datasource.QueryResult, error) {
	if f.queryFn == nil {
		return countResult(0), nil
	}
	return f.queryFn(query, args)
}

func (f *fakeDatasource) Execute(ctx context.Context, statement string, args ...any) (*datasource.ExecuteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != nil {
		if err := f.failOn(statement); err != nil {
			return nil, err
		}
	}
	f.executed = append(f.executed, statement)
	f.args = append(f.args, args)
	return &datasource.ExecuteResult{RowsAffected: f.affected}, nil
}

func (f *fakeDatasource) Begin(ctx context.Context) (datasource.Transaction, error) {
	return &fakeTx{ds: f}, nil
}

func (f *fakeDatasource) TableExists(ctx context.Context, table string) (bool, error) {
	return f.exists, nil
}

func (f *fakeDatasource) Columns(ctx context.Context, table string) ([]datasource.Column, error) {
	return nil, nil
}

func (f *fakeDatasource) IndexesOnColumn(ctx context.Context, table, column string) ([]datasource.Index, error) {
	return f.indexes, nil
}

func (f *fakeDatasource) ForeignKeysReferencing(ctx context.Context, table, column string) ([]datasource.ForeignKey, error) {
	return f.fks, nil
}

func (f *fakeDatasource) statements() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.executed...)
}

var _ datasource.Datasource = (*fakeDatasource)(nil)

type fakeTx struct {
	ds *fakeDatasource
}

func (t *fakeTx) Query(ctx context.Context, query string, args ...any) (*datasource.QueryResult, error) {
	return t.ds.Query(ctx, query, args...)
}

func (t *fakeTx) Execute(ctx context.Context, statement string, args ...any) (*datasource.ExecuteResult, error) {
	return t.ds.Execute(ctx, statement, args...)
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.ds.mu.Lock()
	defer t.ds.mu.Unlock()
	t.ds.commits++
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.ds.mu.Lock()
	defer t.ds.mu.Unlock()
	t.ds.rollbacks++
	return nil
}

// failMatching fails every statement containing fragment.
func failMatching(fragment string) func(string) error {
	return func(statement string) error {
		if strings.Contains(statement, fragment) {
			return errors.New("statement failed: " + fragment)
		}
		return nil
	}
}

// nonTransactionalDialect forces the restore path of multi-step changes.
type nonTransactionalDialect struct {
	ddl.Postgres
}

func (nonTransactionalDialect) SupportsTransactionalDDL() bool { return false }

// testEnv wires every schema service over the in-memory fakes.
type testEnv struct {
	tables    *mockTableRepository
	columns   *mockColumnRepository
	logs      *mockMigrationLogRepository
	journal   *models.MigrationLog
	ds        *fakeDatasource
	metaTx    *passthroughTx
	registry  SchemaRegistry
	validator SchemaValidationService
	builder   TableBuilder
	migrator  SchemaMigrationService
	data      TableDataService
	formulas  FormulaService
	imports   ImportService
	table     *models.TableSchema
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		tables:  newMockTableRepository(),
		columns: newMockColumnRepository(),
		logs:    &mockMigrationLogRepository{},
		journal: &models.MigrationLog{},
		ds:      newFakeDatasource(),
		metaTx:  &passthroughTx{},
	}
	logger := zap.NewNop()
	opts := DefaultSchemaOptions()
	opts.MigrationRetries = 0

	registry, err := NewSchemaRegistry(env.tables, env.columns, 100, logger)
	require.NoError(t, err)
	t.Cleanup(registry.Close)
	env.registry = registry

	deps := ChangeDeps{
		Tables:     env.tables,
		Columns:    env.columns,
		Logs:       env.logs,
		Journal:    env.journal,
		Registry:   registry,
		Locker:     NewLocalTableLocker(0),
		MetaTx:     env.metaTx,
		Datasource: env.ds,
	}
	env.validator = NewSchemaValidationService(env.tables, env.columns, env.ds, opts, logger)
	env.builder = NewTableBuilder(deps, env.validator, opts, logger)
	env.migrator = NewSchemaMigrationService(deps, opts, logger)
	env.data = NewTableDataService(registry, env.ds, logger)
	env.formulas = NewFormulaService(registry, env.validator, env.data, logger)
	env.imports = NewImportService(registry, env.ds, opts, logger)
	env.table = env.seed(t)
	return env
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

// seed stores a products table: name (required title), price, qty, status
// and the computed total = [price] * [qty].
func (env *testEnv) seed(t *testing.T) *models.TableSchema {
	t.Helper()
	schema := &models.TableSchema{
		Table: models.Table{
			Name:              "Products",
			DatabaseTableName: "products",
			TitleColumn:       "name",
			UpdatedAt:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		Columns: []models.Column{
			{DisplayName: "Name", ColumnName: "name", LogicalType: coltype.SingleLineText, Required: true},
			{DisplayName: "Price", ColumnName: "price", LogicalType: coltype.Number},
			{DisplayName: "Qty", ColumnName: "qty", LogicalType: coltype.WholeNumber},
			{DisplayName: "Status", ColumnName: "status", LogicalType: coltype.SingleLineText},
			{DisplayName: "Total", ColumnName: "total", LogicalType: coltype.Number, ComputedFormula: strPtr("[price] * [qty]")},
		},
	}
	PrepareTableSchema(schema)
	ctx := context.Background()
	require.NoError(t, env.tables.Create(ctx, &schema.Table))
	for i := range schema.Columns {
		require.NoError(t, env.columns.Create(ctx, &schema.Columns[i]))
	}
	return schema
}

// current returns the table schema as the registry serves it now.
func (env *testEnv) current(t *testing.T) *models.TableSchema {
	t.Helper()
	env.registry.Invalidate(env.table.Table.ID)
	schema, err := env.registry.Get(context.Background(), env.table.Table.ID)
	require.NoError(t, err)
	return schema
}

// approve validates change against the current schema and requires it to pass.
func (env *testEnv) approve(t *testing.T, change models.Change) *Approval {
	t.Helper()
	approval, res, err := env.validator.Approve(context.Background(), env.current(t), change)
	require.NoError(t, err)
	require.NotNil(t, approval, "validation errors: %v", res.Errors)
	return approval
}

func intPtr(n int) *int { return &n }
