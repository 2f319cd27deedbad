package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-schema/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-schema/pkg/models"
	"github.com/ekaya-inc/ekaya-schema/pkg/services"
)

// --- Request Types ---

// CreateTableRequest for POST /api/tables.
type CreateTableRequest struct {
	Name              string          `json:"name"`
	DatabaseTableName string          `json:"database_table_name,omitempty"`
	TitleColumn       string          `json:"title_column,omitempty"`
	Searchable        bool            `json:"searchable"`
	Columns           []models.Column `json:"columns"`
}

// FormulaRequest for the formula test and validate endpoints.
type FormulaRequest struct {
	Formula string `json:"formula"`
}

// --- Response Types ---

// TableListResponse for GET /api/tables.
type TableListResponse struct {
	Tables []*models.Table `json:"tables"`
	Total  int             `json:"total"`
}

// ChangeRejectedResponse is returned when validation blocks a change.
type ChangeRejectedResponse struct {
	Outcome    models.MigrationOutcome  `json:"outcome"`
	Validation *models.ValidationResult `json:"validation"`
}

// TablesHandler serves table and column management.
type TablesHandler struct {
	registry  services.SchemaRegistry
	validator services.SchemaValidationService
	builder   services.TableBuilder
	migrator  services.SchemaMigrationService
	data      services.TableDataService
	formulas  services.FormulaService
	logger    *zap.Logger
}

// NewTablesHandler creates a tables handler.
func NewTablesHandler(
	registry services.SchemaRegistry,
	validator services.SchemaValidationService,
	builder services.TableBuilder,
	migrator services.SchemaMigrationService,
	data services.TableDataService,
	formulas services.FormulaService,
	logger *zap.Logger,
) *TablesHandler {
	return &TablesHandler{
		registry:  registry,
		validator: validator,
		builder:   builder,
		migrator:  migrator,
		data:      data,
		formulas:  formulas,
		logger:    logger.Named("tables-handler"),
	}
}

// RegisterRoutes registers the tables handler's routes on the given mux.
// changeLog wraps every route that mutates a schema.
func (h *TablesHandler) RegisterRoutes(mux *http.ServeMux, changeLog func(http.Handler) http.Handler) {
	base := "/api/tables"
	column := base + "/{tid}/columns/{cid}"

	mux.HandleFunc("GET "+base, h.List)
	mux.Handle("POST "+base, changeLog(http.HandlerFunc(h.Create)))
	mux.HandleFunc("GET "+base+"/{tid}", h.Get)
	mux.Handle("DELETE "+base+"/{tid}", changeLog(http.HandlerFunc(h.Drop)))

	mux.Handle("POST "+base+"/{tid}/columns", changeLog(http.HandlerFunc(h.AddColumn)))
	mux.Handle("DELETE "+column, changeLog(http.HandlerFunc(h.RemoveColumn)))
	mux.HandleFunc("POST "+column+"/validate", h.ValidateChange)
	mux.Handle("POST "+column+"/apply", changeLog(http.HandlerFunc(h.ApplyChange)))
	mux.HandleFunc("GET "+column+"/choices", h.Choices)

	mux.HandleFunc("POST "+base+"/{tid}/formula/test", h.TestFormula)
	mux.HandleFunc("POST "+base+"/{tid}/formula/validate", h.ValidateFormula)
	mux.HandleFunc("GET "+base+"/{tid}/migrations", h.History)
}

// List handles GET /api/tables
func (h *TablesHandler) List(w http.ResponseWriter, r *http.Request) {
	tables, err := h.registry.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "Failed to list tables", err)
		return
	}
	writeData(w, h.logger, http.StatusOK, TableListResponse{Tables: tables, Total: len(tables)})
}

// Get handles GET /api/tables/{tid}
func (h *TablesHandler) Get(w http.ResponseWriter, r *http.Request) {
	tableID, ok := ParseTableID(w, r, h.logger)
	if !ok {
		return
	}

	schema, err := h.registry.Get(r.Context(), tableID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to get table", err, zap.String("table_id", tableID.String()))
		return
	}
	writeData(w, h.logger, http.StatusOK, schema)
}

// Create handles POST /api/tables
func (h *TablesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTableRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if req.Name == "" && req.DatabaseTableName == "" {
		writeBadRequest(w, h.logger, "name or database_table_name is required")
		return
	}

	schema := &models.TableSchema{
		Table: models.Table{
			Name:              req.Name,
			DatabaseTableName: req.DatabaseTableName,
			TitleColumn:       req.TitleColumn,
			Searchable:        req.Searchable,
		},
		Columns: req.Columns,
	}
	services.PrepareTableSchema(schema)

	ctx := r.Context()
	approval, validation, err := h.validator.Approve(ctx, schema, services.CreateTableChange(schema))
	if err != nil {
		writeServiceError(w, h.logger, "Failed to validate new table", err, zap.String("table", schema.Table.DatabaseTableName))
		return
	}
	if approval == nil {
		h.writeRejected(w, validation)
		return
	}

	res, err := h.builder.CreateTable(ctx, schema, approval)
	h.writeResult(w, res, err, http.StatusCreated, zap.String("table", schema.Table.DatabaseTableName))
}

// Drop handles DELETE /api/tables/{tid}?force=true
func (h *TablesHandler) Drop(w http.ResponseWriter, r *http.Request) {
	tableID, ok := ParseTableID(w, r, h.logger)
	if !ok {
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	change := models.Change{Kind: models.ChangeDropTable, Force: force}
	h.approveAndRun(w, r, tableID, change, h.builder.DropTable)
}

// AddColumn handles POST /api/tables/{tid}/columns. A column with a
// computed_formula becomes a generated column.
func (h *TablesHandler) AddColumn(w http.ResponseWriter, r *http.Request) {
	tableID, ok := ParseTableID(w, r, h.logger)
	if !ok {
		return
	}
	var col models.Column
	if !decodeBody(w, r, h.logger, &col) {
		return
	}

	change := models.Change{Kind: models.ChangeAddColumn, NewColumn: &col}
	run := h.builder.AddColumn
	if col.IsComputed() {
		change.Kind = models.ChangeAddComputedColumn
		run = h.migrator.Apply
	}
	h.approveAndRun(w, r, tableID, change, run)
}

// RemoveColumn handles DELETE /api/tables/{tid}/columns/{cid}
func (h *TablesHandler) RemoveColumn(w http.ResponseWriter, r *http.Request) {
	tableID, columnID, ok := ParseTableAndColumnIDs(w, r, h.logger)
	if !ok {
		return
	}
	name, ok := h.columnName(w, r, tableID, columnID)
	if !ok {
		return
	}

	change := models.Change{Kind: models.ChangeRemoveColumn, Column: name}
	h.approveAndRun(w, r, tableID, change, h.builder.RemoveColumn)
}

// ValidateChange handles POST /api/tables/{tid}/columns/{cid}/validate. It
// reports what applying the change would do without changing anything.
func (h *TablesHandler) ValidateChange(w http.ResponseWriter, r *http.Request) {
	tableID, change, ok := h.columnChange(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	schema, err := h.registry.Get(ctx, tableID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to load table", err, zap.String("table_id", tableID.String()))
		return
	}
	res, err := h.validator.ValidateChange(ctx, schema, change)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to validate change", err,
			zap.String("table_id", tableID.String()),
			zap.String("kind", string(change.Kind)))
		return
	}
	writeData(w, h.logger, http.StatusOK, res)
}

// ApplyChange handles POST /api/tables/{tid}/columns/{cid}/apply. The
// change is validated and, when valid, applied in the same request.
func (h *TablesHandler) ApplyChange(w http.ResponseWriter, r *http.Request) {
	tableID, change, ok := h.columnChange(w, r)
	if !ok {
		return
	}

	run := h.migrator.Apply
	if change.Kind == models.ChangeRemoveColumn {
		run = h.builder.RemoveColumn
	}
	h.approveAndRun(w, r, tableID, change, run)
}

// Choices handles GET /api/tables/{tid}/columns/{cid}/choices?limit=N
func (h *TablesHandler) Choices(w http.ResponseWriter, r *http.Request) {
	tableID, columnID, ok := ParseTableAndColumnIDs(w, r, h.logger)
	if !ok {
		return
	}
	limit := services.DefaultChoiceLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, h.logger, "limit must be a positive integer")
			return
		}
		limit = n
	}

	choices, err := h.data.Choices(r.Context(), tableID, columnID, limit)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to list choices", err,
			zap.String("table_id", tableID.String()),
			zap.String("column_id", columnID.String()))
		return
	}
	writeData(w, h.logger, http.StatusOK, choices)
}

// TestFormula handles POST /api/tables/{tid}/formula/test
func (h *TablesHandler) TestFormula(w http.ResponseWriter, r *http.Request) {
	tableID, req, ok := h.formulaRequest(w, r)
	if !ok {
		return
	}
	res, err := h.formulas.TestFormula(r.Context(), tableID, req.Formula)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to test formula", err, zap.String("table_id", tableID.String()))
		return
	}
	writeData(w, h.logger, http.StatusOK, res)
}

// ValidateFormula handles POST /api/tables/{tid}/formula/validate
func (h *TablesHandler) ValidateFormula(w http.ResponseWriter, r *http.Request) {
	tableID, req, ok := h.formulaRequest(w, r)
	if !ok {
		return
	}
	res, err := h.formulas.ValidateFormula(r.Context(), tableID, req.Formula)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to validate formula", err, zap.String("table_id", tableID.String()))
		return
	}
	writeData(w, h.logger, http.StatusOK, res)
}

// History handles GET /api/tables/{tid}/migrations?limit=N
func (h *TablesHandler) History(w http.ResponseWriter, r *http.Request) {
	tableID, ok := ParseTableID(w, r, h.logger)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.migrator.History(r.Context(), tableID, limit)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to read migration history", err, zap.String("table_id", tableID.String()))
		return
	}
	writeData(w, h.logger, http.StatusOK, entries)
}

type runChange func(ctx context.Context, tableID uuid.UUID, change models.Change, approval *services.Approval) (*models.MigrationResult, error)

// approveAndRun validates change against the current schema and runs it
// with the resulting approval. A blocked change is answered with 422 and
// the validation result.
func (h *TablesHandler) approveAndRun(w http.ResponseWriter, r *http.Request, tableID uuid.UUID, change models.Change, run runChange) {
	ctx := r.Context()
	fields := []zap.Field{zap.String("table_id", tableID.String()), zap.String("kind", string(change.Kind))}

	schema, err := h.registry.Get(ctx, tableID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to load table", err, fields...)
		return
	}
	approval, validation, err := h.validator.Approve(ctx, schema, change)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to validate change", err, fields...)
		return
	}
	if approval == nil {
		h.writeRejected(w, validation)
		return
	}

	res, err := run(ctx, tableID, change, approval)
	h.writeResult(w, res, err, http.StatusOK, fields...)
}

func (h *TablesHandler) writeRejected(w http.ResponseWriter, validation *models.ValidationResult) {
	resp := ApiResponse{
		Success: false,
		Error:   "validation_failed",
		Data:    ChangeRejectedResponse{Outcome: models.OutcomeBlocked, Validation: validation},
	}
	if err := WriteJSON(w, http.StatusUnprocessableEntity, resp); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeResult answers with the migration result. Failed and rolled back
// changes are still a completed request; the outcome is in the body.
func (h *TablesHandler) writeResult(w http.ResponseWriter, res *models.MigrationResult, err error, okStatus int, fields ...zap.Field) {
	if err != nil {
		writeServiceError(w, h.logger, "Schema change was not run", err, fields...)
		return
	}
	status := okStatus
	if !res.Success {
		status = http.StatusOK
	}
	resp := ApiResponse{Success: res.Success, Data: res, Error: res.Error, Message: res.Message}
	if err := WriteJSON(w, status, resp); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// columnChange decodes a change for the column named by the path. The
// column in the path always wins over one in the body.
func (h *TablesHandler) columnChange(w http.ResponseWriter, r *http.Request) (uuid.UUID, models.Change, bool) {
	tableID, columnID, ok := ParseTableAndColumnIDs(w, r, h.logger)
	if !ok {
		return uuid.Nil, models.Change{}, false
	}
	var change models.Change
	if !decodeBody(w, r, h.logger, &change) {
		return uuid.Nil, models.Change{}, false
	}
	switch change.Kind {
	case models.ChangeCreateTable, models.ChangeDropTable, models.ChangeAddColumn, models.ChangeAddComputedColumn:
		writeBadRequest(w, h.logger, string(change.Kind)+" is not a column change")
		return uuid.Nil, models.Change{}, false
	case "":
		writeBadRequest(w, h.logger, "kind is required")
		return uuid.Nil, models.Change{}, false
	}

	name, ok := h.columnName(w, r, tableID, columnID)
	if !ok {
		return uuid.Nil, models.Change{}, false
	}
	change.Column = name
	return tableID, change, true
}

func (h *TablesHandler) columnName(w http.ResponseWriter, r *http.Request, tableID, columnID uuid.UUID) (string, bool) {
	schema, err := h.registry.Get(r.Context(), tableID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to load table", err, zap.String("table_id", tableID.String()))
		return "", false
	}
	for _, c := range schema.Columns {
		if c.ID == columnID {
			return c.ColumnName, true
		}
	}
	writeServiceError(w, h.logger, "Column not found", apperrors.ErrNotFound,
		zap.String("table_id", tableID.String()),
		zap.String("column_id", columnID.String()))
	return "", false
}

func (h *TablesHandler) formulaRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, FormulaRequest, bool) {
	var req FormulaRequest
	tableID, ok := ParseTableID(w, r, h.logger)
	if !ok {
		return uuid.Nil, req, false
	}
	if !decodeBody(w, r, h.logger, &req) {
		return uuid.Nil, req, false
	}
	if req.Formula == "" {
		writeBadRequest(w, h.logger, "formula is required")
		return uuid.Nil, req, false
	}
	return tableID, req, true
}
