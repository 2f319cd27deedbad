package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-schema/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-schema/pkg/services"
)

// ImportRequest carries spreadsheet rows. Rows may be sent as string cells
// or as JSON records keyed by header; records are projected onto Headers.
type ImportRequest struct {
	FileName string                       `json:"file_name,omitempty"`
	Headers  []string                     `json:"headers"`
	Rows     [][]string                   `json:"rows,omitempty"`
	Records  []map[string]json.RawMessage `json:"records,omitempty"`
}

func (req *ImportRequest) cells() [][]string {
	if len(req.Records) == 0 {
		return req.Rows
	}
	rows := make([][]string, 0, len(req.Rows)+len(req.Records))
	rows = append(rows, req.Rows...)
	for _, rec := range req.Records {
		rows = append(rows, jsonutil.RowValues(rec, req.Headers))
	}
	return rows
}

// DetectRequest for POST /api/detect.
type DetectRequest struct {
	Values []string `json:"values"`
}

// ImportHandler serves type detection and bulk import.
type ImportHandler struct {
	imports services.ImportService
	logger  *zap.Logger
}

// NewImportHandler creates an import handler.
func NewImportHandler(imports services.ImportService, logger *zap.Logger) *ImportHandler {
	return &ImportHandler{
		imports: imports,
		logger:  logger.Named("import-handler"),
	}
}

// RegisterRoutes registers the import handler's routes on the given mux.
func (h *ImportHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/imports/analyze", h.Analyze)
	mux.HandleFunc("POST /api/imports/{tid}", h.Import)
	mux.HandleFunc("POST /api/detect", h.Detect)
}

// Analyze handles POST /api/imports/analyze
func (h *ImportHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !h.decodeImport(w, r, &req) {
		return
	}
	writeData(w, h.logger, http.StatusOK, h.imports.Analyze(req.FileName, req.Headers, req.cells()))
}

// Import handles POST /api/imports/{tid}
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	tableID, ok := ParseTableID(w, r, h.logger)
	if !ok {
		return
	}
	var req ImportRequest
	if !h.decodeImport(w, r, &req) {
		return
	}

	res, err := h.imports.Import(r.Context(), tableID, req.Headers, req.cells())
	if err != nil {
		writeServiceError(w, h.logger, "Import failed", err, zap.String("table_id", tableID.String()))
		return
	}
	h.logger.Info("Imported rows",
		zap.String("table_id", tableID.String()),
		zap.Int("imported", res.ImportedCount),
		zap.Int("failed", res.FailedCount))
	writeData(w, h.logger, http.StatusOK, res)
}

// Detect handles POST /api/detect
func (h *ImportHandler) Detect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	writeData(w, h.logger, http.StatusOK, h.imports.DetectType(req.Values))
}

func (h *ImportHandler) decodeImport(w http.ResponseWriter, r *http.Request, req *ImportRequest) bool {
	if !decodeBody(w, r, h.logger, req) {
		return false
	}
	if len(req.Headers) == 0 {
		writeBadRequest(w, h.logger, "headers are required")
		return false
	}
	return true
}
