package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseTableID extracts and validates the table ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: tid
func ParseTableID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "tid", "invalid_table_id", "Invalid table ID format", logger)
}

// ParseColumnID extracts and validates the column ID from the request path.
// Expects path parameter: cid
func ParseColumnID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "cid", "invalid_column_id", "Invalid column ID format", logger)
}

// ParseTableAndColumnIDs extracts and validates both table and column IDs.
// Expects path parameters: tid, cid
func ParseTableAndColumnIDs(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, uuid.UUID, bool) {
	tableID, ok := ParseTableID(w, r, logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	columnID, ok := ParseColumnID(w, r, logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	return tableID, columnID, true
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}
