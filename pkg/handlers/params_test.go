package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestParseTableID(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name       string
		pathValue  string
		wantOK     bool
		wantStatus int
		wantError  string
	}{
		{
			name:      "valid UUID",
			pathValue: "550e8400-e29b-41d4-a716-446655440000",
			wantOK:    true,
		},
		{
			name:       "invalid UUID",
			pathValue:  "customers",
			wantOK:     false,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_table_id",
		},
		{
			name:       "empty UUID",
			pathValue:  "",
			wantOK:     false,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_table_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.SetPathValue("tid", tt.pathValue)
			rec := httptest.NewRecorder()

			id, ok := ParseTableID(rec, req, logger)

			if ok != tt.wantOK {
				t.Errorf("ParseTableID() ok = %v, want %v", ok, tt.wantOK)
			}
			if tt.wantOK {
				if id.String() != tt.pathValue {
					t.Errorf("ParseTableID() id = %v, want %v", id, tt.pathValue)
				}
				return
			}

			if id != uuid.Nil {
				t.Errorf("ParseTableID() id = %v, want uuid.Nil", id)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("ParseTableID() status = %v, want %v", rec.Code, tt.wantStatus)
			}
			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["error"] != tt.wantError {
				t.Errorf("ParseTableID() error = %v, want %v", resp["error"], tt.wantError)
			}
		})
	}
}

func TestParseTableAndColumnIDs(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name      string
		tableID   string
		columnID  string
		wantOK    bool
		wantError string
	}{
		{
			name:     "both valid",
			tableID:  uuid.New().String(),
			columnID: uuid.New().String(),
			wantOK:   true,
		},
		{
			name:      "invalid column ID",
			tableID:   uuid.New().String(),
			columnID:  "price",
			wantError: "invalid_column_id",
		},
		{
			name:      "both invalid - table checked first",
			tableID:   "products",
			columnID:  "price",
			wantError: "invalid_table_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.SetPathValue("tid", tt.tableID)
			req.SetPathValue("cid", tt.columnID)
			rec := httptest.NewRecorder()

			tableID, columnID, ok := ParseTableAndColumnIDs(rec, req, logger)

			if ok != tt.wantOK {
				t.Fatalf("ParseTableAndColumnIDs() ok = %v, want %v", ok, tt.wantOK)
			}
			if tt.wantOK {
				if tableID.String() != tt.tableID || columnID.String() != tt.columnID {
					t.Errorf("ParseTableAndColumnIDs() = %v, %v", tableID, columnID)
				}
				return
			}

			if tableID != uuid.Nil || columnID != uuid.Nil {
				t.Errorf("ParseTableAndColumnIDs() ids = %v, %v, want uuid.Nil", tableID, columnID)
			}
			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["error"] != tt.wantError {
				t.Errorf("ParseTableAndColumnIDs() error = %v, want %v", resp["error"], tt.wantError)
			}
		})
	}
}
