package models

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// MigrationOutcome is the terminal state of an attempted schema change.
type MigrationOutcome string

const (
	OutcomeApplied    MigrationOutcome = "applied"
	OutcomeFailed     MigrationOutcome = "failed"
	OutcomeRolledBack MigrationOutcome = "rolled_back" // a multi-step change failed and the prior state was restored
	OutcomeBlocked    MigrationOutcome = "blocked"     // validation rejected the change; nothing ran
)

// MigrationResult is returned by every mutating operation.
type MigrationResult struct {
	Success      bool             `json:"success"`
	Outcome      MigrationOutcome `json:"outcome"`
	Message      string           `json:"message,omitempty"`
	Error        string           `json:"error,omitempty"`
	AffectedRows *int64           `json:"affected_rows,omitempty"`
	Warnings     []string         `json:"warnings,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(message string, affected *int64, warnings []string) *MigrationResult {
	return &MigrationResult{
		Success:      true,
		Outcome:      OutcomeApplied,
		Message:      message,
		AffectedRows: affected,
		Warnings:     warnings,
	}
}

// Failed builds a failed result.
func Failed(outcome MigrationOutcome, err error) *MigrationResult {
	return &MigrationResult{
		Success: false,
		Outcome: outcome,
		Error:   err.Error(),
	}
}

// LogKind is the level of a migration log entry.
type LogKind string

const (
	LogSuccess LogKind = "success"
	LogError   LogKind = "error"
)

// MigrationLogEntry is one append-only audit record.
type MigrationLogEntry struct {
	ID           uuid.UUID  `json:"id"`
	TableID      uuid.UUID  `json:"table_id"`
	TableName    string     `json:"table_name"`
	Operation    ChangeKind `json:"operation"`
	Kind         LogKind    `json:"kind"`
	Message      string     `json:"message"`
	AffectedRows *int64     `json:"affected_rows,omitempty"`
	CreatedAt    time.Time  `json:"timestamp"`
}

// EntryFromResult converts a result into a log entry.
func EntryFromResult(table *Table, op ChangeKind, res *MigrationResult) MigrationLogEntry {
	entry := MigrationLogEntry{
		ID:           uuid.New(),
		TableID:      table.ID,
		TableName:    table.DatabaseTableName,
		Operation:    op,
		Kind:         LogSuccess,
		Message:      res.Message,
		AffectedRows: res.AffectedRows,
		CreatedAt:    time.Now().UTC(),
	}
	if !res.Success {
		entry.Kind = LogError
		entry.Message = res.Error
		if res.Outcome == OutcomeRolledBack {
			entry.Message = "rolled back: " + res.Error
		}
	}
	return entry
}

// MigrationLog is an in-memory append-only log. Entries are never modified
// after Append.
type MigrationLog struct {
	mu      sync.RWMutex
	entries []MigrationLogEntry
}

// Append adds an entry.
func (l *MigrationLog) Append(e MigrationLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Entries returns a copy of all entries, oldest first.
func (l *MigrationLog) Entries() []MigrationLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]MigrationLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// EntriesFor returns the entries for one table, oldest first.
func (l *MigrationLog) EntriesFor(tableID uuid.UUID) []MigrationLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []MigrationLogEntry
	for _, e := range l.entries {
		if e.TableID == tableID {
			out = append(out, e)
		}
	}
	return out
}
