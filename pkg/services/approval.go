package services

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-schema/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-schema/pkg/models"
)

// Approval is proof that a change passed validation. It can only be created
// by SchemaValidationService.Approve and is consumed by the first
// TableBuilder or SchemaMigrationService call that uses it.
type Approval struct {
	id          uuid.UUID
	tableID     uuid.UUID
	version     time.Time
	fingerprint string
	warnings    []string
	used        atomic.Bool
}

func newApproval(schema *models.TableSchema, change models.Change, result *models.ValidationResult) *Approval {
	return &Approval{
		id:          uuid.New(),
		tableID:     schema.Table.ID,
		version:     schema.Table.UpdatedAt,
		fingerprint: change.Fingerprint(),
		warnings:    append([]string(nil), result.Warnings...),
	}
}

// ID identifies the approval in logs.
func (a *Approval) ID() uuid.UUID {
	return a.id
}

// Warnings returns the validation warnings the change was approved with.
func (a *Approval) Warnings() []string {
	return append([]string(nil), a.warnings...)
}

// Used reports whether the approval has been consumed.
func (a *Approval) Used() bool {
	return a.used.Load()
}

// consume marks the approval used if it was issued for exactly this change
// against this version of the table.
func (a *Approval) consume(schema *models.TableSchema, change models.Change) error {
	if a == nil {
		return apperrors.ErrValidationFailed
	}
	if a.tableID != schema.Table.ID || a.fingerprint != change.Fingerprint() || !a.version.Equal(schema.Table.UpdatedAt) {
		return apperrors.ErrApprovalMismatch
	}
	if !a.used.CompareAndSwap(false, true) {
		return apperrors.ErrApprovalConsumed
	}
	return nil
}
