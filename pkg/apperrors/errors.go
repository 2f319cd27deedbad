package apperrors

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidIdentifier  = errors.New("invalid identifier")
	ErrValidationFailed   = errors.New("validation failed")
	ErrApprovalConsumed   = errors.New("approval already used")
	ErrApprovalMismatch   = errors.New("approval does not match the requested change")
	ErrSchemaBusy         = errors.New("another schema change is in progress for this table")
	ErrTableProtected     = errors.New("table is protected")
	ErrUnsupportedDialect = errors.New("unsupported datasource type")
)
