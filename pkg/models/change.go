package models

import (
	"encoding/json"

	"github.com/ekaya-inc/ekaya-schema/pkg/coltype"
)

// ChangeKind names a schema mutation.
type ChangeKind string

const (
	ChangeCreateTable          ChangeKind = "create_table"
	ChangeDropTable            ChangeKind = "drop_table"
	ChangeAddColumn            ChangeKind = "add_column"
	ChangeRemoveColumn         ChangeKind = "remove_column"
	ChangeRenameColumn         ChangeKind = "rename_column"
	ChangeColumnType           ChangeKind = "change_type"
	ChangeNullConstraint       ChangeKind = "change_null"
	ChangeDefaultValue         ChangeKind = "change_default"
	ChangeRenameChoice         ChangeKind = "rename_choice"
	ChangeDeleteChoice         ChangeKind = "delete_choice"
	ChangeMergeChoices         ChangeKind = "merge_choices"
	ChangeAddComputedColumn    ChangeKind = "add_computed_column"
	ChangeUpdateComputedColumn ChangeKind = "update_computed_column"
)

// ConversionStrategy decides what happens to values that fail conversion
// during a retype.
type ConversionStrategy string

const (
	StrategyClearInvalid  ConversionStrategy = "clear_invalid"   // unconvertible values become NULL
	StrategyFailOnInvalid ConversionStrategy = "fail_on_invalid" // any unconvertible value blocks the change
)

// Valid reports whether s is a known strategy.
func (s ConversionStrategy) Valid() bool {
	return s == StrategyClearInvalid || s == StrategyFailOnInvalid
}

// Change is one requested schema mutation. Which fields are read depends on
// Kind; the rest are ignored.
type Change struct {
	Kind ChangeKind `json:"kind"`

	// Column is the column_name of the existing column being changed.
	Column string `json:"column,omitempty"`

	// NewColumn is the column to create for add_column and
	// add_computed_column.
	NewColumn *Column `json:"new_column,omitempty"`

	// Columns is the full column list for create_table.
	Columns []Column `json:"columns,omitempty"`

	NewName  string             `json:"new_name,omitempty"`
	NewType  coltype.Type       `json:"new_type,omitempty"`
	Strategy ConversionStrategy `json:"strategy,omitempty"`
	Required *bool              `json:"required,omitempty"`

	// Default is the new default for change_default; nil or "" drops it.
	Default *string `json:"default,omitempty"`

	// Choice operations.
	OldValue    string   `json:"old_value,omitempty"`
	NewValue    string   `json:"new_value,omitempty"`
	Replacement *string  `json:"replacement,omitempty"`
	Sources     []string `json:"sources,omitempty"`
	Target      string   `json:"target,omitempty"`

	// Formula is the computed formula for update_computed_column.
	Formula string `json:"formula,omitempty"`

	// Force allows dropping a table that still has rows.
	Force bool `json:"force,omitempty"`
}

// Fingerprint returns a stable identity for the change, used to bind an
// approval to exactly the change that was validated.
func (c Change) Fingerprint() string {
	b, err := json.Marshal(c)
	if err != nil {
		return string(c.Kind)
	}
	return string(b)
}

// Destructive reports whether the change can remove data.
func (c Change) Destructive() bool {
	switch c.Kind {
	case ChangeDropTable, ChangeRemoveColumn, ChangeColumnType, ChangeDeleteChoice:
		return true
	}
	return false
}
