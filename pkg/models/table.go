package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-schema/pkg/coltype"
	"github.com/ekaya-inc/ekaya-schema/pkg/formula"
)

// Table is the user-authored description of a data model.
// Stored in engine_tables; DatabaseTableName names the physical table.
type Table struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	DatabaseTableName string    `json:"database_table_name"`
	TitleColumn       string    `json:"title_column,omitempty"`
	Searchable        bool      `json:"searchable"`
	IsLive            bool      `json:"is_live"`      // In use by the application; cannot be dropped
	IsProtected       bool      `json:"is_protected"` // Rejects every structural change
	Slug              string    `json:"slug"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Column describes one user column of a Table.
type Column struct {
	ID          uuid.UUID    `json:"id"`
	TableID     uuid.UUID    `json:"table_id"`
	DisplayName string       `json:"display_name"`
	ColumnName  string       `json:"column_name"`
	LogicalType coltype.Type `json:"logical_type"`

	MaxLength    *int     `json:"max_length,omitempty"`
	MinLength    *int     `json:"min_length,omitempty"`
	DefaultValue *string  `json:"default_value,omitempty"`
	MinValue     *float64 `json:"min_value,omitempty"`
	MaxValue     *float64 `json:"max_value,omitempty"`

	Required   bool `json:"required"`
	IsUnique   bool `json:"is_unique"`
	IsTitle    bool `json:"is_title"`
	Searchable bool `json:"searchable"`
	Position   int  `json:"position"`

	LookupTableID       *uuid.UUID `json:"lookup_table_id,omitempty"`
	LookupDisplayColumn *string    `json:"lookup_display_column,omitempty"`

	// Formula is a per-record {Field Name} formula evaluated by the
	// application. Only meaningful for the formula logical type.
	Formula *string `json:"formula,omitempty"`

	// ComputedFormula is a [column_name] formula materialized as a stored
	// generated column in the physical table.
	ComputedFormula *string `json:"computed_formula,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsComputed reports whether the column is a generated column.
func (c *Column) IsComputed() bool {
	return c.ComputedFormula != nil && *c.ComputedFormula != ""
}

// Default returns the default value or "" when none is set.
func (c *Column) Default() string {
	if c.DefaultValue == nil {
		return ""
	}
	return *c.DefaultValue
}

// TableSchema is a table together with its columns in position order.
type TableSchema struct {
	Table   Table    `json:"table"`
	Columns []Column `json:"columns"`
}

// Column returns the column with the given column_name.
func (s *TableSchema) Column(name string) (*Column, bool) {
	for i := range s.Columns {
		if s.Columns[i].ColumnName == name {
			return &s.Columns[i], true
		}
	}
	return nil, false
}

// ColumnByDisplayName returns the column with the given display name,
// preferring an exact match over a case-insensitive one.
func (s *TableSchema) ColumnByDisplayName(name string) (*Column, bool) {
	for i := range s.Columns {
		if s.Columns[i].DisplayName == name {
			return &s.Columns[i], true
		}
	}
	for i := range s.Columns {
		if strings.EqualFold(s.Columns[i].DisplayName, name) {
			return &s.Columns[i], true
		}
	}
	return nil, false
}

// ColumnNames returns column names in position order.
func (s *TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.ColumnName
	}
	return names
}

// Fields returns the display-name bindings used by record formulas.
func (s *TableSchema) Fields() []formula.Field {
	fields := make([]formula.Field, len(s.Columns))
	for i, c := range s.Columns {
		fields[i] = formula.Field{DisplayName: c.DisplayName, ColumnName: c.ColumnName}
	}
	return fields
}

// Validate checks the structural invariants of the schema metadata itself:
// known logical types and unique column names.
func (s *TableSchema) Validate() error {
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if !c.LogicalType.Valid() {
			return fmt.Errorf("column %q has unknown type %q", c.ColumnName, c.LogicalType)
		}
		if seen[c.ColumnName] {
			return fmt.Errorf("duplicate column %q", c.ColumnName)
		}
		seen[c.ColumnName] = true
	}
	return nil
}
