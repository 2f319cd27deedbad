package models

import "github.com/ekaya-inc/ekaya-schema/pkg/coltype"

// ImportColumn is the detected shape of one imported header.
type ImportColumn struct {
	Header      string       `json:"header"`
	ColumnName  string       `json:"column_name"`
	LogicalType coltype.Type `json:"logical_type"`
	Confidence  float64      `json:"confidence"`
	MaxLength   int          `json:"max_length"`
}

// ImportAnalysis is the result of analyzing headers and sample rows.
type ImportAnalysis struct {
	SuggestedTableName string         `json:"suggested_table_name"`
	SuggestedTitle     string         `json:"suggested_title"`
	Columns            []ImportColumn `json:"columns"`
	RowCount           int            `json:"row_count"`
}

// FailedRow is an input row that could not be converted.
type FailedRow struct {
	Row    int    `json:"row"` // 1-based, excluding the header
	Column string `json:"column"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	ImportedCount int         `json:"imported_count"`
	FailedCount   int         `json:"failed_count"`
	FailedRows    []FailedRow `json:"failed_rows"`
}
