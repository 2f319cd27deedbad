package models

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-schema/pkg/coltype"
	sqlutil "github.com/ekaya-inc/ekaya-schema/pkg/sql"
)

// TableManifest is a YAML document declaring tables to materialize at startup.
//
//	tables:
//	  - name: Customer
//	    title_column: name
//	    columns:
//	      - display_name: Name
//	        type: single_line_text
//	        required: true
//	      - display_name: Total
//	        type: currency
//	        computed: "[price] * [qty]"
type TableManifest struct {
	Tables []ManifestTable `yaml:"tables"`
}

// ManifestTable declares one table. Table defaults to the plural snake_case
// form of Name.
type ManifestTable struct {
	Name        string           `yaml:"name"`
	Table       string           `yaml:"table"`
	TitleColumn string           `yaml:"title_column"`
	Searchable  bool             `yaml:"searchable"`
	Protected   bool             `yaml:"protected"`
	Columns     []ManifestColumn `yaml:"columns"`
}

// ManifestColumn declares one column. Column defaults to the snake_case form
// of DisplayName.
type ManifestColumn struct {
	DisplayName string   `yaml:"display_name"`
	Column      string   `yaml:"column"`
	Type        string   `yaml:"type"`
	Required    bool     `yaml:"required"`
	Unique      bool     `yaml:"unique"`
	Searchable  bool     `yaml:"searchable"`
	Default     *string  `yaml:"default"`
	MaxLength   *int     `yaml:"max_length"`
	MinValue    *float64 `yaml:"min_value"`
	MaxValue    *float64 `yaml:"max_value"`
	Formula     *string  `yaml:"formula"`
	Computed    *string  `yaml:"computed"`
}

// LoadTableManifestFile reads a manifest from path.
func LoadTableManifestFile(path string) ([]TableSchema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()
	return LoadTableManifest(f)
}

// LoadTableManifest decodes a manifest into table schemas with fresh ids.
// Unknown YAML keys are rejected.
func LoadTableManifest(r io.Reader) ([]TableSchema, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m TableManifest
	if err := dec.Decode(&m); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	schemas := make([]TableSchema, 0, len(m.Tables))
	seen := make(map[string]bool)
	for i, mt := range m.Tables {
		schema, err := mt.toSchema()
		if err != nil {
			return nil, fmt.Errorf("table %d (%s): %w", i+1, mt.Name, err)
		}
		if seen[schema.Table.DatabaseTableName] {
			return nil, fmt.Errorf("table %s declared twice", schema.Table.DatabaseTableName)
		}
		seen[schema.Table.DatabaseTableName] = true
		schemas = append(schemas, schema)
	}
	return schemas, nil
}

func (mt ManifestTable) toSchema() (TableSchema, error) {
	if mt.Name == "" {
		return TableSchema{}, fmt.Errorf("name is required")
	}
	dbName := mt.Table
	if dbName == "" {
		dbName = DatabaseTableName(mt.Name)
	}
	if err := sqlutil.ValidateIdentifier(dbName); err != nil {
		return TableSchema{}, err
	}

	table := Table{
		ID:                uuid.New(),
		Name:              mt.Name,
		DatabaseTableName: dbName,
		TitleColumn:       mt.TitleColumn,
		Searchable:        mt.Searchable,
		IsProtected:       mt.Protected,
		Slug:              Slug(dbName),
	}

	schema := TableSchema{Table: table}
	for pos, mc := range mt.Columns {
		t, err := coltype.Parse(mc.Type)
		if err != nil {
			return TableSchema{}, fmt.Errorf("column %s: %w", mc.DisplayName, err)
		}
		name := mc.Column
		if name == "" {
			name = sqlutil.ColumnNameFromLabel(mc.DisplayName)
		}
		display := mc.DisplayName
		if display == "" {
			display = name
		}
		schema.Columns = append(schema.Columns, Column{
			ID:              uuid.New(),
			TableID:         table.ID,
			DisplayName:     display,
			ColumnName:      name,
			LogicalType:     t,
			Required:        mc.Required,
			IsUnique:        mc.Unique,
			IsTitle:         name == mt.TitleColumn,
			Searchable:      mc.Searchable,
			Position:        pos,
			DefaultValue:    mc.Default,
			MaxLength:       mc.MaxLength,
			MinValue:        mc.MinValue,
			MaxValue:        mc.MaxValue,
			Formula:         mc.Formula,
			ComputedFormula: mc.Computed,
		})
	}
	if err := schema.Validate(); err != nil {
		return TableSchema{}, err
	}
	return schema, nil
}
