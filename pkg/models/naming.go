package models

import (
	"path/filepath"
	"strings"

	"github.com/jinzhu/inflection"

	sqlutil "github.com/ekaya-inc/ekaya-schema/pkg/sql"
)

// DatabaseTableName derives a physical table name from a human label:
// "Order Item" -> "order_items". File extensions are dropped so spreadsheet
// file names can be passed directly.
func DatabaseTableName(label string) string {
	label = strings.TrimSpace(label)
	if ext := filepath.Ext(label); ext != "" && !strings.Contains(ext, " ") {
		label = strings.TrimSuffix(label, ext)
	}
	label = strings.NewReplacer("-", " ", ".", " ").Replace(label)
	words := strings.Fields(label)
	if len(words) > 0 {
		words[len(words)-1] = inflection.Plural(words[len(words)-1])
	}
	return sqlutil.ColumnNameFromLabel(strings.Join(words, " "))
}

// TableTitle derives a singular display name from a label: "order_items" ->
// "Order Item".
func TableTitle(label string) string {
	label = strings.TrimSpace(label)
	if ext := filepath.Ext(label); ext != "" && !strings.Contains(ext, " ") {
		label = strings.TrimSuffix(label, ext)
	}
	words := strings.Fields(strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(label))
	for i, w := range words {
		if i == len(words)-1 {
			w = inflection.Singular(w)
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Slug returns the URL slug for a database table name.
func Slug(databaseTableName string) string {
	return strings.ReplaceAll(databaseTableName, "_", "-")
}
