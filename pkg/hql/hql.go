// Package hql compiles field descriptors, predicates and event bindings into
// HiveQL text. The package is pure string processing: it never connects to a
// warehouse and never parses the params JSON column it generates extractions
// for.
package hql

import (
	"fmt"
	"strings"

	"github.com/ieu-analytics/event2table/pkg/models"
)

// castTypes maps logical base types to the HQL CAST target. Types absent from
// the map are projected without a cast.
var castTypes = map[models.BaseType]string{
	models.BaseTypeInt:     "BIGINT",
	models.BaseTypeBigint:  "BIGINT",
	models.BaseTypeFloat:   "DOUBLE",
	models.BaseTypeDecimal: "DOUBLE",
}

// CastType returns the HQL cast target for a base type and whether one applies.
func CastType(t models.BaseType) (string, bool) {
	ct, ok := castTypes[t]
	return ct, ok
}

// QuoteString renders a single-quoted HQL string literal, doubling any
// embedded single quotes.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// BacktickIdent wraps an identifier in backticks.
func BacktickIdent(name string) string {
	return "`" + name + "`"
}

// jsonPathFor returns the JSON path for a param field, defaulting to
// "$.<field_name>" when no override is present.
func jsonPathFor(f models.FieldDescriptor) (string, error) {
	path := f.JSONPath
	if path == "" {
		if f.FieldName == "" {
			return "", fmt.Errorf("param field has neither a name nor a json path")
		}
		path = "$." + f.FieldName
	}
	if strings.Contains(path, "'") {
		return "", fmt.Errorf("json path must not contain single quotes")
	}
	return path, nil
}
