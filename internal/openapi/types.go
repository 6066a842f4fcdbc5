package openapi

import "strings"

// TypeMapping maps a SQL column type to an OpenAPI type/format pair.
type TypeMapping struct {
	Type   string // OpenAPI type: string, integer, number, boolean
	Format string // OpenAPI format: int32, int64, date-time, ...
}

// Column describes one field of a resource by its SQL type, so the documented
// schema follows the tables the store creates.
type Column struct {
	Name        string
	SQLType     string
	Nullable    bool
	Description string
}

// dbTypeToOpenAPI covers the column types used by the store migrations on
// every supported backend (case-insensitive lookup).
var dbTypeToOpenAPI = map[string]TypeMapping{
	// Integer types
	"int":       {"integer", "int32"},
	"integer":   {"integer", "int32"},
	"smallint":  {"integer", "int32"},
	"bigint":    {"integer", "int64"},
	"serial":    {"integer", "int32"},
	"bigserial": {"integer", "int64"},

	// String types
	"varchar":           {"string", ""},
	"character varying": {"string", ""},
	"nvarchar":          {"string", ""},
	"text":              {"string", ""},

	// Date/time types
	"timestamp":                   {"string", "date-time"},
	"timestamptz":                 {"string", "date-time"},
	"timestamp without time zone": {"string", "date-time"},
	"datetime":                    {"string", "date-time"},
	"datetime2":                   {"string", "date-time"},

	// Boolean
	"boolean": {"boolean", ""},
	"bool":    {"boolean", ""},
	"bit":     {"boolean", ""},
}

// MapDBType converts a database column type to an OpenAPI type mapping.
// Falls back to {"string", ""} for unknown types.
func MapDBType(dbType string) TypeMapping {
	normalized := strings.ToLower(strings.TrimSpace(dbType))

	// "varchar(255)" -> "varchar", "timestamp(6)" -> "timestamp"
	if idx := strings.IndexByte(normalized, '('); idx >= 0 {
		normalized = strings.TrimSpace(normalized[:idx])
	}
	normalized = strings.TrimSpace(strings.TrimSuffix(normalized, " unsigned"))

	if m, ok := dbTypeToOpenAPI[normalized]; ok {
		return m
	}
	return TypeMapping{"string", ""}
}
