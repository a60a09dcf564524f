// internal/schema/typemap.go
//
// Catalog type → semantic type mapping.
//
// Kept as one explicit lookup table so the mapping is auditable in a
// single place instead of per-type branching scattered through the
// codebase.  Exact matches win; substring rules catch vendor variants
// (mediumint, datetime(6), and friends); anything unmatched is a string.
package schema

import "strings"

// Semantic type names used across the model factory and OpenAPI generator.
const (
	TypeInteger  = "integer"
	TypeNumber   = "number"
	TypeBoolean  = "boolean"
	TypeTemporal = "temporal"
	TypeObject   = "object"
	TypeString   = "string"
)

// exact catalog types first; checked before the substring rules.
var exactTypes = map[string]string{
	"tinyint":   TypeInteger,
	"smallint":  TypeInteger,
	"mediumint": TypeInteger,
	"int":       TypeInteger,
	"integer":   TypeInteger,
	"bigint":    TypeInteger,
	"decimal":   TypeNumber,
	"numeric":   TypeNumber,
	"float":     TypeNumber,
	"double":    TypeNumber,
	"bit":       TypeBoolean,
	"bool":      TypeBoolean,
	"boolean":   TypeBoolean,
	"date":      TypeTemporal,
	"datetime":  TypeTemporal,
	"timestamp": TypeTemporal,
	"time":      TypeTemporal,
	"year":      TypeTemporal,
	"json":      TypeObject,
}

// substring fallbacks, evaluated in order.
var containsTypes = []struct {
	frag     string
	semantic string
}{
	{"int", TypeInteger},
	{"decimal", TypeNumber},
	{"numeric", TypeNumber},
	{"float", TypeNumber},
	{"double", TypeNumber},
	{"date", TypeTemporal},
	{"time", TypeTemporal},
	{"json", TypeObject},
}

// SemanticType maps a raw catalog data type to its semantic class.
func SemanticType(dataType string) string {
	dt := strings.ToLower(strings.TrimSpace(dataType))
	if s, ok := exactTypes[dt]; ok {
		return s
	}
	for _, r := range containsTypes {
		if strings.Contains(dt, r.frag) {
			return r.semantic
		}
	}
	return TypeString
}
