// internal/model/entity.go
//
// Runtime entity descriptors.
//
// Context
// -------
// An Entity is the table-shaped descriptor the CRUD engine builds its
// parameterized queries from: resolved primary key, the single surviving
// auto-increment column, the soft-delete flag, and a column set for input
// filtering.  Entities carry no connection handles and are immutable after
// Build, so they are safe to share across requests.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package model

import (
	"strings"

	"github.com/yanizio/tabula/internal/schema"
)

// SoftDeleteColumn is the sentinel column whose presence activates the
// implicit "active rows only" listing filter.
const SoftDeleteColumn = "deleted_at"

// Entity describes one table for the generic CRUD engine.
type Entity struct {
	Table         string
	Columns       []schema.ColumnInfo
	PrimaryKey    string // "" when no usable single-column key exists
	AutoIncrement string // "" when none
	SoftDelete    bool

	byName map[string]*schema.ColumnInfo
}

// HasPointOps reports whether GET/PUT/PATCH/DELETE-by-id are possible.
func (e *Entity) HasPointOps() bool { return e.PrimaryKey != "" }

// Column returns the descriptor for name, or nil.
func (e *Entity) Column(name string) *schema.ColumnInfo {
	return e.byName[name]
}

// WritableColumns filters an input map down to real, writable columns.
// The auto-increment column is never writable; unknown keys are reported
// so handlers can reject them as validation errors.
func (e *Entity) WritableColumns(input map[string]any) (cols []string, vals []any, unknown []string) {
	for name, v := range input {
		c := e.byName[name]
		switch {
		case c == nil:
			unknown = append(unknown, name)
		case c.Name == e.AutoIncrement:
			// silently dropped; the database assigns it
		default:
			cols = append(cols, name)
			vals = append(vals, v)
		}
	}
	return cols, vals, unknown
}

// currentTimestampSentinels are catalog default spellings that mean "now".
var currentTimestampSentinels = []string{
	"current_timestamp", "current_timestamp()", "now()",
	"curdate()", "localtimestamp", "localtimestamp()",
}

// DefaultExpr resolves a column default.  Temporal columns whose default
// looks like a current-timestamp sentinel yield isExpr == true and the
// database-native expression; every other default passes through as a
// literal.  ok == false means the column has no default.
func (e *Entity) DefaultExpr(column string) (value string, isExpr bool, ok bool) {
	c := e.byName[column]
	if c == nil || c.Default == nil {
		return "", false, false
	}
	def := *c.Default
	if c.SemanticType == schema.TypeTemporal {
		low := strings.ToLower(strings.TrimSpace(def))
		for _, s := range currentTimestampSentinels {
			if low == s || strings.HasPrefix(low, "current_timestamp(") {
				return "CURRENT_TIMESTAMP", true, true
			}
		}
	}
	return def, false, true
}
