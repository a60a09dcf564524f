// internal/schema/snapshot.go
//
// Normalized schema graph types.
//
// Context
// -------
// A Snapshot is the one source of truth for everything downstream: the
// dynamic model factory, the CRUD engine, and the OpenAPI generator all
// consume this structure and never touch information_schema themselves.
// The Hash field lets consumers detect change without diffing; identical
// table graphs always hash identically (see Fingerprint).
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// ColumnInfo describes one catalog column after normalization.
type ColumnInfo struct {
	Name          string  `json:"name"`
	DataType      string  `json:"data_type"`      // raw catalog type, lowercased
	SemanticType  string  `json:"semantic_type"`  // integer, number, temporal, object, boolean, string
	IsNullable    bool    `json:"is_nullable"`
	Default       *string `json:"default,omitempty"`
	IsAutoIncrement bool  `json:"is_auto_increment"`
	MaxLength     int64   `json:"max_length,omitempty"` // 0 when not applicable
}

// Unique is a named unique constraint and its column list.
type Unique struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// ForeignKey is a single-column referential constraint with its rules.
type ForeignKey struct {
	Name       string `json:"name"`
	Column     string `json:"column"`
	RefTable   string `json:"ref_table"`
	RefColumn  string `json:"ref_column"`
	OnDelete   string `json:"on_delete"`
	OnUpdate   string `json:"on_update"`
}

// TableInfo is one table's normalized description.
//
// Invariants enforced by the introspector:
//   - If a column named `id` exists, PrimaryKey collapses to ["id"] even
//     when the catalog reports a composite key (logged as a warning).
//   - At most one column carries IsAutoIncrement; extras reported by the
//     catalog are demoted deterministically.
type TableInfo struct {
	Name        string       `json:"name"`
	Columns     []ColumnInfo `json:"columns"`
	PrimaryKey  []string     `json:"primary_key"`
	Uniques     []Unique     `json:"uniques,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

// Column returns the named column, or nil.
func (t *TableInfo) Column(name string) *ColumnInfo {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// Snapshot is the full schema graph captured at one point in time.
type Snapshot struct {
	Database    string               `json:"database"`
	GeneratedAt time.Time            `json:"generated_at"`
	Tables      map[string]TableInfo `json:"tables"`
	Hash        string               `json:"hash"`
}

// Fingerprint computes the canonical SHA-256 over the table graph.  The
// hash is a pure function of Tables: encoding/json emits map keys in
// sorted order, and the introspector fills every slice in a stable order
// (columns by ordinal, keys by position, constraints by name), so
// re-introspecting an unchanged schema yields a byte-identical digest.
func Fingerprint(tables map[string]TableInfo) string {
	raw, err := json.Marshal(tables)
	if err != nil {
		// Tables contain only plain values; Marshal cannot fail on them.
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
