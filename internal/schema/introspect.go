// internal/schema/introspect.go
//
// Live catalog introspection.
//
// Context
// -------
// `Introspect` projects information_schema into a Snapshot.  It runs three
// catalog queries (columns, primary-key columns, and constraint columns
// with referential rules), assembles one TableInfo per table, applies the
// normalization invariants, and fingerprints the result.  It is purely a
// projection: no side effects beyond the reads, and no partial result —
// any catalog error propagates.
//
// Normalization
// -------------
//  1. A column named `id` collapses the effective primary key to ["id"],
//     even when the catalog reports a composite key.  Overrides are logged.
//  2. At most one auto-increment column survives per table.  When the
//     catalog reports several, we keep `id` if flagged, else the declared
//     primary-key column, else the first by ordinal; the rest are demoted.
//
// Notes
// -----
// • Result ordering is pinned by ORDER BY in every query so Fingerprint
//   sees a stable representation.
// • Oxford commas, two spaces after periods.
package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const columnQuery = `
SELECT table_name   AS table_name,
       column_name  AS column_name,
       data_type    AS data_type,
       is_nullable  AS is_nullable,
       column_default AS column_default,
       extra        AS extra,
       COALESCE(character_maximum_length, 0) AS max_length
  FROM information_schema.columns
 WHERE table_schema = ?
 ORDER BY table_name, ordinal_position`

const primaryKeyQuery = `
SELECT table_name  AS table_name,
       column_name AS column_name
  FROM information_schema.key_column_usage
 WHERE table_schema = ? AND constraint_name = 'PRIMARY'
 ORDER BY table_name, ordinal_position`

const constraintQuery = `
SELECT tc.table_name      AS table_name,
       tc.constraint_name AS constraint_name,
       tc.constraint_type AS constraint_type,
       kcu.column_name    AS column_name,
       COALESCE(kcu.referenced_table_name, '')  AS ref_table,
       COALESCE(kcu.referenced_column_name, '') AS ref_column,
       COALESCE(rc.delete_rule, '') AS delete_rule,
       COALESCE(rc.update_rule, '') AS update_rule
  FROM information_schema.table_constraints tc
  JOIN information_schema.key_column_usage kcu
       ON kcu.constraint_schema = tc.constraint_schema
      AND kcu.constraint_name   = tc.constraint_name
      AND kcu.table_name        = tc.table_name
  LEFT JOIN information_schema.referential_constraints rc
       ON rc.constraint_schema = tc.constraint_schema
      AND rc.constraint_name   = tc.constraint_name
 WHERE tc.table_schema = ?
   AND tc.constraint_type IN ('UNIQUE', 'FOREIGN KEY')
 ORDER BY tc.table_name, tc.constraint_name, kcu.ordinal_position`

type columnRow struct {
	TableName  string  `db:"table_name"`
	ColumnName string  `db:"column_name"`
	DataType   string  `db:"data_type"`
	IsNullable string  `db:"is_nullable"`
	Default    *string `db:"column_default"`
	Extra      string  `db:"extra"`
	MaxLength  int64   `db:"max_length"`
}

type pkRow struct {
	TableName  string `db:"table_name"`
	ColumnName string `db:"column_name"`
}

type constraintRow struct {
	TableName      string `db:"table_name"`
	ConstraintName string `db:"constraint_name"`
	ConstraintType string `db:"constraint_type"`
	ColumnName     string `db:"column_name"`
	RefTable       string `db:"ref_table"`
	RefColumn      string `db:"ref_column"`
	DeleteRule     string `db:"delete_rule"`
	UpdateRule     string `db:"update_rule"`
}

// Introspect reads the catalog for dbName and returns a fingerprinted
// Snapshot.  Connectivity or catalog errors are fatal to the call.
func Introspect(ctx context.Context, db *sqlx.DB, dbName string) (*Snapshot, error) {
	var cols []columnRow
	if err := db.SelectContext(ctx, &cols, columnQuery, dbName); err != nil {
		return nil, fmt.Errorf("schema: column query: %w", err)
	}

	var pks []pkRow
	if err := db.SelectContext(ctx, &pks, primaryKeyQuery, dbName); err != nil {
		return nil, fmt.Errorf("schema: primary key query: %w", err)
	}

	var cons []constraintRow
	if err := db.SelectContext(ctx, &cons, constraintQuery, dbName); err != nil {
		return nil, fmt.Errorf("schema: constraint query: %w", err)
	}

	tables := assemble(cols, pks, cons)
	for name, t := range tables {
		tables[name] = normalize(t)
	}

	return &Snapshot{
		Database:    dbName,
		GeneratedAt: time.Now().UTC(),
		Tables:      tables,
		Hash:        Fingerprint(tables),
	}, nil
}

// assemble groups the three row sets into TableInfo values.
func assemble(cols []columnRow, pks []pkRow, cons []constraintRow) map[string]TableInfo {
	tables := make(map[string]TableInfo)

	for _, c := range cols {
		t := tables[c.TableName]
		t.Name = c.TableName
		t.Columns = append(t.Columns, ColumnInfo{
			Name:            c.ColumnName,
			DataType:        strings.ToLower(c.DataType),
			SemanticType:    SemanticType(c.DataType),
			IsNullable:      strings.EqualFold(c.IsNullable, "YES"),
			Default:         c.Default,
			IsAutoIncrement: strings.Contains(strings.ToLower(c.Extra), "auto_increment"),
			MaxLength:       c.MaxLength,
		})
		tables[c.TableName] = t
	}

	for _, p := range pks {
		t, ok := tables[p.TableName]
		if !ok {
			continue
		}
		t.PrimaryKey = append(t.PrimaryKey, p.ColumnName)
		tables[p.TableName] = t
	}

	// Constraint rows arrive ordered by (table, name, position), so columns
	// of a multi-column unique stay grouped.
	for _, c := range cons {
		t, ok := tables[c.TableName]
		if !ok {
			continue
		}
		switch c.ConstraintType {
		case "UNIQUE":
			if n := len(t.Uniques); n > 0 && t.Uniques[n-1].Name == c.ConstraintName {
				t.Uniques[n-1].Columns = append(t.Uniques[n-1].Columns, c.ColumnName)
			} else {
				t.Uniques = append(t.Uniques, Unique{Name: c.ConstraintName, Columns: []string{c.ColumnName}})
			}
		case "FOREIGN KEY":
			t.ForeignKeys = append(t.ForeignKeys, ForeignKey{
				Name:      c.ConstraintName,
				Column:    c.ColumnName,
				RefTable:  c.RefTable,
				RefColumn: c.RefColumn,
				OnDelete:  c.DeleteRule,
				OnUpdate:  c.UpdateRule,
			})
		}
		tables[c.TableName] = t
	}

	return tables
}

// normalize applies the id-collapse and single-auto-increment invariants.
func normalize(t TableInfo) TableInfo {
	if t.Column("id") != nil && (len(t.PrimaryKey) != 1 || t.PrimaryKey[0] != "id") {
		// Any catalog key displaced by the id convention is flagged, whether
		// composite or a single differently-named column.
		if len(t.PrimaryKey) > 0 {
			zap.S().Warnw("overriding catalog primary key with id column",
				"table", t.Name, "catalog_pk", t.PrimaryKey)
		}
		t.PrimaryKey = []string{"id"}
	}

	var autos []string
	for _, c := range t.Columns {
		if c.IsAutoIncrement {
			autos = append(autos, c.Name)
		}
	}
	if len(autos) > 1 {
		keep := pickAutoIncrement(t, autos)
		zap.S().Warnw("demoting extra auto-increment columns",
			"table", t.Name, "kept", keep, "reported", autos)
		for i := range t.Columns {
			if t.Columns[i].IsAutoIncrement && t.Columns[i].Name != keep {
				t.Columns[i].IsAutoIncrement = false
			}
		}
	}
	return t
}

// pickAutoIncrement chooses the surviving auto-increment column: prefer
// `id`, else the declared primary-key column, else the first by ordinal.
func pickAutoIncrement(t TableInfo, autos []string) string {
	sorted := append([]string(nil), autos...)
	sort.Strings(sorted)
	for _, a := range sorted {
		if a == "id" {
			return a
		}
	}
	if len(t.PrimaryKey) == 1 {
		for _, a := range autos {
			if a == t.PrimaryKey[0] {
				return a
			}
		}
	}
	return autos[0]
}
