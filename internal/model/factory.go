// internal/model/factory.go
//
// Snapshot → Entity factory.
//
// Key resolution order: explicit single-column catalog key, else a column
// literally named `id`.  Tables with neither (including composite keys the
// introspector chose not to collapse) are still described — listing works —
// but HasPointOps() is false and the CRUD engine declines point operations
// on them with a structured 400 rather than guessing.
package model

import (
	"go.uber.org/zap"

	"github.com/yanizio/tabula/internal/schema"
)

// Build maps every table in the snapshot to its runtime Entity.
func Build(snap *schema.Snapshot) map[string]*Entity {
	out := make(map[string]*Entity, len(snap.Tables))
	for name, t := range snap.Tables {
		out[name] = buildOne(t)
	}
	zap.S().Debugw("runtime entities built", "count", len(out))
	return out
}

func buildOne(t schema.TableInfo) *Entity {
	e := &Entity{
		Table:   t.Name,
		Columns: t.Columns,
		byName:  make(map[string]*schema.ColumnInfo, len(t.Columns)),
	}
	for i := range t.Columns {
		c := &t.Columns[i]
		e.byName[c.Name] = c
		if c.IsAutoIncrement {
			e.AutoIncrement = c.Name
		}
		if c.Name == SoftDeleteColumn && c.SemanticType == schema.TypeTemporal {
			e.SoftDelete = true
		}
	}

	switch {
	case len(t.PrimaryKey) == 1:
		e.PrimaryKey = t.PrimaryKey[0]
	case e.byName["id"] != nil:
		e.PrimaryKey = "id"
	}
	return e
}
