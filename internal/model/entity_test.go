// internal/model/entity_test.go
//
// Unit-tests for the entity factory and descriptor helpers.
//
// Run: go test ./internal/model -v

package model

import (
	"sort"
	"testing"
	"time"

	"github.com/yanizio/tabula/internal/schema"
)

func strptr(s string) *string { return &s }

func testSnapshot() *schema.Snapshot {
	return &schema.Snapshot{
		Database:    "tabula",
		GeneratedAt: time.Now(),
		Tables: map[string]schema.TableInfo{
			"orders": {
				Name: "orders",
				Columns: []schema.ColumnInfo{
					{Name: "id", DataType: "bigint", SemanticType: schema.TypeInteger, IsAutoIncrement: true},
					{Name: "total", DataType: "decimal", SemanticType: schema.TypeNumber},
					{Name: "created_at", DataType: "datetime", SemanticType: schema.TypeTemporal,
						Default: strptr("CURRENT_TIMESTAMP")},
					{Name: "deleted_at", DataType: "datetime", SemanticType: schema.TypeTemporal, IsNullable: true},
				},
				PrimaryKey: []string{"id"},
			},
			"user_roles": {
				Name: "user_roles",
				Columns: []schema.ColumnInfo{
					{Name: "user_id", DataType: "bigint", SemanticType: schema.TypeInteger},
					{Name: "role_id", DataType: "bigint", SemanticType: schema.TypeInteger},
				},
				PrimaryKey: []string{"user_id", "role_id"},
			},
		},
	}
}

func TestBuild_KeyResolution(t *testing.T) {
	entities := Build(testSnapshot())

	orders := entities["orders"]
	if orders == nil {
		t.Fatal("orders entity missing")
	}
	if orders.PrimaryKey != "id" {
		t.Fatalf("orders primary key = %q, want id", orders.PrimaryKey)
	}
	if orders.AutoIncrement != "id" {
		t.Fatalf("orders auto increment = %q, want id", orders.AutoIncrement)
	}
	if !orders.SoftDelete {
		t.Fatal("orders should be soft-deletable via deleted_at")
	}
	if !orders.HasPointOps() {
		t.Fatal("orders should support point operations")
	}

	junction := entities["user_roles"]
	if junction.HasPointOps() {
		t.Fatal("composite-key table must not offer point operations")
	}
	if junction.SoftDelete {
		t.Fatal("user_roles has no deleted_at, must not be soft-deletable")
	}
}

func TestWritableColumns(t *testing.T) {
	orders := Build(testSnapshot())["orders"]

	cols, vals, unknown := orders.WritableColumns(map[string]any{
		"id":     int64(99), // auto-increment, dropped
		"total":  "12.50",
		"bogus":  true,
		"bogus2": "x",
	})

	if len(cols) != 1 || cols[0] != "total" {
		t.Fatalf("cols = %v, want [total]", cols)
	}
	if len(vals) != 1 || vals[0] != "12.50" {
		t.Fatalf("vals = %v", vals)
	}
	sort.Strings(unknown)
	if len(unknown) != 2 || unknown[0] != "bogus" || unknown[1] != "bogus2" {
		t.Fatalf("unknown = %v, want [bogus bogus2]", unknown)
	}
}

func TestDefaultExpr(t *testing.T) {
	orders := Build(testSnapshot())["orders"]

	val, isExpr, ok := orders.DefaultExpr("created_at")
	if !ok || !isExpr || val != "CURRENT_TIMESTAMP" {
		t.Fatalf("created_at default = (%q, %v, %v), want expression", val, isExpr, ok)
	}

	if _, _, ok := orders.DefaultExpr("total"); ok {
		t.Fatal("total has no default, ok must be false")
	}
	if _, _, ok := orders.DefaultExpr("missing"); ok {
		t.Fatal("unknown column must report no default")
	}
}
