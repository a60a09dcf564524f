// internal/schema/snapshot_test.go
//
// Unit-tests for fingerprinting, the semantic type map, and the
// normalization invariants.
//
// Run: go test ./internal/schema -v

package schema

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func sampleTables() map[string]TableInfo {
	return map[string]TableInfo{
		"orders": {
			Name: "orders",
			Columns: []ColumnInfo{
				{Name: "id", DataType: "bigint", SemanticType: TypeInteger, IsAutoIncrement: true},
				{Name: "total", DataType: "decimal", SemanticType: TypeNumber},
			},
			PrimaryKey: []string{"id"},
		},
		"tags": {
			Name: "tags",
			Columns: []ColumnInfo{
				{Name: "id", DataType: "int", SemanticType: TypeInteger, IsAutoIncrement: true},
				{Name: "label", DataType: "varchar", SemanticType: TypeString, MaxLength: 64},
			},
			PrimaryKey: []string{"id"},
		},
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint(sampleTables())
	b := Fingerprint(sampleTables())
	if a == "" {
		t.Fatal("empty fingerprint")
	}
	if a != b {
		t.Fatalf("fingerprint not stable: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestFingerprint_SensitiveToChange(t *testing.T) {
	base := Fingerprint(sampleTables())

	mutated := sampleTables()
	tab := mutated["orders"]
	tab.Columns = append(tab.Columns, ColumnInfo{
		Name: "note", DataType: "text", SemanticType: TypeString,
	})
	mutated["orders"] = tab

	if Fingerprint(mutated) == base {
		t.Fatal("adding a column must change the fingerprint")
	}
}

func TestSemanticType(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"bigint", TypeInteger},
		{"INT", TypeInteger},
		{"mediumint", TypeInteger},
		{"decimal", TypeNumber},
		{"double", TypeNumber},
		{"bit", TypeBoolean},
		{"datetime", TypeTemporal},
		{"datetime(6)", TypeTemporal},
		{"timestamp", TypeTemporal},
		{"json", TypeObject},
		{"varchar", TypeString},
		{"text", TypeString},
		{"enum", TypeString},
		{"", TypeString},
	}
	for _, c := range cases {
		if got := SemanticType(c.in); got != c.want {
			t.Errorf("SemanticType(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalize_IDCollapsesCompositeKey(t *testing.T) {
	in := TableInfo{
		Name: "memberships",
		Columns: []ColumnInfo{
			{Name: "id", DataType: "bigint", SemanticType: TypeInteger},
			{Name: "user_id", DataType: "bigint", SemanticType: TypeInteger},
			{Name: "group_id", DataType: "bigint", SemanticType: TypeInteger},
		},
		PrimaryKey: []string{"user_id", "group_id"},
	}

	out := normalize(in)
	if len(out.PrimaryKey) != 1 || out.PrimaryKey[0] != "id" {
		t.Fatalf("primary key = %v, want [id]", out.PrimaryKey)
	}
}

func TestNormalize_WarnsOnSingleColumnKeyOverride(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	in := TableInfo{
		Name: "documents",
		Columns: []ColumnInfo{
			{Name: "uuid", DataType: "char", SemanticType: TypeString},
			{Name: "id", DataType: "bigint", SemanticType: TypeInteger},
		},
		PrimaryKey: []string{"uuid"},
	}

	out := normalize(in)
	if len(out.PrimaryKey) != 1 || out.PrimaryKey[0] != "id" {
		t.Fatalf("primary key = %v, want [id]", out.PrimaryKey)
	}
	// Displacing catalog data is never silent, composite or not.
	if logs.FilterMessage("overriding catalog primary key with id column").Len() != 1 {
		t.Fatalf("expected one override warning, got %d warn entries", logs.Len())
	}
}

func TestNormalize_KeepsCompositeKeyWithoutID(t *testing.T) {
	in := TableInfo{
		Name: "user_roles",
		Columns: []ColumnInfo{
			{Name: "user_id", DataType: "bigint", SemanticType: TypeInteger},
			{Name: "role_id", DataType: "bigint", SemanticType: TypeInteger},
		},
		PrimaryKey: []string{"user_id", "role_id"},
	}

	out := normalize(in)
	if len(out.PrimaryKey) != 2 {
		t.Fatalf("primary key = %v, want untouched composite", out.PrimaryKey)
	}
}

func TestNormalize_SingleAutoIncrementSurvives(t *testing.T) {
	in := TableInfo{
		Name: "weird",
		Columns: []ColumnInfo{
			{Name: "seq", DataType: "bigint", SemanticType: TypeInteger, IsAutoIncrement: true},
			{Name: "id", DataType: "bigint", SemanticType: TypeInteger, IsAutoIncrement: true},
		},
		PrimaryKey: []string{"id"},
	}

	out := normalize(in)
	var kept []string
	for _, c := range out.Columns {
		if c.IsAutoIncrement {
			kept = append(kept, c.Name)
		}
	}
	if len(kept) != 1 || kept[0] != "id" {
		t.Fatalf("surviving auto-increment = %v, want [id]", kept)
	}
}
