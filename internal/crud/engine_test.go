// internal/crud/engine_test.go
//
// Unit-tests for the generic CRUD engine using sqlmock.
//
// Context
// -------
// The engine builds every statement from runtime entities, so these tests
// construct a small snapshot (a soft-delete `orders` table and a
// composite-key `user_roles` junction) and assert the generated SQL,
// pagination clamping, scope handling, and the read-only guard.
//
// Run: go test ./internal/crud -v

package crud

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/tabula/internal/model"
	"github.com/yanizio/tabula/internal/respond"
	"github.com/yanizio/tabula/internal/schema"
)

func strptr(s string) *string { return &s }

func testEntities() map[string]*model.Entity {
	snap := &schema.Snapshot{
		Tables: map[string]schema.TableInfo{
			"orders": {
				Name: "orders",
				Columns: []schema.ColumnInfo{
					{Name: "id", DataType: "bigint", SemanticType: schema.TypeInteger, IsAutoIncrement: true},
					{Name: "total", DataType: "decimal", SemanticType: schema.TypeNumber},
					{Name: "status", DataType: "varchar", SemanticType: schema.TypeString},
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
			"secrets": {
				Name: "secrets",
				Columns: []schema.ColumnInfo{
					{Name: "id", DataType: "bigint", SemanticType: schema.TypeInteger, IsAutoIncrement: true},
				},
				PrimaryKey: []string{"id"},
			},
		},
	}
	return model.Build(snap)
}

func newTestEngine(t *testing.T, readOnly bool) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	rawDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { rawDB.Close() })

	db := sqlx.NewDb(rawDB, "sqlmock")
	vis := NewVisibility(nil, []string{"secrets"}, false)
	return NewEngine(db, testEntities(), vis, readOnly), mock
}

func kindOf(t *testing.T, err error) respond.Kind {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error")
	}
	return respond.AsError(err).Kind
}

func TestSanitize_Clamps(t *testing.T) {
	cases := []struct {
		in        ListQuery
		wantPage  int
		wantLimit int
	}{
		{ListQuery{Page: 0, Limit: 0}, 1, DefaultLimit},
		{ListQuery{Page: -3, Limit: -1}, 1, DefaultLimit},
		{ListQuery{Page: 2, Limit: 9999}, 2, MaxLimit},
		{ListQuery{Page: 1, Limit: 25}, 1, 25},
	}
	for _, c := range cases {
		got := sanitize(c.in)
		if got.Page != c.wantPage || got.Limit != c.wantLimit {
			t.Errorf("sanitize(%+v) = page %d limit %d, want %d/%d",
				c.in, got.Page, got.Limit, c.wantPage, c.wantLimit)
		}
	}
}

func TestTables_VisibilityAndOrder(t *testing.T) {
	e, _ := newTestEngine(t, false)
	got := e.Tables()
	if len(got) != 2 || got[0] != "orders" || got[1] != "user_roles" {
		t.Fatalf("Tables() = %v, want [orders user_roles]", got)
	}
}

func TestResolve_DeniedLooksUnknown(t *testing.T) {
	e, _ := newTestEngine(t, false)

	if _, err := e.Resolve("nope"); kindOf(t, err) != respond.KindNotFound {
		t.Fatal("unknown table must be a 404-class error")
	}
	if _, err := e.Resolve("secrets"); kindOf(t, err) != respond.KindNotFound {
		t.Fatal("denied table must be indistinguishable from unknown")
	}
}

func TestList_DefaultScopeExcludesDeleted(t *testing.T) {
	e, mock := newTestEngine(t, false)
	mock.MatchExpectationsInOrder(false) // list and count run concurrently

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM `orders` WHERE `deleted_at` IS NULL LIMIT ? OFFSET ?")).
		WithArgs(DefaultLimit, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "total"}).AddRow(1, "12.50"))
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT COUNT(*) FROM `orders` WHERE `deleted_at` IS NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	rows, total, err := e.List(context.Background(), "orders", ListQuery{})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if total != 1 || len(rows) != 1 {
		t.Fatalf("rows = %d total = %d, want 1/1", len(rows), total)
	}
	if rows[0]["total"] != "12.50" {
		t.Fatalf("byte columns must render as strings, got %#v", rows[0]["total"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestList_FilterSortAndOffset(t *testing.T) {
	e, mock := newTestEngine(t, false)
	mock.MatchExpectationsInOrder(false)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM `orders` WHERE `deleted_at` IS NULL AND `status` = ? ORDER BY `created_at` DESC LIMIT ? OFFSET ?")).
		WithArgs("open", 10, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT COUNT(*) FROM `orders` WHERE `deleted_at` IS NULL AND `status` = ?")).
		WithArgs("open").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	_, total, err := e.List(context.Background(), "orders", ListQuery{
		Page: 2, Limit: 10, Sort: "-created_at",
		Filters: map[string]string{"status": "open"},
	})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if total != 11 {
		t.Fatalf("total = %d, want 11", total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestList_UnknownFilterColumn(t *testing.T) {
	e, _ := newTestEngine(t, false)
	_, _, err := e.List(context.Background(), "orders", ListQuery{
		Filters: map[string]string{"no_such_col": "x"},
	})
	if kindOf(t, err) != respond.KindValidation {
		t.Fatal("unknown filter column must be a validation error")
	}
}

func TestGet_DeletedScope(t *testing.T) {
	e, mock := newTestEngine(t, false)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM `orders` WHERE `id` = ? AND `deleted_at` IS NOT NULL LIMIT 1")).
		WithArgs("5").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

	row, err := e.Get(context.Background(), "orders", "5", ScopeDeleted)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if row["id"] != int64(5) {
		t.Fatalf("row = %#v", row)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestGet_NoPointOpsOnCompositeKey(t *testing.T) {
	e, _ := newTestEngine(t, false)
	_, err := e.Get(context.Background(), "user_roles", "1", "")
	if kindOf(t, err) != respond.KindValidation {
		t.Fatal("composite-key point read must be a validation error")
	}
}

func TestCreate_RejectsUnknownColumns(t *testing.T) {
	e, _ := newTestEngine(t, false)
	_, _, err := e.Create(context.Background(), "orders", map[string]any{
		"total": "9.99", "shade": "mauve",
	})
	ae := respond.AsError(err)
	if ae.Kind != respond.KindValidation {
		t.Fatalf("kind = %d, want validation", ae.Kind)
	}
	if ae.Details == nil {
		t.Fatal("unknown columns must be itemized in Details")
	}
}

func TestCreate_InsertAndReRead(t *testing.T) {
	e, mock := newTestEngine(t, false)

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO `orders` (`total`) VALUES (?)")).
		WithArgs("9.99").
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM `orders` WHERE `id` = ? LIMIT 1")).
		WithArgs("42").
		WillReturnRows(sqlmock.NewRows([]string{"id", "total"}).AddRow(42, "9.99"))

	after, key, err := e.Create(context.Background(), "orders", map[string]any{"total": "9.99"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if key != "42" {
		t.Fatalf("key = %q, want 42", key)
	}
	if after["id"] != int64(42) {
		t.Fatalf("after = %#v", after)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestDelete_SoftDeleteUsesUpdate(t *testing.T) {
	e, mock := newTestEngine(t, false)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM `orders` WHERE `id` = ? AND `deleted_at` IS NULL LIMIT 1")).
		WithArgs("3").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE `orders` SET `deleted_at` = CURRENT_TIMESTAMP WHERE `id` = ?")).
		WithArgs("3").
		WillReturnResult(sqlmock.NewResult(0, 1))

	before, err := e.Delete(context.Background(), "orders", "3")
	if err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if before["id"] != int64(3) {
		t.Fatalf("before snapshot = %#v", before)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestReadOnly_RejectsWrites(t *testing.T) {
	e, _ := newTestEngine(t, true)

	if _, _, err := e.Create(context.Background(), "orders", map[string]any{"total": "1"}); kindOf(t, err) != respond.KindReadOnly {
		t.Fatal("create must be rejected in read-only mode")
	}
	if _, _, err := e.Update(context.Background(), "orders", "1", map[string]any{"total": "1"}); kindOf(t, err) != respond.KindReadOnly {
		t.Fatal("update must be rejected in read-only mode")
	}
	if _, err := e.Delete(context.Background(), "orders", "1"); kindOf(t, err) != respond.KindReadOnly {
		t.Fatal("delete must be rejected in read-only mode")
	}
}
