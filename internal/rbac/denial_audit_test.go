// internal/rbac/denial_audit_test.go
//
// Every refusal must leave an auditable trail: the denial reason and the
// exact permission strings evaluated land in the after_state column of the
// row the completion middleware enqueues after the 401/403 is written.
//
// Run: go test ./internal/rbac -v

package rbac

import (
	"net/http"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/tabula/internal/audit"
	"github.com/yanizio/tabula/internal/auth"
)

func TestDenialsAttachAuditDetail(t *testing.T) {
	rawDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer rawDB.Close()
	db := sqlx.NewDb(rawDB, "sqlmock")

	insert := regexp.QuoteMeta("INSERT INTO audit_log")

	// Anonymous request: no actor, reason missing_auth, nothing evaluated.
	mock.ExpectExec(insert).
		WithArgs(nil, "deny", "", "", nil,
			[]byte(`{"evaluated":null,"reason":"missing_auth"}`),
			"", "", "", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	// Authenticated but unauthorized: the principal becomes the actor and
	// the exact permission that was checked is recorded.
	mock.ExpectExec(insert).
		WithArgs(int64(3), "deny", "", "", nil,
			[]byte(`{"evaluated":["crud:orders:delete"],"reason":"missing_permission"}`),
			"", "", "", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))

	rec := audit.NewRecorder(db, 4, 1)

	r := chi.NewRouter()
	r.Use(audit.Completion(rec))
	r.Route("/{table}", func(r chi.Router) {
		r.Use(RequireCRUD)
		r.Delete("/", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	if rr := doAs(t, r, http.MethodDelete, "/orders", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous = %d, want 401", rr.Code)
	}
	reader := &auth.Principal{ID: 3, Type: auth.TypeUser, Permissions: []string{"crud:*:read"}}
	if rr := doAs(t, r, http.MethodDelete, "/orders", reader); rr.Code != http.StatusForbidden {
		t.Fatalf("reader delete = %d, want 403", rr.Code)
	}

	// Close flushes the single worker before the expectations are checked.
	rec.Close()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}
