// internal/crud/handler_test.go
//
// HTTP-level tests: envelope shape, idempotent replay, and query parsing.
//
// Run: go test ./internal/crud -v

package crud

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/yanizio/tabula/internal/auth"
	"github.com/yanizio/tabula/internal/idempotency"
)

func adminRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	p := &auth.Principal{ID: 1, Type: auth.TypeUser,
		Permissions: []string{"crud:*:*", "meta:read"}}
	return req.WithContext(auth.WithPrincipal(req.Context(), p))
}

func TestCreate_IdempotentReplay(t *testing.T) {
	engine, mock := newTestEngine(t, false)
	h := NewHandler(engine, idempotency.New(nil, time.Minute), nil)
	router := h.Routes()

	// Only the first POST reaches the database.
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO `orders` (`total`) VALUES (?)")).
		WithArgs("9.99").
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM `orders` WHERE `id` = ? LIMIT 1")).
		WithArgs("42").
		WillReturnRows(sqlmock.NewRows([]string{"id", "total"}).AddRow(42, "9.99"))

	req := adminRequest(http.MethodPost, "/orders", `{"total":"9.99"}`)
	req.Header.Set(HeaderIdempotencyKey, "req-001")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("first POST = %d, want 201: %s", rr.Code, rr.Body)
	}
	firstBody := rr.Body.String()

	// Same key replays the stored response verbatim, marked as a replay.
	req = adminRequest(http.MethodPost, "/orders", `{"total":"9.99"}`)
	req.Header.Set(HeaderIdempotencyKey, "req-001")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("replay POST = %d, want 201", rr.Code)
	}
	if rr.Header().Get(HeaderIdempotentReplay) != "true" {
		t.Fatal("replay must be marked with the replay header")
	}
	if rr.Body.String() != firstBody {
		t.Fatal("replay body must match the original byte for byte")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("SQL ran more than once: %v", err)
	}
}

func TestList_EnvelopeAndMeta(t *testing.T) {
	engine, mock := newTestEngine(t, false)
	mock.MatchExpectationsInOrder(false)
	h := NewHandler(engine, idempotency.New(nil, time.Minute), nil)

	mock.ExpectQuery("SELECT \\* FROM `orders`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, adminRequest(http.MethodGet, "/orders?limit=2", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}

	var env struct {
		OK   bool             `json:"ok"`
		Data []map[string]any `json:"data"`
		Meta struct {
			Page  int   `json:"page"`
			Limit int   `json:"limit"`
			Total int64 `json:"total"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if !env.OK || len(env.Data) != 2 {
		t.Fatalf("envelope = %+v", env)
	}
	if env.Meta.Page != 1 || env.Meta.Limit != 2 || env.Meta.Total != 12 {
		t.Fatalf("meta = %+v", env.Meta)
	}
}

func TestBodyRejection(t *testing.T) {
	engine, _ := newTestEngine(t, false)
	h := NewHandler(engine, idempotency.New(nil, time.Minute), nil)

	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, adminRequest(http.MethodPost, "/orders", `[1,2,3]`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("non-object body = %d, want 400", rr.Code)
	}

	var env struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.OK || env.Error == "" {
		t.Fatalf("failure envelope = %+v", env)
	}
}

func TestParseListQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		"/orders?page=3&limit=10&scope=all&sort=-created_at&status=open", nil)
	q := parseListQuery(req)

	if q.Page != 3 || q.Limit != 10 || q.Scope != "all" || q.Sort != "-created_at" {
		t.Fatalf("parsed = %+v", q)
	}
	if len(q.Filters) != 1 || q.Filters["status"] != "open" {
		t.Fatalf("filters = %v; reserved params must not leak into filters", q.Filters)
	}
}

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		in   string
		def  int
		want int
	}{
		{"", 5, 5},
		{"12", 5, 12},
		{"-3", 5, 5},   // sign rejected, fall back
		{"12x", 5, 5},  // junk rejected
		{"007", 5, 7},
	}
	for _, c := range cases {
		if got := atoiDefault(c.in, c.def); got != c.want {
			t.Errorf("atoiDefault(%q, %d) = %d, want %d", c.in, c.def, got, c.want)
		}
	}
}
