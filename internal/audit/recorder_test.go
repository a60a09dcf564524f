// internal/audit/recorder_test.go
//
// Unit-tests for the bounded fire-and-forget recorder.
//
// Context
// -------
// The recorder's contract is: never block the caller, never surface a
// storage failure, and flush what it can on Close.  The sqlmock tests
// drive all three.
//
// Run: go test ./internal/audit -v

package audit

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	rawDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { rawDB.Close() })
	return sqlx.NewDb(rawDB, "sqlmock"), mock
}

func TestEnqueue_FlushesOnClose(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_log")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec := NewRecorder(db, 4, 1)
	if !rec.Enqueue(Record{Action: "create", Table: "orders", RecordKey: "1"}) {
		t.Fatal("enqueue into an empty queue must succeed")
	}
	rec.Close()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestEnqueue_DropsWhenFull(t *testing.T) {
	db, _ := newMockDB(t)

	// Zero workers drain nothing, so a depth-1 queue fills after one item.
	r := &Recorder{db: db, queue: make(chan Record, 1)}
	if !r.Enqueue(Record{Action: "a"}) {
		t.Fatal("first enqueue must fit")
	}
	if r.Enqueue(Record{Action: "b"}) {
		t.Fatal("second enqueue must drop, not block")
	}
}

func TestInsert_SwallowsFailure(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_log")).
		WillReturnError(errFake)

	r := &Recorder{db: db}
	// Must not panic or propagate; the contract is swallow-and-count.
	r.insert(Record{Action: "create", Table: "orders"})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

var errFake = &fakeErr{}

type fakeErr struct{}

func (*fakeErr) Error() string { return "storage offline" }

func TestMarshalState(t *testing.T) {
	if MarshalState(nil) != nil {
		t.Fatal("nil state must stay nil for a NULL column")
	}

	raw := MarshalState(map[string]any{"id": 1})
	if string(raw) != `{"id":1}` {
		t.Fatalf("state JSON = %s", raw)
	}

	big := make([]byte, maxStateLen*2)
	for i := range big {
		big[i] = 'x'
	}
	out := MarshalState(string(big))
	if len(out) > maxStateLen {
		t.Fatalf("state must be truncated to %d bytes, got %d", maxStateLen, len(out))
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abcd" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("ab", 4); got != "ab" {
		t.Fatalf("short strings must pass through, got %q", got)
	}
}
