// internal/audit/recorder.go
//
// Append-only audit persistence.
//
// Context
// -------
// The Recorder is the Go rendition of a response-completion hook: a
// bounded channel drained by a small worker pool.  Enqueue never blocks —
// a full queue drops the record and bumps a counter — and insert failures
// are caught and only logged.  Observability code must never turn a
// successful business operation into an error response, and nothing here
// can extend response latency.
//
// Rows are never updated or deleted by this package; the audit_log table
// is append-only by contract.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/tabula/internal/metrics"
)

// Field size ceilings applied before insert.
const (
	maxRouteLen = 512
	maxUALen    = 256
	maxStateLen = 64 << 10 // before/after JSON, bytes
)

const insertSQL = `
INSERT INTO audit_log
  (actor_id, action, table_name, record_key, before_state, after_state,
   route, ip, user_agent, request_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Record is one append-only audit row, fully resolved and truncated.
type Record struct {
	ActorID   sql.NullInt64
	Action    string
	Table     string
	RecordKey string
	Before    []byte // JSON or nil
	After     []byte // JSON or nil
	Route     string
	IP        string
	UserAgent string
	RequestID string
	CreatedAt time.Time
}

// Recorder drains a bounded queue into the audit_log table.
type Recorder struct {
	db    *sqlx.DB
	queue chan Record
	wg    sync.WaitGroup
}

// NewRecorder starts `workers` goroutines draining a queue of `depth`.
func NewRecorder(db *sqlx.DB, depth, workers int) *Recorder {
	if depth <= 0 {
		depth = 1024
	}
	if workers <= 0 {
		workers = 2
	}
	r := &Recorder{
		db:    db,
		queue: make(chan Record, depth),
	}
	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.drain()
	}
	return r
}

// Enqueue hands off a record without blocking.  Returns false on drop.
func (r *Recorder) Enqueue(rec Record) bool {
	select {
	case r.queue <- rec:
		return true
	default:
		metrics.AuditDroppedTotal.Inc()
		zap.S().Warnw("audit queue full, record dropped",
			"action", rec.Action, "table", rec.Table, "request_id", rec.RequestID)
		return false
	}
}

// Close stops intake and waits briefly for the queue to flush.
func (r *Recorder) Close() {
	close(r.queue)
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		zap.S().Warnw("audit recorder close timed out")
	}
}

func (r *Recorder) drain() {
	defer r.wg.Done()
	for rec := range r.queue {
		r.insert(rec)
	}
}

// insert swallows every failure by contract.
func (r *Recorder) insert(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := r.db.ExecContext(ctx, insertSQL,
		rec.ActorID, rec.Action, rec.Table, rec.RecordKey,
		nullable(rec.Before), nullable(rec.After),
		truncate(rec.Route, maxRouteLen), rec.IP,
		truncate(rec.UserAgent, maxUALen), rec.RequestID, rec.CreatedAt)
	if err != nil {
		metrics.AuditWriteErrorsTotal.Inc()
		zap.S().Errorw("audit insert failed", "err", err,
			"action", rec.Action, "table", rec.Table, "request_id", rec.RequestID)
	}
}

// MarshalState renders a before/after snapshot as truncated JSON.  A nil
// state yields nil so the column stays NULL.
func MarshalState(v any) []byte {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		zap.S().Warnw("audit state marshal failed", "err", err)
		return nil
	}
	if len(raw) > maxStateLen {
		raw = raw[:maxStateLen]
	}
	return raw
}

func nullable(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
