// internal/webhook/store.go
//
// Persistence for webhook registrations, the retry queue, and the
// immutable delivery log.
//
// Context
// -------
// Three tables back the subsystem:
//
//	webhooks            (id, name, url, secret, events JSON, active,
//	                     timeout_ms, max_attempts, base_backoff_ms)
//	webhook_queue       (id, webhook_id, event, event_id, payload JSON,
//	                     attempt, max_attempts, base_backoff_ms, status,
//	                     next_attempt_at, created_at)
//	webhook_deliveries  (id, queue_id, webhook_id, event_id, attempt,
//	                     status_code, body_snippet, duration_ms, error,
//	                     created_at)
//
// Queue rows are deleted on success, mutated on retryable failure, and
// parked as `failed` when attempts are exhausted.  Delivery rows are
// append-only: one per HTTP attempt, regardless of outcome.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package webhook

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Queue item states.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusFailed     = "failed"
)

// Webhook is one registered subscriber.
type Webhook struct {
	ID          int64  `db:"id"`
	Name        string `db:"name"`
	URL         string `db:"url"`
	Secret      string `db:"secret"`
	Events      string `db:"events"` // JSON array of event names, "*" for all
	Active      bool   `db:"active"`
	TimeoutMs   int    `db:"timeout_ms"`
	MaxAttempts int    `db:"max_attempts"`
	BackoffMs   int64  `db:"base_backoff_ms"`
}

// SubscribedTo tests event membership against the stored JSON list.
func (w *Webhook) SubscribedTo(event string) bool {
	var events []string
	if err := json.Unmarshal([]byte(w.Events), &events); err != nil {
		zap.S().Warnw("webhook has malformed events list", "webhook_id", w.ID, "err", err)
		return false
	}
	for _, e := range events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

// QueueItem is one pending delivery with its retry-policy snapshot.
type QueueItem struct {
	ID            int64     `db:"id"`
	WebhookID     int64     `db:"webhook_id"`
	Event         string    `db:"event"`
	EventID       string    `db:"event_id"`
	Payload       []byte    `db:"payload"`
	Attempt       int       `db:"attempt"`
	MaxAttempts   int       `db:"max_attempts"`
	BackoffMs     int64     `db:"base_backoff_ms"`
	Status        string    `db:"status"`
	NextAttemptAt time.Time `db:"next_attempt_at"`
	CreatedAt     time.Time `db:"created_at"`
}

// Delivery is one immutable HTTP-attempt record.
type Delivery struct {
	QueueID    int64
	WebhookID  int64
	EventID    string
	Attempt    int
	StatusCode sql.NullInt64
	Body       string
	DurationMs int64
	Error      string
}

// Store runs the webhook queries.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open pool.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// Active returns every active webhook; subscription filtering happens in
// Go against the JSON events column.
func (s *Store) Active(ctx context.Context) ([]Webhook, error) {
	const q = `SELECT id, name, url, secret, events, active,
	                  timeout_ms, max_attempts, base_backoff_ms
	             FROM webhooks
	            WHERE active = TRUE
	            ORDER BY id`
	var hooks []Webhook
	if err := s.db.SelectContext(ctx, &hooks, q); err != nil {
		return nil, err
	}
	return hooks, nil
}

// ByID loads one webhook regardless of active flag; in-flight queue items
// finish their retry budget even if the hook was deactivated meanwhile.
func (s *Store) ByID(ctx context.Context, id int64) (*Webhook, error) {
	const q = `SELECT id, name, url, secret, events, active,
	                  timeout_ms, max_attempts, base_backoff_ms
	             FROM webhooks WHERE id = ?`
	var h Webhook
	if err := s.db.GetContext(ctx, &h, q, id); err != nil {
		return nil, err
	}
	return &h, nil
}

// Enqueue inserts one pending item.
func (s *Store) Enqueue(ctx context.Context, item *QueueItem) error {
	const q = `INSERT INTO webhook_queue
	             (webhook_id, event, event_id, payload, attempt, max_attempts,
	              base_backoff_ms, status, next_attempt_at, created_at)
	           VALUES (?, ?, ?, ?, 0, ?, ?, 'pending', ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		item.WebhookID, item.Event, item.EventID, item.Payload,
		item.MaxAttempts, item.BackoffMs, item.NextAttemptAt, item.CreatedAt)
	return err
}

// Due returns pending items whose next_attempt_at has passed.
func (s *Store) Due(ctx context.Context, now time.Time, limit int) ([]QueueItem, error) {
	const q = `SELECT id, webhook_id, event, event_id, payload, attempt,
	                  max_attempts, base_backoff_ms, status, next_attempt_at, created_at
	             FROM webhook_queue
	            WHERE status = 'pending' AND next_attempt_at <= ?
	            ORDER BY next_attempt_at
	            LIMIT ?`
	var items []QueueItem
	if err := s.db.SelectContext(ctx, &items, q, now, limit); err != nil {
		return nil, err
	}
	return items, nil
}

// Claim flips pending → processing.  Returns false when another worker
// won the row.
func (s *Store) Claim(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE webhook_queue SET status = 'processing'
	            WHERE id = ? AND status = 'pending'`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// Complete deletes a successfully delivered item.
func (s *Store) Complete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM webhook_queue WHERE id = ?`, id)
	return err
}

// Reschedule returns a failed item to pending with its bumped attempt
// count and backoff deadline.
func (s *Store) Reschedule(ctx context.Context, id int64, attempt int, nextAt time.Time) error {
	const q = `UPDATE webhook_queue
	              SET status = 'pending', attempt = ?, next_attempt_at = ?
	            WHERE id = ?`
	_, err := s.db.ExecContext(ctx, q, attempt, nextAt, id)
	return err
}

// Fail parks an item permanently; only a manual re-enqueue revives it.
func (s *Store) Fail(ctx context.Context, id int64, attempt int) error {
	const q = `UPDATE webhook_queue SET status = 'failed', attempt = ? WHERE id = ?`
	_, err := s.db.ExecContext(ctx, q, attempt, id)
	return err
}

// RecordDelivery appends one immutable attempt row.  Failures here are
// logged and swallowed; the delivery log is observability, and
// observability must never break delivery itself.
func (s *Store) RecordDelivery(ctx context.Context, d *Delivery) {
	const q = `INSERT INTO webhook_deliveries
	             (queue_id, webhook_id, event_id, attempt, status_code,
	              body_snippet, duration_ms, error, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		d.QueueID, d.WebhookID, d.EventID, d.Attempt, d.StatusCode,
		d.Body, d.DurationMs, d.Error, time.Now().UTC())
	if err != nil {
		zap.S().Errorw("webhook delivery record insert failed",
			"queue_id", d.QueueID, "err", err)
	}
}
