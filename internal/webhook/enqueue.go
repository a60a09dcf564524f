// internal/webhook/enqueue.go
//
// Event fan-out.
//
// For a given event name, every active webhook subscribed to it gets its
// own independent queue item carrying a snapshot of that webhook's retry
// policy.  One failing subscriber never blocks or affects another: the
// items share nothing but the payload bytes.
package webhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Defaults applied when a webhook row leaves policy columns at zero.
type Defaults struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

// Enqueuer publishes domain events into the queue.
type Enqueuer struct {
	store    *Store
	defaults Defaults
	now      func() time.Time
}

// NewEnqueuer wires the fan-out side.  now is injectable for tests.
func NewEnqueuer(store *Store, defaults Defaults, now func() time.Time) *Enqueuer {
	if now == nil {
		now = time.Now
	}
	return &Enqueuer{store: store, defaults: defaults, now: now}
}

// Publish serializes the payload once and enqueues one item per
// subscribed webhook.  A single enqueue failure is logged and skipped so
// the remaining subscribers still get theirs.
func (e *Enqueuer) Publish(ctx context.Context, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	hooks, err := e.store.Active(ctx)
	if err != nil {
		return err
	}

	now := e.now().UTC()
	enqueued := 0
	for i := range hooks {
		h := &hooks[i]
		if !h.SubscribedTo(event) {
			continue
		}
		item := &QueueItem{
			WebhookID:     h.ID,
			Event:         event,
			EventID:       uuid.NewString(),
			Payload:       raw,
			MaxAttempts:   h.MaxAttempts,
			BackoffMs:     h.BackoffMs,
			NextAttemptAt: now,
			CreatedAt:     now,
		}
		if item.MaxAttempts <= 0 {
			item.MaxAttempts = e.defaults.MaxAttempts
		}
		if item.BackoffMs <= 0 {
			item.BackoffMs = e.defaults.BaseBackoff.Milliseconds()
		}
		if err := e.store.Enqueue(ctx, item); err != nil {
			zap.S().Errorw("webhook enqueue failed",
				"webhook_id", h.ID, "event", event, "err", err)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		zap.S().Debugw("webhook event published", "event", event, "subscribers", enqueued)
	}
	return nil
}
