// internal/webhook/dispatcher.go
//
// Timer-driven delivery worker.
//
// Context
// -------
// The dispatcher is the one background loop in the service.  A ticker
// fires `tick()`, guarded by an atomic reentrancy flag so overlapping
// ticks never run concurrently, and a semaphore caps simultaneous
// outbound deliveries.  Those two mechanisms are the only admission
// control against fan-out: a burst of enqueued jobs degrades to
// throughput limiting, never to unbounded parallel sockets.
//
// Per item: claim (pending → processing), sign, POST, append one
// immutable delivery record regardless of outcome, then delete on 2xx,
// reschedule with exponential backoff on retryable failure, or park as
// failed once attempts are exhausted.
//
// Notes
// -----
// • Backoff: delay = base_backoff_ms * 2^(attempt-1).
// • Oxford commas, two spaces after periods.
package webhook

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/tabula/internal/metrics"
)

// bodySnippetLen caps how much response body a delivery record keeps.
const bodySnippetLen = 1024

// batchSize is how many due items one tick may drain.
const batchSize = 50

// Dispatcher drains the webhook queue.
type Dispatcher struct {
	store    *Store
	client   *http.Client
	interval time.Duration
	timeout  time.Duration
	sem      chan struct{}
	ticking  atomic.Bool
	now      func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewDispatcher wires the worker.  maxConcurrent bounds in-flight
// deliveries; timeout is the per-request default when a webhook row does
// not carry its own.
func NewDispatcher(store *Store, interval, timeout time.Duration, maxConcurrent int, now func() time.Time) *Dispatcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		store:    store,
		client:   &http.Client{},
		interval: interval,
		timeout:  timeout,
		sem:      make(chan struct{}, maxConcurrent),
		now:      now,
		stop:     make(chan struct{}),
	}
}

// Start launches the ticker loop.  Call Close to drain and stop.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-d.stop:
				return
			case <-ticker.C:
				d.tick()
			}
		}
	}()
	zap.S().Infow("webhook dispatcher online",
		"interval", d.interval, "max_concurrent", cap(d.sem))
}

// Close stops the ticker and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	close(d.stop)
	d.wg.Wait()
}

// tick drains one batch of due items.  The CAS guard makes overlapping
// ticks a no-op rather than a concurrent drain.
func (d *Dispatcher) tick() {
	if !d.ticking.CompareAndSwap(false, true) {
		return
	}
	defer d.ticking.Store(false)

	ctx := context.Background()
	items, err := d.store.Due(ctx, d.now().UTC(), batchSize)
	if err != nil {
		zap.S().Errorw("webhook queue poll failed", "err", err)
		return
	}
	metrics.WebhookQueueDepth.Set(float64(len(items)))

	for i := range items {
		item := items[i]
		claimed, err := d.store.Claim(ctx, item.ID)
		if err != nil {
			zap.S().Errorw("webhook claim failed", "queue_id", item.ID, "err", err)
			continue
		}
		if !claimed {
			continue
		}

		d.sem <- struct{}{} // blocks the tick when the pool is saturated
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer func() { <-d.sem }()
			d.deliver(ctx, &item)
		}()
	}
}

// deliver runs one attempt and settles the queue item.
func (d *Dispatcher) deliver(ctx context.Context, item *QueueItem) {
	hook, err := d.store.ByID(ctx, item.WebhookID)
	if err != nil {
		zap.S().Errorw("webhook load failed, rescheduling",
			"queue_id", item.ID, "webhook_id", item.WebhookID, "err", err)
		d.settleFailure(ctx, item, &Delivery{
			QueueID: item.ID, WebhookID: item.WebhookID, EventID: item.EventID,
			Error: "webhook load: " + err.Error(),
		})
		return
	}

	timeout := d.timeout
	if hook.TimeoutMs > 0 {
		timeout = time.Duration(hook.TimeoutMs) * time.Millisecond
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, hook.URL, bytes.NewReader(item.Payload))
	if err != nil {
		d.settleFailure(ctx, item, &Delivery{
			QueueID: item.ID, WebhookID: hook.ID, EventID: item.EventID,
			Error: "build request: " + err.Error(),
		})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, Sign(hook.Secret, item.Payload))
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(d.now().Unix(), 10))
	req.Header.Set(HeaderEvent, item.Event)
	req.Header.Set(HeaderID, item.EventID)

	started := d.now()
	resp, err := d.client.Do(req)
	elapsed := d.now().Sub(started)

	del := &Delivery{
		QueueID:    item.ID,
		WebhookID:  hook.ID,
		EventID:    item.EventID,
		DurationMs: elapsed.Milliseconds(),
	}

	if err != nil {
		del.Error = err.Error()
		d.settleFailure(ctx, item, del)
		return
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, bodySnippetLen))
	del.StatusCode = sql.NullInt64{Int64: int64(resp.StatusCode), Valid: true}
	del.Body = string(snippet)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		del.Attempt = item.Attempt + 1
		d.store.RecordDelivery(ctx, del)
		if err := d.store.Complete(ctx, item.ID); err != nil {
			zap.S().Errorw("webhook complete failed", "queue_id", item.ID, "err", err)
		}
		metrics.WebhookAttemptsTotal.WithLabelValues("success").Inc()
		return
	}
	d.settleFailure(ctx, item, del)
}

// settleFailure appends the delivery record, then either reschedules with
// backoff or parks the item as terminally failed.
func (d *Dispatcher) settleFailure(ctx context.Context, item *QueueItem, del *Delivery) {
	attempt := item.Attempt + 1
	del.Attempt = attempt
	d.store.RecordDelivery(ctx, del)

	if attempt >= item.MaxAttempts {
		if err := d.store.Fail(ctx, item.ID, attempt); err != nil {
			zap.S().Errorw("webhook fail-mark failed", "queue_id", item.ID, "err", err)
		}
		metrics.WebhookAttemptsTotal.WithLabelValues("failed").Inc()
		zap.S().Warnw("webhook delivery exhausted",
			"queue_id", item.ID, "webhook_id", item.WebhookID,
			"event", item.Event, "attempts", attempt)
		return
	}

	delay := Backoff(time.Duration(item.BackoffMs)*time.Millisecond, attempt)
	if err := d.store.Reschedule(ctx, item.ID, attempt, d.now().UTC().Add(delay)); err != nil {
		zap.S().Errorw("webhook reschedule failed", "queue_id", item.ID, "err", err)
	}
	metrics.WebhookAttemptsTotal.WithLabelValues("retry").Inc()
}

// Backoff computes the retry delay: base * 2^(attempt-1).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}
