// internal/ratelimit/ratelimit.go
//
// Fixed-window rate limiting with a shared redis backend and an
// in-memory fallback.
//
// Context
// -------
// Login and refresh are the brute-forceable endpoints; they get a
// per-key (client IP) fixed window.  When redis is configured, an
// INCR+PEXPIRE script keeps the window consistent across processes.
// When redis is absent or erroring, the limiter falls back to a local
// counter map.  The fallback fails toward more restrictive: it still
// counts and rejects locally, it only loses cross-process coordination.
// A redis error never turns into a silent allow.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yanizio/tabula/internal/metrics"
)

var allowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// Limiter is safe for concurrent use.
type Limiter struct {
	rdb    *redis.Client // nil → memory only
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	count     int
	windowEnd time.Time
}

// New builds a limiter allowing `limit` hits per `window` per key.  rdb
// may be nil.
func New(rdb *redis.Client, limit int, window time.Duration, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		rdb:     rdb,
		limit:   limit,
		window:  window,
		now:     now,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether the key may proceed.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l.limit <= 0 {
		return true
	}

	if l.rdb != nil {
		current, err := allowScript.Run(ctx, l.rdb,
			[]string{"rl:" + key}, l.window.Milliseconds()).Int64()
		if err == nil {
			if current > int64(l.limit) {
				metrics.RateLimitRejectsTotal.Inc()
				return false
			}
			return true
		}
		zap.S().Warnw("rate limiter redis unavailable, using memory fallback",
			"key", key, "err", err)
	}

	return l.allowMemory(key)
}

func (l *Limiter) allowMemory(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.After(b.windowEnd) {
		l.gc(now)
		b = &bucket{windowEnd: now.Add(l.window)}
		l.buckets[key] = b
	}
	b.count++
	if b.count > l.limit {
		metrics.RateLimitRejectsTotal.Inc()
		return false
	}
	return true
}

// gc drops expired buckets; called with the lock held.
func (l *Limiter) gc(now time.Time) {
	if len(l.buckets) < 10000 {
		return
	}
	for k, b := range l.buckets {
		if now.After(b.windowEnd) {
			delete(l.buckets, k)
		}
	}
}
