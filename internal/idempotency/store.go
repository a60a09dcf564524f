// internal/idempotency/store.go
//
// Idempotency-key storage.
//
// Context
// -------
// A client-supplied `Idempotency-Key` header lets a repeated POST safely
// return the original result instead of re-executing.  Entries live in
// redis so replays work across processes; when redis is unconfigured or
// errors, a bounded in-memory LRU takes over.  The fallback loses
// cross-process coordination but stays functionally safe: the same
// process still deduplicates, and a missing entry only ever means the
// request executes again (at-least-once), never that a stored response
// leaks to the wrong caller.
//
// Keys are hashed over (header value, route, actor id) so two users
// reusing the same header value can never observe each other's responses.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yanizio/tabula/internal/cache"
)

// Stored is the replayable original response.
type Stored struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// Store persists responses keyed by idempotency fingerprint.
type Store struct {
	rdb *redis.Client // nil → memory only
	ttl time.Duration

	mu  sync.Mutex
	mem *cache.LRU
}

// New builds a Store.  rdb may be nil.
func New(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{rdb: rdb, ttl: ttl, mem: cache.New(4096)}
}

// Fingerprint derives the storage key.
func Fingerprint(headerValue, route string, actorID int64) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d", headerValue, route, actorID))
	return "idem:" + hex.EncodeToString(sum[:])
}

// Get returns the stored response for key, if any.
func (s *Store) Get(ctx context.Context, key string) (*Stored, bool) {
	if s.rdb != nil {
		raw, err := s.rdb.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var st Stored
			if json.Unmarshal(raw, &st) == nil {
				return &st, true
			}
		case err != redis.Nil:
			zap.S().Warnw("idempotency redis get failed, using memory fallback", "err", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.mem.Get(key); ok {
		st := v.(Stored)
		return &st, true
	}
	return nil, false
}

// Put stores the original response under key.  Failures are logged, never
// surfaced: losing an idempotency entry degrades to re-execution.
func (s *Store) Put(ctx context.Context, key string, st Stored) {
	if s.rdb != nil {
		raw, _ := json.Marshal(st)
		if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
			zap.S().Warnw("idempotency redis set failed, storing in memory", "err", err)
		}
	}
	// Always mirror into memory so a redis blip mid-request still dedupes
	// locally.
	s.mu.Lock()
	s.mem.Add(key, st, s.ttl)
	s.mu.Unlock()
}
