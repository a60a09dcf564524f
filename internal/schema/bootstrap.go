// internal/schema/bootstrap.go
//
// Memoized schema bootstrap with an on-disk JSON cache.
//
// Context
// -------
// Introspection is expensive and races during cold start: every request
// path needs the Snapshot, and N concurrent callers must share one
// in-flight introspection rather than issue N.  The Bootstrap type wraps
// a singleflight.Group keyed by `database|cachePath` plus a sync.Map memo
// that holds the result for the process lifetime.
//
// Refresh policy
// --------------
// Non-production environments always re-introspect.  Production trusts
// the on-disk cache unless one of the core tables (auth, RBAC, audit, and
// webhook plumbing) is missing from it, in which case it forcibly
// refreshes and logs a warning instead of failing startup.  A corrupt or
// unreadable cache file is a cache miss, never a fatal error.
//
// Notes
// -----
// • The cache file is written atomically (temp file + rename).
// • Oxford commas, two spaces after periods.
package schema

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/tabula/internal/metrics"
)

// defaultCoreTables are the tables production startup refuses to run
// without; a cached snapshot missing any of them is considered stale.
var defaultCoreTables = []string{
	"users", "roles", "user_roles", "role_permissions",
	"audit_log", "refresh_tokens", "webhooks", "webhook_queue",
}

// Options configures a Bootstrap.
type Options struct {
	Database   string
	CachePath  string
	Production bool
	CoreTables []string // nil → defaultCoreTables
}

// Bootstrap memoizes one Snapshot per (database, cachePath) key.
type Bootstrap struct {
	db   *sqlx.DB
	opt  Options
	sfg  singleflight.Group
	memo sync.Map // key → *Snapshot
}

// NewBootstrap wires a Bootstrap around an open pool.
func NewBootstrap(db *sqlx.DB, opt Options) *Bootstrap {
	if len(opt.CoreTables) == 0 {
		opt.CoreTables = defaultCoreTables
	}
	return &Bootstrap{db: db, opt: opt}
}

func (b *Bootstrap) key() string { return b.opt.Database + "|" + b.opt.CachePath }

// Snapshot returns the memoized Snapshot, loading it on first use.
// Concurrent first callers share a single introspection.
func (b *Bootstrap) Snapshot(ctx context.Context) (*Snapshot, error) {
	if v, ok := b.memo.Load(b.key()); ok {
		return v.(*Snapshot), nil
	}

	v, err, _ := b.sfg.Do(b.key(), func() (interface{}, error) {
		// Double-check after the singleflight barrier.
		if v, ok := b.memo.Load(b.key()); ok {
			return v, nil
		}
		snap, err := b.load(ctx)
		if err != nil {
			return nil, err
		}
		b.memo.Store(b.key(), snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Refresh forces a re-introspection, persists it, and replaces the memo.
func (b *Bootstrap) Refresh(ctx context.Context) (*Snapshot, error) {
	snap, err := b.introspectAndPersist(ctx)
	if err != nil {
		return nil, err
	}
	b.memo.Store(b.key(), snap)
	return snap, nil
}

// load applies the refresh policy.
func (b *Bootstrap) load(ctx context.Context) (*Snapshot, error) {
	if !b.opt.Production {
		return b.introspectAndPersist(ctx)
	}

	cached := b.readCache()
	if cached == nil {
		return b.introspectAndPersist(ctx)
	}
	if missing := b.missingCoreTables(cached); len(missing) > 0 {
		zap.S().Warnw("schema cache missing core tables, forcing refresh",
			"missing", missing, "cache", b.opt.CachePath)
		return b.introspectAndPersist(ctx)
	}
	zap.S().Infow("schema loaded from cache",
		"tables", len(cached.Tables), "hash", cached.Hash)
	return cached, nil
}

func (b *Bootstrap) missingCoreTables(s *Snapshot) []string {
	var missing []string
	for _, t := range b.opt.CoreTables {
		if _, ok := s.Tables[t]; !ok {
			missing = append(missing, t)
		}
	}
	return missing
}

// readCache returns nil on any failure; corruption is a miss, not an error.
func (b *Bootstrap) readCache() *Snapshot {
	raw, err := os.ReadFile(b.opt.CachePath)
	if err != nil {
		return nil
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		zap.S().Warnw("schema cache unreadable, treating as miss",
			"cache", b.opt.CachePath, "err", err)
		return nil
	}
	if snap.Tables == nil || snap.Hash == "" {
		return nil
	}
	return &snap
}

func (b *Bootstrap) introspectAndPersist(ctx context.Context) (*Snapshot, error) {
	snap, err := Introspect(ctx, b.db, b.opt.Database)
	if err != nil {
		return nil, err
	}
	metrics.SchemaRefreshTotal.Inc()
	if err := b.persist(snap); err != nil {
		// Persistence failure degrades the next cold start, nothing more.
		zap.S().Warnw("schema cache write failed", "cache", b.opt.CachePath, "err", err)
	}
	zap.S().Infow("schema introspected",
		"database", snap.Database, "tables", len(snap.Tables), "hash", snap.Hash)
	return snap, nil
}

func (b *Bootstrap) persist(s *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(b.opt.CachePath), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := b.opt.CachePath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, b.opt.CachePath)
}
