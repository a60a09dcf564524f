// cmd/api/main.go
//
// Tabula – HTTP entry point.
//
// Boot sequence
// -------------
//
//  1. Load env vars (jail-wide file → .env fallback).
//
//  2. Start daily rotating logger (tees to console when running in a TTY).
//
//  3. Optional Vault client; installs the `vault:` secret resolver before
//     the config loader runs.
//
//  4. Load and validate the typed config.
//
//  5. Open the database, bootstrap the schema snapshot, and build the
//     entity map.
//
//  6. Construct services: CRUD engine, RBAC-guarded handlers, auth and
//     refresh-token services, audit recorder, webhook enqueuer and
//     dispatcher, and the optional Redis-backed rate limiter and
//     idempotency store.
//
//  7. Mount routes: `/api` (CRUD + OpenAPI), `/auth` (rate-limited),
//     `/metrics` (Prometheus), `/healthz`.
//
//  8. Serve with blanket timeouts; drain background workers on SIGTERM.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	mysql "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yanizio/tabula/internal/audit"
	"github.com/yanizio/tabula/internal/auth"
	"github.com/yanizio/tabula/internal/config"
	"github.com/yanizio/tabula/internal/crud"
	"github.com/yanizio/tabula/internal/database"
	"github.com/yanizio/tabula/internal/idempotency"
	"github.com/yanizio/tabula/internal/logger"
	"github.com/yanizio/tabula/internal/middleware"
	"github.com/yanizio/tabula/internal/model"
	"github.com/yanizio/tabula/internal/openapi"
	"github.com/yanizio/tabula/internal/ratelimit"
	"github.com/yanizio/tabula/internal/rbac"
	"github.com/yanizio/tabula/internal/requestinfo"
	"github.com/yanizio/tabula/internal/schema"
	"github.com/yanizio/tabula/internal/server"
	"github.com/yanizio/tabula/internal/token"
	"github.com/yanizio/tabula/internal/vault"
	"github.com/yanizio/tabula/internal/webhook"
)

const serverEnvPath = "/usr/local/etc/tabula/global.env"

// Auth endpoints get a tight fixed-window limit; the CRUD surface relies
// on RBAC plus pool back-pressure instead.
const (
	authRateLimit  = 10
	authRateWindow = time.Minute
)

// loadEnv prefers the jail-wide env file; on dev it falls back to .env.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
		return
	}
	_ = godotenv.Load()
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func init() { loadEnv() }

func main() {
	rootDir, _ := os.Getwd()
	sugar, err := logger.New(rootDir, runningInTTY(), os.Getenv("TABULA_LOG_LEVEL"))
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}
	defer sugar.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//
	// ── 1.  Vault resolver (optional) ───────────────────────────────────
	//
	if os.Getenv("VAULT_ADDR") != "" {
		vc, err := vault.New(ctx, sugar.Infof)
		if err != nil {
			sugar.Fatalw("vault client", "err", err)
		}
		config.SetSecretResolver(vc.Resolver(10 * time.Minute))
	}

	//
	// ── 2.  Config ──────────────────────────────────────────────────────
	//
	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalw("load config", "err", err)
	}
	sugar.Infow("config loaded", "env", cfg.Env, "listen", cfg.HTTP.ListenAddr)

	//
	// ── 3.  Database + schema snapshot + entity map ─────────────────────
	//
	dsn := cfg.Database.ResolvedDSN()
	db, err := database.OpenWithOptions(ctx, dsn, database.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		sugar.Fatalw("connect database", "err", err)
	}
	defer db.Close()

	dbName := databaseName(dsn)
	if dbName == "" {
		sugar.Fatal("DSN has no database name")
	}

	boot := schema.NewBootstrap(db, schema.Options{
		Database:   dbName,
		CachePath:  cfg.Schema.CachePath,
		Production: cfg.Production(),
		CoreTables: cfg.Schema.CoreTables,
	})
	snap, err := boot.Snapshot(ctx)
	if err != nil {
		sugar.Fatalw("schema bootstrap", "err", err)
	}
	entities := model.Build(snap)
	sugar.Infow("schema ready", "tables", len(entities), "hash", snap.Hash[:12])

	//
	// ── 4.  Optional Redis, GeoIP ───────────────────────────────────────
	//
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}
	if cfg.GeoIP.Path != "" {
		if err := requestinfo.InitGeo(cfg.GeoIP.Path); err != nil {
			sugar.Warnw("geoip disabled", "err", err)
		}
	}

	//
	// ── 5.  Services ────────────────────────────────────────────────────
	//
	recorder := audit.NewRecorder(db, 0, 0) // package defaults
	defer recorder.Close()

	hookStore := webhook.NewStore(db)
	enqueuer := webhook.NewEnqueuer(hookStore, webhook.Defaults{
		MaxAttempts: cfg.Webhook.MaxAttempts,
		BaseBackoff: cfg.Webhook.BaseBackoff,
	}, time.Now)
	dispatcher := webhook.NewDispatcher(hookStore,
		cfg.Webhook.PollInterval, cfg.Webhook.Timeout, cfg.Webhook.MaxConcurrent, time.Now)
	dispatcher.Start()
	defer dispatcher.Close()

	vis := crud.NewVisibility(cfg.CRUD.AllowedTables, cfg.CRUD.DeniedTables, cfg.CRUD.Strict)
	engine := crud.NewEngine(db, entities, vis, cfg.CRUD.ReadOnly)
	idem := idempotency.New(rdb, 24*time.Hour)
	crudHandler := crud.NewHandler(engine, idem, enqueuer)

	jwtManager := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, time.Now)
	tokenSvc := token.NewService(token.NewStore(db), cfg.Auth.RefreshTTL, time.Now)
	authHandler := auth.NewHandler(auth.NewStore(db), jwtManager, tokenSvc,
		cfg.Auth.CookieMode, cfg.Auth.RefreshTTL)

	limiter := ratelimit.New(rdb, authRateLimit, authRateWindow, time.Now)
	gen := openapi.NewGenerator()
	snapshotFn := func(r *http.Request) (*schema.Snapshot, error) {
		return boot.Snapshot(r.Context())
	}

	//
	// ── 6.  Router ──────────────────────────────────────────────────────
	//
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return middleware.ForceHTTPS(cfg.HTTP.ForceHTTPS, next)
	})
	r.Use(middleware.SecureHeaders)
	r.Use(requestinfo.Enrich)
	r.Use(auth.Middleware(jwtManager))
	r.Use(audit.Completion(recorder))

	r.Route("/api", func(r chi.Router) {
		// The generated contract discloses the full schema shape, so it
		// sits behind the same capability as the table list.
		r.With(rbac.RequireMetaRead).Get("/openapi.yaml", openapi.YAMLHandler(gen, snapshotFn))
		r.With(rbac.RequireMetaRead).Get("/openapi.json", openapi.JSONHandler(gen, snapshotFn))
		r.Mount("/", crudHandler.Routes())
	})
	r.Mount("/auth", authHandler.Routes(ratelimit.Middleware(limiter)))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := db.PingContext(req.Context()); err != nil {
			http.Error(w, "db unreachable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})

	//
	// ── 7.  Serve + graceful shutdown ───────────────────────────────────
	//
	srv := server.New(cfg.HTTP.ListenAddr, r)

	go func() {
		sugar.Infow("listening", "addr", cfg.HTTP.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("http server", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutdown signal received")

	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		sugar.Warnw("server shutdown", "err", err)
	}
	zap.L().Info("bye")
}

// databaseName extracts the schema name from a MySQL DSN.
func databaseName(dsn string) string {
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return ""
	}
	return c.DBName
}
