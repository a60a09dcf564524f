// internal/config/model.go
//
// Typed configuration model for Tabula.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                         – dotenv values,
//   • `conf/global.yaml`                      – primary static file,
//   • `TABULA_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *after* unmarshalling, so secrets stay out of
// flat files and git history while the model only ever stores plain
// strings.
//
// Validation happens immediately after unmarshal; the app fails fast if
// required fields are missing.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`—Koanf ignores `yaml` tags
//     unless configured otherwise.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.

package config

import (
	"strings"
	"time"
)

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
	ForceHTTPS bool   `koanf:"force_https"`
}

//
// Database section
//

// Database holds the DSN template and pool tunables.  The *template*
// (`DSN`) is kept in YAML so operators can tweak host, port, or flags
// without touching Vault.  The *secret* portion (`Password`) may be a
// `vault:` URI resolved at load time.
type Database struct {
	DSN             string        `koanf:"dsn" validate:"required"`
	Password        string        `koanf:"password"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

//
// Schema section
//

// Schema controls introspection caching.  CachePath is relative to the
// runtime root unless absolute.  CoreTables may override the built-in
// list of tables whose absence forces a production cache refresh.
type Schema struct {
	CachePath  string   `koanf:"cache_path" validate:"required"`
	CoreTables []string `koanf:"core_tables"`
}

//
// CRUD section
//

// CRUD configures table visibility and the global read-only switch.
type CRUD struct {
	AllowedTables []string `koanf:"allowed_tables"`
	DeniedTables  []string `koanf:"denied_tables"`
	Strict        bool     `koanf:"strict"`
	ReadOnly      bool     `koanf:"read_only"`
}

//
// Auth section
//

// Auth carries token lifetimes and the JWT signing secret (commonly a
// `vault:` URI).  CookieMode selects refresh-token transport: when true
// the refresh token travels as an HttpOnly cookie with a CSRF
// double-submit cookie; when false it travels in the JSON body (legacy).
type Auth struct {
	JWTSecret  string        `koanf:"jwt_secret" validate:"required"`
	AccessTTL  time.Duration `koanf:"access_ttl"`
	RefreshTTL time.Duration `koanf:"refresh_ttl"`
	CookieMode bool          `koanf:"cookie_mode"`
}

//
// Webhook section
//

// Webhook configures the background dispatcher.  Per-webhook rows may
// override BaseBackoff and MaxAttempts; these are the defaults snapshotted
// onto queue items at enqueue time.
type Webhook struct {
	PollInterval  time.Duration `koanf:"poll_interval"`
	MaxConcurrent int           `koanf:"max_concurrent"`
	BaseBackoff   time.Duration `koanf:"base_backoff"`
	MaxAttempts   int           `koanf:"max_attempts"`
	Timeout       time.Duration `koanf:"timeout"`
}

//
// Redis section
//

// Redis is optional.  When Addr is empty the rate limiter and idempotency
// store run on their in-memory fallbacks.
type Redis struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

//
// GeoIP section
//

// GeoIP is optional request enrichment.  When Path is empty no lookup
// happens and audit rows carry an empty country.
type GeoIP struct {
	Path string `koanf:"path"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime—never set in YAML or env.  The loader
// discovers `Root` (repo root or TABULA_ROOT override) so later code can
// build absolute file paths.
type Paths struct {
	Root string // TABULA_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	Env      string   `koanf:"env" validate:"required,oneof=development staging production"`
	HTTP     HTTP     `koanf:"http"`
	Database Database `koanf:"database"`
	Schema   Schema   `koanf:"schema"`
	CRUD     CRUD     `koanf:"crud"`
	Auth     Auth     `koanf:"auth"`
	Webhook  Webhook  `koanf:"webhook"`
	Redis    Redis    `koanf:"redis"`
	GeoIP    GeoIP    `koanf:"geoip"`
	Paths    Paths    `koanf:"-"` // not loaded from config files
}

// Production reports whether the cache-trusting refresh policy applies.
func (c *Config) Production() bool { return c.Env == "production" }

// ResolvedDSN splices the resolved password into the DSN template.  The
// template marks the insertion point with `__PASSWORD__`; a DSN without
// the marker is returned untouched (password embedded or not needed).
func (d Database) ResolvedDSN() string {
	if d.Password == "" {
		return d.DSN
	}
	return strings.ReplaceAll(d.DSN, "__PASSWORD__", d.Password)
}
