// internal/config/loader_test.go
//
// Unit-tests for the three-layer loader: YAML supplies the base values and
// a TABULA_-prefixed environment variable must win over them.
//
// Run: go test ./internal/config -v

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testYAML = `env: staging
http:
  listen_addr: ":8080"
database:
  dsn: "tabula:pw@tcp(127.0.0.1:3306)/tabula?parseTime=true"
schema:
  cache_path: "var/schema.json"
auth:
  jwt_secret: "unit-test-secret"
`

func writeConf(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	confDir := filepath.Join(root, "conf")
	if err := os.MkdirAll(confDir, 0o755); err != nil {
		t.Fatalf("mkdir conf: %v", err)
	}
	if err := os.WriteFile(filepath.Join(confDir, "global.yaml"), []byte(testYAML), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return root
}

func TestLoad_EnvOverlayOverridesYAML(t *testing.T) {
	root := writeConf(t)
	t.Setenv("TABULA_ROOT", root)
	t.Setenv("TABULA_HTTP__LISTEN_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTP.ListenAddr != ":9090" {
		t.Fatalf("listen_addr = %q, want the env override :9090", cfg.HTTP.ListenAddr)
	}
	if cfg.Env != "staging" {
		t.Fatalf("env = %q, want the YAML value", cfg.Env)
	}
	if cfg.Paths.Root != root {
		t.Fatalf("root = %q, want %q", cfg.Paths.Root, root)
	}

	// Fields the YAML omits pick up loader defaults.
	if cfg.Auth.AccessTTL != 15*time.Minute {
		t.Fatalf("access ttl default = %v, want 15m", cfg.Auth.AccessTTL)
	}
	if cfg.Database.MaxOpenConns != 15 {
		t.Fatalf("max open conns default = %d, want 15", cfg.Database.MaxOpenConns)
	}

	if Get() != cfg {
		t.Fatal("Load must cache the config for Get")
	}
}

func TestLoad_MissingYAMLFails(t *testing.T) {
	t.Setenv("TABULA_ROOT", t.TempDir())
	if _, err := Load(); err == nil {
		t.Fatal("Load without conf/global.yaml must fail")
	}
}
