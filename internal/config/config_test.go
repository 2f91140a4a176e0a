package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  addr: ":9090"
postgres:
  dsn: "postgres://localhost/feeds"
trust:
  trusted_transport: relay-1
  authorized_origin: origin-deployment
  operator_key: secret
rate_limit:
  requests_per_second: 10
  burst: 20
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Trust.TrustedTransport != "relay-1" {
		t.Fatalf("unexpected config: %#v", cfg)
	}
	if cfg.RateLimit.RequestsPerSecond != 10 || cfg.RateLimit.Burst != 20 {
		t.Fatalf("unexpected rate limit: %#v", cfg.RateLimit)
	}
}

func TestLoad_MissingTrustAnchors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: \":8080\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for missing trust anchors")
	}
}

func TestLoadOrDefault_EnvOverrides(t *testing.T) {
	t.Setenv("TRUSTED_TRANSPORT", "relay-env")
	t.Setenv("AUTHORIZED_ORIGIN", "origin-env")
	t.Setenv("DATABASE_URL", "postgres://env/feeds")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Trust.TrustedTransport != "relay-env" || cfg.Trust.AuthorizedOrigin != "origin-env" {
		t.Fatalf("env overrides not applied: %#v", cfg.Trust)
	}
	if cfg.Postgres.DSN != "postgres://env/feeds" {
		t.Fatalf("dsn override not applied: %s", cfg.Postgres.DSN)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("default addr missing: %s", cfg.Server.Addr)
	}
}
