package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"evrewards/backend/services/rewards-service/internal/address"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromFileAndEnv(t *testing.T) {
	path := writeFile(t, `
http:
  port: "9000"
storage:
  driver: memory
redis:
  addr: redis:6379
  challengeTTL: 2m
jwt:
  secret: file-secret
websocket:
  pingInterval: 15s
`)
	t.Setenv("REWARDS_JWT_SECRET", "env-secret")
	t.Setenv("REWARDS_RATE_LIMIT_BURST", "3")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddress() != ":9000" {
		t.Fatalf("unexpected address %s", cfg.HTTPAddress())
	}
	if cfg.JWT.Secret != "env-secret" {
		t.Fatalf("env must override file, got %q", cfg.JWT.Secret)
	}
	if cfg.Redis.ChallengeTTL != 2*time.Minute || cfg.WebSocket.PingInterval != 15*time.Second {
		t.Fatalf("durations not decoded: %+v %+v", cfg.Redis, cfg.WebSocket)
	}
	if cfg.RateLimit.Burst != 3 || cfg.RateLimit.RPS != 5 {
		t.Fatalf("unexpected rate limit %+v", cfg.RateLimit)
	}
	if cfg.WebSocket.WriteTimeout != 10*time.Second {
		t.Fatalf("defaults must survive partial files, got %s", cfg.WebSocket.WriteTimeout)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		cfg.Database.DSN = "postgres://localhost/rewards"
		cfg.JWT.Secret = "secret"
		return cfg
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]func(*Config){
		"missing dsn":     func(c *Config) { c.Database.DSN = "" },
		"unknown storage": func(c *Config) { c.Storage.Driver = "sqlite" },
		"missing secret":  func(c *Config) { c.JWT.Secret = " " },
		"missing redis":   func(c *Config) { c.Redis.Addr = "" },
		"zero rate":       func(c *Config) { c.RateLimit.RPS = 0 },
		"bad program id":  func(c *Config) { c.Program.ID = "0OIl" },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	memory := base()
	memory.Storage.Driver = StorageMemory
	memory.Database.DSN = ""
	if err := memory.Validate(); err != nil {
		t.Fatalf("memory storage needs no dsn: %v", err)
	}
}

func TestProgramID(t *testing.T) {
	cfg := Default()
	got, err := cfg.ProgramID()
	if err != nil {
		t.Fatalf("program id: %v", err)
	}
	if got != address.Hash([]byte(DefaultProgramSeed)) {
		t.Fatal("default program id must derive from the default seed")
	}

	explicit := address.Hash([]byte("other"))
	cfg.Program.ID = explicit.String()
	deriver, err := cfg.Deriver()
	if err != nil {
		t.Fatalf("deriver: %v", err)
	}
	if deriver.Program() != explicit {
		t.Fatal("deriver must use the configured program id")
	}
}

func TestFundSeeds(t *testing.T) {
	owner := address.Hash([]byte("buyer"))
	cfg := Default()
	cfg.JWT.Secret = "secret"
	cfg.Storage.Driver = StorageMemory
	cfg.Storage.Fund = []string{owner.String() + "=5000"}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid fund rejected: %v", err)
	}
	seeds, err := cfg.FundSeeds()
	if err != nil {
		t.Fatalf("fund seeds: %v", err)
	}
	if len(seeds) != 1 || seeds[owner] != 5000 {
		t.Fatalf("unexpected seeds %v", seeds)
	}

	for _, bad := range []string{owner.String(), "nope=1", owner.String() + "=-1"} {
		cfg.Storage.Fund = []string{bad}
		if err := cfg.Validate(); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}

	cfg.Storage.Fund = []string{owner.String() + "=1"}
	cfg.Storage.Driver = StoragePostgres
	cfg.Database.DSN = "postgres://localhost/rewards"
	if err := cfg.Validate(); err == nil {
		t.Fatal("fund entries must be rejected for postgres storage")
	}
}
