package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func noEnv(string) (string, bool) { return "", false }

func mapEnv(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "0.0.0.0"
  port: 9000
  shutdown_timeout: 3s
redis:
  host: "redis.internal"
lsh:
  projections: 16
  tables: 64
  dim: 3
  seed: 7
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := load(path, "", noEnv)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr() != "0.0.0.0:9000" {
		t.Errorf("server addr = %s", cfg.Server.Addr())
	}
	if cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("shutdown timeout = %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Redis.Addr() != "redis.internal:6379" {
		t.Errorf("redis addr = %s", cfg.Redis.Addr())
	}
	want := LSHConfig{Projections: 16, Tables: 64, Dim: 3, Seed: 7}
	if cfg.LSH != want {
		t.Errorf("lsh = %+v, want %+v", cfg.LSH, want)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_defaults(t *testing.T) {
	cfg, err := load("", "", noEnv)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr() != "127.0.0.1:8080" {
		t.Errorf("server addr = %s", cfg.Server.Addr())
	}
	if cfg.Redis.Addr() != "localhost:6379" || cfg.Redis.DB != 0 || cfg.Redis.Password != "" {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	want := LSHConfig{Projections: 25, Tables: 30000, Dim: 768, Seed: 31}
	if cfg.LSH != want {
		t.Errorf("lsh = %+v, want %+v", cfg.LSH, want)
	}
	if cfg.Ingest.MaxReconnects != 10 || cfg.Ingest.BackfillBatch != 500 || cfg.Ingest.Workers != 0 {
		t.Errorf("ingest = %+v", cfg.Ingest)
	}
}

func TestLoad_envOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\nlsh:\n  seed: 5\n"), 0600); err != nil {
		t.Fatal(err)
	}
	env := mapEnv(map[string]string{
		"REDIS_HOST":      "cache",
		"REDIS_PORT":      "6380",
		"REDIS_PASSWORD":  "hunter2",
		"REDIS_DB":        "2",
		"RUST_API_HOST":   "0.0.0.0",
		"RUST_API_PORT":   "9100",
		"LSH_PROJECTIONS": "8",
		"LSH_TABLES":      "12",
		"LSH_DIM":         "4",
		"LSH_SEED":        "0",
		"INGEST_WORKERS":  "3",
		"DEBUG":           "true",
	})
	cfg, err := load(path, "", env)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Redis.Addr() != "cache:6380" || cfg.Redis.Password != "hunter2" || cfg.Redis.DB != 2 {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.Server.Addr() != "0.0.0.0:9100" {
		t.Errorf("server addr = %s", cfg.Server.Addr())
	}
	want := LSHConfig{Projections: 8, Tables: 12, Dim: 4, Seed: 0}
	if cfg.LSH != want {
		t.Errorf("lsh = %+v, want %+v", cfg.LSH, want)
	}
	if cfg.Ingest.Workers != 3 || !cfg.Debug {
		t.Errorf("workers = %d debug = %v", cfg.Ingest.Workers, cfg.Debug)
	}
}

func TestLoad_dotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("REDIS_HOST=from-dotenv\nLSH_DIM=16\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := load("", envFile, mapEnv(map[string]string{"LSH_DIM": "32"}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Redis.Host != "from-dotenv" {
		t.Errorf("redis host = %s, want value from .env", cfg.Redis.Host)
	}
	if cfg.LSH.Dim != 32 {
		t.Errorf("dim = %d, process environment should win over .env", cfg.LSH.Dim)
	}
}

func TestLoad_missingDotEnvIsIgnored(t *testing.T) {
	if _, err := load("", filepath.Join(t.TempDir(), ".env"), noEnv); err != nil {
		t.Fatalf("missing .env should be ignored, got %v", err)
	}
}

func TestLoad_errors(t *testing.T) {
	t.Run("missing_file", func(t *testing.T) {
		if _, err := load(filepath.Join(t.TempDir(), "nope.yaml"), "", noEnv); err == nil {
			t.Error("expected error for missing config file")
		}
	})
	t.Run("bad_yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("server: [\n"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := load(path, "", noEnv); err == nil {
			t.Error("expected parse error")
		}
	})
	t.Run("bad_int", func(t *testing.T) {
		_, err := load("", "", mapEnv(map[string]string{"REDIS_PORT": "sixtythree"}))
		if err == nil || !strings.Contains(err.Error(), "REDIS_PORT") {
			t.Errorf("expected REDIS_PORT error, got %v", err)
		}
	})
	t.Run("projections_over_64", func(t *testing.T) {
		_, err := load("", "", mapEnv(map[string]string{"LSH_PROJECTIONS": "65"}))
		if err == nil || !strings.Contains(err.Error(), "projections") {
			t.Errorf("expected projections error, got %v", err)
		}
	})
	t.Run("negative_tables", func(t *testing.T) {
		if _, err := load("", "", mapEnv(map[string]string{"LSH_TABLES": "-1"})); err == nil {
			t.Error("expected tables error")
		}
	})
	for name, tt := range map[string]struct{ yaml, want string }{
		"negative_shutdown_timeout": {"server:\n  shutdown_timeout: -1s\n", "shutdown timeout"},
		"negative_max_reconnects":   {"ingest:\n  max_reconnects: -1\n", "max reconnects"},
		"negative_backfill_batch":   {"ingest:\n  backfill_batch: -5\n", "backfill batch"},
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := load(path, "", noEnv)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %s error, got %v", tt.want, err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{Redis: RedisConfig{Port: 7000}}
	ApplyDefaults(cfg)
	if cfg.Redis.Port != 7000 {
		t.Errorf("explicit port overwritten: %d", cfg.Redis.Port)
	}
	if cfg.Server.Port != 8080 || cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("server defaults: %+v", cfg.Server)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server: ServerConfig{Host: "localhost", Port: 9090},
		LSH:    LSHConfig{Projections: 4, Tables: 8, Dim: 3, Seed: 0},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := load(path, "", noEnv)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.LSH.Seed != 0 {
		t.Errorf("explicit zero seed should survive a round trip, got %d", loaded.LSH.Seed)
	}
}
