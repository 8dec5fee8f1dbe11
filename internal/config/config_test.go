package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boddenberg/account-ms/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != 8080 || cfg.LogLevel != "info" {
		t.Errorf("unexpected server defaults: %+v", cfg)
	}
	if cfg.AllocatorMaxAttempts != 50 {
		t.Errorf("expected 50 allocator attempts, got %d", cfg.AllocatorMaxAttempts)
	}
	if cfg.Backend() != config.StoreMemory {
		t.Errorf("expected memory store, got %s", cfg.Backend())
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("ACCOUNTS_PORT", "9090")
	t.Setenv("ACCOUNTS_LOG_LEVEL", "debug")
	t.Setenv("ACCOUNTS_INITIAL_BACKOFF", "250ms")
	t.Setenv("ACCOUNTS_DATABASE_URL", "postgres://localhost/accounts")
	t.Setenv("ACCOUNTS_DB_MIGRATE", "false")
	t.Setenv("ACCOUNTS_REDIS_ADDR", "localhost:6379")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != 9090 || cfg.LogLevel != "debug" {
		t.Errorf("unexpected server config: %+v", cfg)
	}
	if cfg.InitialBackoff != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %s", cfg.InitialBackoff)
	}
	if cfg.DBMigrate {
		t.Error("expected migrations disabled")
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("unexpected redis addr %q", cfg.RedisAddr)
	}
	if cfg.Backend() != config.StorePostgres {
		t.Errorf("expected postgres store, got %s", cfg.Backend())
	}
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	content := `
port: 7000
customer-api-url: http://customers:8086
allocator-max-attempts: 10
cache-ttl: 30s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ACCOUNTS_CONFIG", path)
	t.Setenv("ACCOUNTS_PORT", "7001")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != 7001 {
		t.Errorf("expected env to win with 7001, got %d", cfg.Port)
	}
	if cfg.CustomerAPIURL != "http://customers:8086" {
		t.Errorf("unexpected customer url %q", cfg.CustomerAPIURL)
	}
	if cfg.AllocatorMaxAttempts != 10 || cfg.CacheTTL != 30*time.Second {
		t.Errorf("unexpected file values: %+v", cfg)
	}
}

func TestLoad_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	if err := os.WriteFile(path, []byte(`{"store":"supabase","supabase-url":"https://x.supabase.co","supabase-service-role-key":"k"}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ACCOUNTS_CONFIG", path)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Backend() != config.StoreSupabase {
		t.Errorf("expected supabase store, got %s", cfg.Backend())
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"log level", map[string]string{"ACCOUNTS_LOG_LEVEL": "verbose"}},
		{"attempts", map[string]string{"ACCOUNTS_ALLOCATOR_MAX_ATTEMPTS": "0"}},
		{"unknown store", map[string]string{"ACCOUNTS_STORE": "mongo"}},
		{"postgres without url", map[string]string{"ACCOUNTS_STORE": "postgres"}},
		{"supabase without key", map[string]string{"ACCOUNTS_STORE": "supabase", "ACCOUNTS_SUPABASE_URL": "https://x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := config.Load(); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("ACCOUNTS_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	if _, err := config.Load(); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
