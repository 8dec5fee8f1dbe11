// Package config loads service configuration from an optional file and
// ACCOUNTS_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "ACCOUNTS_"
	configPathEnv = "ACCOUNTS_CONFIG"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSupabase = "supabase"
)

// Config holds all application configuration.
type Config struct {
	// Server
	Port     int    `koanf:"port"`
	LogLevel string `koanf:"log-level"`

	// HTTP client
	HTTPTimeout time.Duration `koanf:"http-timeout"`

	// Resilience
	MaxRetries     int           `koanf:"max-retries"`
	InitialBackoff time.Duration `koanf:"initial-backoff"`
	MaxConcurrency int           `koanf:"max-concurrency"`

	// Cache
	CacheTTL time.Duration `koanf:"cache-ttl"`

	// Observability
	OTLPEndpoint string `koanf:"otlp-endpoint"`

	// Customer directory
	CustomerAPIURL string `koanf:"customer-api-url"`

	// Persistence
	Store       string `koanf:"store"`
	DatabaseURL string `koanf:"database-url"`
	DBMaxConns  int32  `koanf:"db-max-conns"`
	DBMigrate   bool   `koanf:"db-migrate"`

	// Supabase
	SupabaseURL            string `koanf:"supabase-url"`
	SupabaseAPIKey         string `koanf:"supabase-api-key"`
	SupabaseServiceRoleKey string `koanf:"supabase-service-role-key"`

	// Locking
	RedisAddr  string        `koanf:"redis-addr"`
	LockExpiry time.Duration `koanf:"lock-expiry"`

	// Allocation
	AllocatorMaxAttempts int `koanf:"allocator-max-attempts"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Port:     8080,
		LogLevel: "info",

		HTTPTimeout: 10 * time.Second,

		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxConcurrency: 50,

		CacheTTL: 5 * time.Minute,

		CustomerAPIURL: "http://localhost:8086",

		DBMaxConns: 10,
		DBMigrate:  true,

		LockExpiry: 8 * time.Second,

		AllocatorMaxAttempts: 50,
	}
}

// Load reads configuration in priority order: defaults, then the file named
// by ACCOUNTS_CONFIG (JSON or YAML), then ACCOUNTS_* environment variables.
// ACCOUNTS_DATABASE_URL sets "database-url".
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := strings.TrimSpace(os.Getenv(configPathEnv)); path != "" {
		if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, any) {
		if key == configPathEnv {
			return "", nil
		}
		return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(key, envPrefix), "_", "-")), value
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parserFor(path string) koanf.Parser {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return json.Parser()
	}
	return yaml.Parser()
}

// Backend resolves the store to use. A database URL implies postgres unless
// a store is named explicitly.
func (c *Config) Backend() string {
	if c.Store != "" {
		return strings.ToLower(c.Store)
	}
	if c.DatabaseURL != "" {
		return StorePostgres
	}
	return StoreMemory
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level %q", c.LogLevel)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.AllocatorMaxAttempts <= 0 {
		return fmt.Errorf("allocator-max-attempts must be positive, got %d", c.AllocatorMaxAttempts)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must not be negative, got %d", c.MaxRetries)
	}

	switch c.Backend() {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("store %q requires database-url", StorePostgres)
		}
	case StoreSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceRoleKey == "" {
			return fmt.Errorf("store %q requires supabase-url and supabase-service-role-key", StoreSupabase)
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	return nil
}
