package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/boddenberg/account-ms/internal/config"
	"github.com/boddenberg/account-ms/internal/infra/lock"
	"github.com/boddenberg/account-ms/internal/infra/memstore"
	"github.com/boddenberg/account-ms/internal/infra/postgres"
	"github.com/boddenberg/account-ms/internal/infra/redislock"
	"github.com/boddenberg/account-ms/internal/infra/resilience"
	"github.com/boddenberg/account-ms/internal/infra/supabase"
	"github.com/boddenberg/account-ms/internal/port"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// openStore builds the configured AccountStore. The returned func releases
// its resources.
func openStore(ctx context.Context, cfg *config.Config, httpClient *http.Client, rcfg resilience.Config, logger *zap.Logger) (port.AccountStore, func(), error) {
	switch cfg.Backend() {
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{DSN: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns})
		if err != nil {
			return nil, nil, err
		}
		if cfg.DBMigrate {
			if err := postgres.Migrate(pool); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("database migrations applied")
		}
		logger.Info("using PostgreSQL account store", zap.Int32("max_conns", cfg.DBMaxConns))
		return postgres.New(pool, logger), pool.Close, nil

	case config.StoreSupabase:
		logger.Info("using Supabase account store", zap.String("supabase_url", cfg.SupabaseURL))
		c := supabase.NewClient(httpClient, cfg.SupabaseURL, cfg.SupabaseAPIKey, cfg.SupabaseServiceRoleKey, rcfg, logger)
		return supabase.NewAccountStore(c), func() {}, nil

	default:
		logger.Warn("using in-memory account store, data is lost on restart")
		return memstore.New(), func() {}, nil
	}
}

// openLocker picks the distributed lock when Redis is configured.
func openLocker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (port.Locker, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("using in-process account lock")
		return lock.NewKeyedMutex(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	opts := redislock.DefaultOptions()
	if cfg.LockExpiry > 0 {
		opts.Expiry = cfg.LockExpiry
	}
	logger.Info("using Redis account lock", zap.String("redis_addr", cfg.RedisAddr), zap.Duration("expiry", opts.Expiry))
	return redislock.New(rdb, opts, logger), func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("redis close failed", zap.Error(err))
		}
	}, nil
}
