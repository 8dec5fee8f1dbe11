package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/account-ms/internal/config"
	"github.com/boddenberg/account-ms/internal/handler"
	"github.com/boddenberg/account-ms/internal/infra/cache"
	"github.com/boddenberg/account-ms/internal/infra/client"
	"github.com/boddenberg/account-ms/internal/infra/observability"
	"github.com/boddenberg/account-ms/internal/infra/resilience"
	"github.com/boddenberg/account-ms/internal/service"

	"go.uber.org/zap"
)

const serviceName = "account-ms"

func main() {
	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(serviceName, cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store", cfg.Backend()),
		zap.Bool("distributed_lock", cfg.RedisAddr != ""),
		zap.String("customer_api_url", cfg.CustomerAPIURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Int("allocator_max_attempts", cfg.AllocatorMaxAttempts),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, serviceName)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// --- Store & lock ---
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	store, closeStore, err := openStore(startCtx, cfg, httpClient, resilienceCfg, logger)
	if err != nil {
		logger.Fatal("failed to open account store", zap.Error(err))
	}
	defer closeStore()

	locker, closeLocker, err := openLocker(startCtx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to set up account lock", zap.Error(err))
	}
	defer closeLocker()

	// --- Clients ---
	ownerCache := cache.New[bool](cfg.CacheTTL)
	defer ownerCache.Close()
	directory := client.NewCustomerClient(httpClient, cfg.CustomerAPIURL, resilienceCfg, ownerCache, metrics, logger)

	// --- Services ---
	allocator := service.NewAllocator(store, service.DefaultRandSource(), cfg.AllocatorMaxAttempts, metrics, logger)
	engine := service.NewEngine(store, locker, metrics, logger)
	lifecycle := service.NewLifecycle(store, directory, allocator, metrics, logger)
	adapter := service.NewNumberAdapter(store, engine)

	// --- Router ---
	router := handler.NewRouter(lifecycle, engine, adapter, store, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
		return
	}

	logger.Info("server stopped")
}
