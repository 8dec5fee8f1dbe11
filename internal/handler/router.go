package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/account-ms/internal/domain"
	"github.com/boddenberg/account-ms/internal/infra/observability"
	"github.com/boddenberg/account-ms/internal/port"
	"github.com/boddenberg/account-ms/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

const healthCheckTimeout = 2 * time.Second

// NewRouter creates the HTTP router with all routes and middleware.
// Account paths keep the layout existing clients already call.
func NewRouter(lifecycle *service.Lifecycle, engine *service.Engine, adapter *service.NumberAdapter, store port.Pinger, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(store))
	r.Get("/readyz", readyzHandler(store, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{Registry: metrics.Registry}))

	// --- Accounts ---
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", listAccountsHandler(lifecycle, logger))
		r.With(JSONBodyMiddleware(logger)).Post("/", createAccountHandler(lifecycle, logger))

		r.Get("/byAccountNumber/{accountNumber}", getAccountByNumberHandler(lifecycle, logger))
		r.Get("/customer/{customerId}", listAccountsByCustomerHandler(lifecycle, logger))

		// Transaction service entry points, addressed by account number.
		r.Group(func(r chi.Router) {
			r.Use(JSONBodyMiddleware(logger))
			r.Post("/tDeposit", depositByNumberHandler(adapter, logger))
			r.Post("/tWithdrawal", withdrawByNumberHandler(adapter, logger))
		})

		r.Get("/{id}", getAccountHandler(lifecycle, logger))
		r.Delete("/{id}", deleteAccountHandler(lifecycle, logger))
		r.Put("/{id}/deposit", depositHandler(engine, logger))
		r.Put("/{id}/withdraw", withdrawHandler(engine, logger))
	})

	return r
}

// ============================================================
// Operational Handlers
// ============================================================

// healthzHandler reports liveness. A failing store degrades the report but
// never fails the probe.
func healthzHandler(store port.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "accounts-api", Status: "healthy", LastChecked: now},
		}

		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()

			start := time.Now()
			err := store.Ping(ctx)
			status := "healthy"
			if err != nil {
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name:        "account-store",
				Status:      status,
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status != "healthy" {
				overallStatus = s.Status
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

// readyzHandler reports readiness: the store must answer.
func readyzHandler(store port.Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				logger.Warn("readiness check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
