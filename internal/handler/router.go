package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/bankdash-bfa-go/internal/domain"
	"github.com/boddenberg/bankdash-bfa-go/internal/infra/cache"
	"github.com/boddenberg/bankdash-bfa-go/internal/infra/observability"
	"github.com/boddenberg/bankdash-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// dash, mut and session may be nil, in which case only the operational
// endpoints are mounted.
func NewRouter(dash *service.Dashboard, mut *service.Mutator, session *service.Session, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(dash))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	if dash == nil || mut == nil || session == nil {
		return r
	}

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/metrics/cache", cacheMetricsHandler(dash.Executor().Cache(), metrics))

		// Session
		r.Get("/session", getSessionHandler(session))
		r.Post("/session", loginHandler(session, logger))
		r.Delete("/session", logoutHandler(session))

		r.Group(func(r chi.Router) {
			r.Use(BearerSessionMiddleware(session, logger))

			// Accounts
			r.Get("/accounts", listAccountsHandler(dash, logger))
			r.Post("/accounts", createAccountHandler(mut, logger))
			r.Post("/accounts/refetch", refetchAccountsHandler(dash, logger))
			r.Get("/accounts/{accountId}", getAccountHandler(dash, logger))
			r.Post("/accounts/{accountId}/close", closeAccountHandler(mut, logger))

			// Transactions
			r.Get("/accounts/{accountId}/transactions", listTransactionsHandler(dash, logger))
			r.Post("/accounts/{accountId}/transactions", simulateTransactionHandler(mut, logger))
			r.Get("/accounts/{accountId}/transactions/recent", recentTransactionsHandler(dash, logger))
			r.Post("/accounts/{accountId}/transactions/refetch", refetchTransactionsHandler(dash, logger))

			// Transfers
			r.Post("/transfers", transferHandler(mut, logger))
		})
	})

	return r
}

// healthzHandler reports the process as healthy and the bank as degraded
// when the last account fetch could not reach it. It never calls the bank.
func healthzHandler(dash *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := []domain.ServiceHealth{{Name: "bankdash", Status: "healthy"}}

		if dash != nil {
			status := "healthy"
			entry, ok := dash.Executor().Cache().Peek(service.AccountsKey())
			if ok && entry.Status == cache.StatusErrored {
				if de := domain.Classify(entry.Err); de.StatusCode() == 0 {
					status = "degraded"
				}
			}
			services = append(services, domain.ServiceHealth{Name: "bank", Status: status})
		}

		overall := "healthy"
		for _, s := range services {
			if s.Status != "healthy" {
				overall = s.Status
			}
		}
		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:    overall,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Services:  services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func cacheMetricsHandler(c *cache.Cache, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetCacheSnapshot(c.Len(), service.KindAccounts, service.KindTransactions))
	}
}
