package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/bankdash-bfa-go/internal/config"
	"github.com/boddenberg/bankdash-bfa-go/internal/handler"
	"github.com/boddenberg/bankdash-bfa-go/internal/infra/cache"
	"github.com/boddenberg/bankdash-bfa-go/internal/infra/client"
	"github.com/boddenberg/bankdash-bfa-go/internal/infra/observability"
	"github.com/boddenberg/bankdash-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/bankdash-bfa-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("bank_api_url", cfg.BankAPIURL),
		zap.Bool("startup_token", cfg.BankAPIToken != ""),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("fetch_timeout", cfg.FetchTimeout),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "bankdash-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Session + cache ---
	resources := cache.New()
	session := service.NewSession(logger)
	session.OnLogout(resources.Reset)
	if cfg.BankAPIToken != "" {
		if err := session.Login(cfg.BankAPIToken); err != nil {
			logger.Fatal("invalid BANK_API_TOKEN", zap.Error(err))
		}
	}

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxConcurrency:      cfg.MaxConcurrency,
		BreakerTimeout:      cfg.BreakerTimeout,
		BreakerMinRequests:  uint32(cfg.BreakerMinRequests),
		BreakerFailureRatio: cfg.BreakerFailureRatio,
	}
	cb := resilience.NewCircuitBreaker("bank-api", resilienceCfg)
	bulkhead := resilience.NewBulkhead(resilienceCfg.MaxConcurrency)

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	transport := client.NewTransport(httpClient, cfg.BankAPIURL, session, cb, bulkhead, metrics, logger)
	bank := client.NewBankClient(transport)

	// --- Services ---
	exec := service.NewExecutor(resources, metrics, logger, cfg.FetchTimeout)
	dashboard := service.NewDashboard(bank, exec, logger)
	mutator := service.NewMutator(bank, exec, metrics, logger)

	// --- Router ---
	router := handler.NewRouter(dashboard, mutator, session, metrics, logger)

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
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
