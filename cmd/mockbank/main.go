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
	"github.com/boddenberg/bankdash-bfa-go/internal/infra/observability"
	"github.com/boddenberg/bankdash-bfa-go/internal/mockbank"

	"go.uber.org/zap"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg := config.Load()

	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	// --- Store ---
	store := mockbank.NewStore()
	user, err := store.AddUser(cfg.MockBankUserEmail, cfg.MockBankUserPassword)
	if err != nil {
		logger.Fatal("failed to create demo user", zap.Error(err))
	}
	if cfg.MockBankSeed {
		if err := store.Seed(user.ID, cfg.MockBankSeedHistory); err != nil {
			logger.Fatal("failed to seed demo data", zap.Error(err))
		}
	}

	logger.Info("demo user ready",
		zap.String("email", cfg.MockBankUserEmail),
		zap.String("password", cfg.MockBankUserPassword),
		zap.Bool("seeded", cfg.MockBankSeed),
	)

	// --- Server ---
	issuer := mockbank.NewIssuer(cfg.MockBankJWTSecret, cfg.MockBankTokenTTL)
	opts := mockbank.Options{
		RequestsPerMinute: cfg.MockBankRequestsPerMinute,
		Latency:           cfg.MockBankLatency,
	}
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.MockBankPort),
		Handler:      mockbank.NewServer(store, issuer, opts, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("mock bank starting",
			zap.Int("port", cfg.MockBankPort),
			zap.Int("requests_per_minute", opts.RequestsPerMinute),
			zap.Duration("latency", opts.Latency),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("mock bank failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("mock bank forced shutdown", zap.Error(err))
	}

	logger.Info("mock bank stopped")
}
