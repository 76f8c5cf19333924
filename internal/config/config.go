package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Bank API
	BankAPIURL   string
	BankAPIToken string // optional credential installed at startup

	// HTTP client
	HTTPTimeout  time.Duration
	FetchTimeout time.Duration // bound on a background cache fetch

	// Resilience
	MaxConcurrency      int
	BreakerTimeout      time.Duration
	BreakerMinRequests  int
	BreakerFailureRatio float64

	// Observability
	OTLPEndpoint string // empty disables tracing export

	// Mock bank (cmd/mockbank)
	MockBankPort              int
	MockBankJWTSecret         string
	MockBankTokenTTL          time.Duration
	MockBankUserEmail         string
	MockBankUserPassword      string
	MockBankSeedHistory       int
	MockBankRequestsPerMinute int
	MockBankLatency           time.Duration
	MockBankSeed              bool
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BankAPIURL:   getEnv("BANK_API_URL", "http://localhost:8081"),
		BankAPIToken: getEnv("BANK_API_TOKEN", ""),

		HTTPTimeout:  getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
		FetchTimeout: getEnvDuration("FETCH_TIMEOUT", 30*time.Second),

		MaxConcurrency:      getEnvInt("MAX_CONCURRENCY", 50),
		BreakerTimeout:      getEnvDuration("BREAKER_TIMEOUT", 10*time.Second),
		BreakerMinRequests:  getEnvInt("BREAKER_MIN_REQUESTS", 5),
		BreakerFailureRatio: getEnvFloat("BREAKER_FAILURE_RATIO", 0.6),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		MockBankPort:              getEnvInt("MOCKBANK_PORT", 8081),
		MockBankJWTSecret:         getEnv("MOCKBANK_JWT_SECRET", "mockbank-dev-secret-change-me"),
		MockBankTokenTTL:          getEnvDuration("MOCKBANK_TOKEN_TTL", time.Hour),
		MockBankUserEmail:         getEnv("MOCKBANK_USER_EMAIL", "demo@bankdash.local"),
		MockBankUserPassword:      getEnv("MOCKBANK_USER_PASSWORD", "demo"),
		MockBankSeedHistory:       getEnvInt("MOCKBANK_SEED_HISTORY", 45),
		MockBankRequestsPerMinute: getEnvInt("MOCKBANK_REQUESTS_PER_MINUTE", 0),
		MockBankLatency:           getEnvDuration("MOCKBANK_LATENCY", 0),
		MockBankSeed:              getEnvBool("MOCKBANK_SEED", true),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
