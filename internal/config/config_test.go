package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boddenberg/bankdash-bfa-go/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := config.Load()

	if cfg.Port != 8080 || cfg.HTTPTimeout != 10*time.Second || cfg.MaxConcurrency != 50 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.OTLPEndpoint != "" {
		t.Errorf("expected tracing export disabled by default, got %q", cfg.OTLPEndpoint)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("BANK_API_URL", "http://bank:9000")
	t.Setenv("HTTP_TIMEOUT", "3s")
	t.Setenv("BREAKER_FAILURE_RATIO", "0.25")
	t.Setenv("MOCKBANK_SEED", "false")
	t.Setenv("PORT", "not-a-number")

	cfg := config.Load()

	if cfg.BankAPIURL != "http://bank:9000" || cfg.HTTPTimeout != 3*time.Second {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.BreakerFailureRatio != 0.25 || cfg.MockBankSeed {
		t.Errorf("unexpected parsed values %+v", cfg)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected fallback port on invalid value, got %d", cfg.Port)
	}
}

func TestLoadDotEnv_EnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "BANK_API_TOKEN=from-file\nLOG_LEVEL=\"debug\"\n# comment\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BANK_API_TOKEN", "from-env")
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("LOG_LEVEL")

	if err := config.LoadDotEnv(path); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	cfg := config.Load()
	if cfg.BankAPIToken != "from-env" {
		t.Errorf("expected real env to win, got %q", cfg.BankAPIToken)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected value from file, got %q", cfg.LogLevel)
	}
}

func TestLoadDotEnv_MissingFileIsFine(t *testing.T) {
	if err := config.LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("expected missing file to be skipped, got %v", err)
	}
}
