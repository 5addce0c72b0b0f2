package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Env:                "development",
		HTTPPort:           "8080",
		DatabaseURL:        "postgres://localhost/canteen",
		ProviderMerchantID: "M123",
		ProviderSaltKey:    "salt-key",
		ProviderSaltIndex:  "1",
		ProviderTimeout:    10 * time.Second,
		VerificationMode:   ModeEnforced,
		LedgerBackend:      LedgerDB,
		LedgerRetention:    24 * time.Hour,
		WebhookRateLimit:   10,
		WebhookRateWindow:  time.Minute,
		APIRateLimitPerMin: 120,
		JWTSecret:          strings.Repeat("s", 32),
	}
}

func TestValidateAcceptsEnforcedConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsSandboxInProduction(t *testing.T) {
	cfg := validConfig()
	cfg.Env = "production"
	cfg.VerificationMode = ModeSandbox
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected sandbox in production to be rejected")
	}
	if !strings.Contains(err.Error(), "sandbox") {
		t.Fatalf("expected sandbox error, got %v", err)
	}
}

func TestValidateAllowsSandboxWithoutProviderCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.VerificationMode = ModeSandbox
	cfg.ProviderSaltKey = ""
	cfg.ProviderMerchantID = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sandbox should not require provider credentials: %v", err)
	}
}

func TestValidateRequiresSaltKeyInEnforcedMode(t *testing.T) {
	cfg := validConfig()
	cfg.ProviderSaltKey = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "PROVIDER_SALT_KEY") {
		t.Fatalf("expected salt-key error, got %v", err)
	}
}

func TestValidateRejectsUnknownVerificationMode(t *testing.T) {
	cfg := validConfig()
	cfg.VerificationMode = "demo"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown verification mode to be rejected")
	}
}

func TestValidateRequiresRedisAddrForRedisLedger(t *testing.T) {
	cfg := validConfig()
	cfg.LedgerBackend = LedgerRedis
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "REDIS_ADDR") {
		t.Fatalf("expected redis addr error, got %v", err)
	}
	cfg.RedisAddr = "localhost:6379"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("redis ledger with addr should validate: %v", err)
	}
}

func TestValidateCollectsMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.DatabaseURL = ""
	cfg.JWTSecret = "short"
	cfg.WebhookRateLimit = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	for _, want := range []string{"DATABASE_URL", "JWT_SECRET", "WEBHOOK_RATE_LIMIT"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in error, got %v", want, err)
		}
	}
}
