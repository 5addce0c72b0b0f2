package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// VerificationMode controls whether webhook signatures and provider
// status checks are enforced. Sandbox skips both and is only legal
// outside production.
type VerificationMode string

const (
	ModeEnforced VerificationMode = "enforced"
	ModeSandbox  VerificationMode = "sandbox"
)

// LedgerBackend selects the store behind the processed-transaction ledger.
type LedgerBackend string

const (
	LedgerMemory LedgerBackend = "memory"
	LedgerRedis  LedgerBackend = "redis"
	LedgerDB     LedgerBackend = "db"
)

type Config struct {
	Env      string
	HTTPPort string
	LogLevel string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string

	ProviderBaseURL    string
	ProviderMerchantID string
	ProviderSaltKey    string
	ProviderSaltIndex  string
	ProviderTimeout    time.Duration
	VerificationMode   VerificationMode

	LedgerBackend   LedgerBackend
	LedgerRetention time.Duration
	LedgerSweep     time.Duration

	WebhookRateLimit   int
	WebhookRateWindow  time.Duration
	APIRateLimitPerMin int

	JWTIssuer   string
	JWTAudience string
	JWTSecret   string

	ReceiptStorageEnabled bool
	MinioEndpoint         string
	MinioAccessKey        string
	MinioSecretKey        string
	MinioBucket           string
	MinioUseSSL           bool

	KafkaBrokers []string
	KafkaTopic   string
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		ProviderBaseURL:       getEnv("PROVIDER_BASE_URL", "https://api.payments.example.com"),
		ProviderMerchantID:    os.Getenv("PROVIDER_MERCHANT_ID"),
		ProviderSaltKey:       os.Getenv("PROVIDER_SALT_KEY"),
		ProviderSaltIndex:     getEnv("PROVIDER_SALT_INDEX", "1"),
		VerificationMode:      VerificationMode(strings.ToLower(getEnv("VERIFICATION_MODE", string(ModeEnforced)))),
		LedgerBackend:         LedgerBackend(strings.ToLower(getEnv("LEDGER_BACKEND", string(LedgerDB)))),
		WebhookRateLimit:      getEnvInt("WEBHOOK_RATE_LIMIT", 10),
		APIRateLimitPerMin:    getEnvInt("API_RATE_LIMIT_PER_MIN", 120),
		JWTIssuer:             getEnv("JWT_ISSUER", "canteen-payments"),
		JWTAudience:           getEnv("JWT_AUDIENCE", "canteen-platform"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		ReceiptStorageEnabled: getEnvBool("RECEIPT_STORAGE_ENABLED", false),
		MinioEndpoint:         os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:        os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:        os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:           getEnv("MINIO_BUCKET", "payment-receipts"),
		MinioUseSSL:           getEnvBool("MINIO_USE_SSL", true),
		KafkaBrokers:          splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:            getEnv("KAFKA_TOPIC", "payment-events"),
	}

	providerTimeout, err := time.ParseDuration(getEnv("PROVIDER_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("parse PROVIDER_TIMEOUT: %w", err)
	}
	cfg.ProviderTimeout = providerTimeout

	retention, err := time.ParseDuration(getEnv("LEDGER_RETENTION", "24h"))
	if err != nil {
		return nil, fmt.Errorf("parse LEDGER_RETENTION: %w", err)
	}
	cfg.LedgerRetention = retention

	sweep, err := time.ParseDuration(getEnv("LEDGER_SWEEP_INTERVAL", "15m"))
	if err != nil {
		return nil, fmt.Errorf("parse LEDGER_SWEEP_INTERVAL: %w", err)
	}
	cfg.LedgerSweep = sweep

	window, err := time.ParseDuration(getEnv("WEBHOOK_RATE_WINDOW", "60s"))
	if err != nil {
		return nil, fmt.Errorf("parse WEBHOOK_RATE_WINDOW: %w", err)
	}
	cfg.WebhookRateWindow = window

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	switch c.VerificationMode {
	case ModeEnforced:
		if c.ProviderSaltKey == "" {
			errs = append(errs, "PROVIDER_SALT_KEY is required in enforced mode")
		}
		if c.ProviderMerchantID == "" {
			errs = append(errs, "PROVIDER_MERCHANT_ID is required in enforced mode")
		}
	case ModeSandbox:
		if c.Env == "production" {
			errs = append(errs, "VERIFICATION_MODE=sandbox is not allowed when APP_ENV=production")
		}
	default:
		errs = append(errs, fmt.Sprintf("VERIFICATION_MODE must be %q or %q", ModeEnforced, ModeSandbox))
	}
	switch c.LedgerBackend {
	case LedgerMemory, LedgerDB:
	case LedgerRedis:
		if c.RedisAddr == "" {
			errs = append(errs, "REDIS_ADDR is required when LEDGER_BACKEND=redis")
		}
	default:
		errs = append(errs, "LEDGER_BACKEND must be memory, redis, or db")
	}
	if len(c.JWTSecret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 chars")
	}
	if c.ProviderTimeout <= 0 || c.ProviderTimeout > time.Minute {
		errs = append(errs, "PROVIDER_TIMEOUT must be between 1s and 1m")
	}
	if c.LedgerRetention < time.Hour {
		errs = append(errs, "LEDGER_RETENTION must be at least 1h")
	}
	if c.WebhookRateLimit <= 0 {
		errs = append(errs, "WEBHOOK_RATE_LIMIT must be > 0")
	}
	if c.WebhookRateWindow <= 0 {
		errs = append(errs, "WEBHOOK_RATE_WINDOW must be > 0")
	}
	if c.APIRateLimitPerMin <= 0 {
		errs = append(errs, "API_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.ReceiptStorageEnabled {
		if c.MinioEndpoint == "" || c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			errs = append(errs, "MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when RECEIPT_STORAGE_ENABLED=true")
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Sandbox reports whether the trust-downgraded mode is active.
func (c *Config) Sandbox() bool {
	return c.VerificationMode == ModeSandbox
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trim := strings.TrimSpace(p)
		if trim != "" {
			out = append(out, trim)
		}
	}
	return out
}
