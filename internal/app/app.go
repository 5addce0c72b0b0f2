package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/canteenhq/canteen-payments/internal/config"
	"github.com/canteenhq/canteen-payments/internal/database"
	"github.com/canteenhq/canteen-payments/internal/events"
	apphttp "github.com/canteenhq/canteen-payments/internal/http"
	"github.com/canteenhq/canteen-payments/internal/http/handler"
	"github.com/canteenhq/canteen-payments/internal/http/middleware"
	"github.com/canteenhq/canteen-payments/internal/observability"
	"github.com/canteenhq/canteen-payments/internal/provider"
	"github.com/canteenhq/canteen-payments/internal/repository"
	"github.com/canteenhq/canteen-payments/internal/security"
	"github.com/canteenhq/canteen-payments/internal/service"
)

const ledgerSweepBatchSize = 500

type App struct {
	Config *config.Config
	Logger *slog.Logger
	Server *http.Server

	sweeper   *service.DBLedger
	sweepStop chan struct{}
	kafka     *events.KafkaPublisher
	redis     *redis.Client
}

// New builds the whole service from environment configuration. The
// ledger and limiter backends, receipt storage, and the outcome
// publisher are all optional pieces selected by config; everything else
// is mandatory.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	app := &App{Config: cfg, Logger: logger}

	if cfg.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
	}

	var ledger service.ProcessedLedger
	switch cfg.LedgerBackend {
	case config.LedgerRedis:
		ledger = service.NewRedisLedger(app.redis, "webhook:ledger", cfg.LedgerRetention)
	case config.LedgerMemory:
		ledger = service.NewMemoryLedger(cfg.LedgerRetention)
	default:
		dbLedger := service.NewDBLedger(db, cfg.LedgerRetention)
		ledger = dbLedger
		app.sweeper = dbLedger
	}

	var limiter service.Limiter
	if app.redis != nil {
		limiter = service.NewRedisFixedWindowLimiter(app.redis, "ratelimit")
	} else {
		limiter = service.NewLocalFixedWindowLimiter()
	}

	signer := security.NewSignatureVerifier(cfg.ProviderSaltKey, cfg.ProviderSaltIndex)
	gateway := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderMerchantID, signer, cfg.ProviderTimeout, logger)

	var receipts service.ReceiptStore
	if cfg.ReceiptStorageEnabled {
		store, err := service.NewMinIOReceiptStore(
			cfg.MinioEndpoint,
			cfg.MinioAccessKey,
			cfg.MinioSecretKey,
			cfg.MinioBucket,
			cfg.MinioUseSSL,
		)
		if err != nil {
			return nil, fmt.Errorf("receipt storage: %w", err)
		}
		receipts = store
	}

	var outcomes service.OutcomePublisher
	if len(cfg.KafkaBrokers) > 0 {
		app.kafka = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		outcomes = app.kafka
	}

	svc := service.NewPaymentService(service.PaymentServiceParams{
		Orders:     repository.NewOrderRepository(db),
		Txns:       repository.NewTransactionRepository(db),
		Events:     repository.NewWebhookEventRepository(db),
		Ledger:     ledger,
		Limiter:    limiter,
		Gateway:    gateway,
		Receipts:   receipts,
		Outcomes:   outcomes,
		Logger:     logger,
		Sandbox:    cfg.Sandbox(),
		RateLimit:  cfg.WebhookRateLimit,
		RateWindow: cfg.WebhookRateWindow,
	})

	jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret)
	apiLimit := middleware.NewRateLimiter(
		limiter,
		cfg.APIRateLimitPerMin,
		time.Minute,
		middleware.FailOpen,
		nil,
	)

	router := apphttp.NewRouter(apphttp.RouterParams{
		Webhooks: handler.NewWebhookHandler(svc, signer, logger, cfg.Sandbox()),
		Payments: handler.NewPaymentHandler(svc, logger),
		Health:   handler.NewHealthHandler(db),
		Auth:     middleware.RequireAuth(jwtMgr),
		APILimit: apiLimit,
	})

	app.Server = &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if app.sweeper != nil {
		app.sweepStop = make(chan struct{})
		go app.runLedgerSweeper()
	}
	return app, nil
}

// runLedgerSweeper drops expired idempotency rows so the ledger table
// stays bounded at the retention window.
func (a *App) runLedgerSweeper() {
	ticker := time.NewTicker(a.Config.LedgerSweep)
	defer ticker.Stop()
	for {
		select {
		case <-a.sweepStop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			removed, err := a.sweeper.CleanupExpired(ctx, time.Now(), ledgerSweepBatchSize)
			cancel()
			if err != nil {
				a.Logger.Error("ledger sweep failed", "error", err.Error())
				continue
			}
			if removed > 0 {
				a.Logger.Info("ledger sweep removed expired entries", "count", removed)
			}
		}
	}
}

// Shutdown stops the HTTP server and background workers.
func (a *App) Shutdown(ctx context.Context) error {
	if a.sweepStop != nil {
		close(a.sweepStop)
	}
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.Logger.Error("close kafka publisher", "error", err.Error())
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Error("close redis client", "error", err.Error())
		}
	}
	return a.Server.Shutdown(ctx)
}

// RunMigrationOnly applies schema migrations and exits without serving.
func RunMigrationOnly() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	return database.Migrate(db)
}
