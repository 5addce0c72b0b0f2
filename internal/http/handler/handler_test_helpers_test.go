package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/canteenhq/canteen-payments/internal/domain"
	"github.com/canteenhq/canteen-payments/internal/provider"
	"github.com/canteenhq/canteen-payments/internal/repository"
	"github.com/canteenhq/canteen-payments/internal/service"
)

type fakeGateway struct {
	verifyResult provider.Verification
	verifyCalls  int

	createSession *provider.OrderSession
	createErr     error

	fetchSession *provider.OrderSession
}

func (g *fakeGateway) CreateOrder(_ context.Context, req provider.CreateOrderRequest) (*provider.OrderSession, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	if g.createSession != nil {
		return g.createSession, nil
	}
	return &provider.OrderSession{OrderID: req.OrderID, SessionID: "sess-" + req.OrderID, State: provider.StateCreated}, nil
}

func (g *fakeGateway) FetchOrder(context.Context, string) (*provider.OrderSession, error) {
	return g.fetchSession, nil
}

func (g *fakeGateway) VerifyPayment(context.Context, string) (provider.Verification, error) {
	g.verifyCalls++
	return g.verifyResult, nil
}

type handlerFixture struct {
	svc     *service.PaymentService
	gateway *fakeGateway
	orders  repository.OrderRepository
	txns    repository.TransactionRepository
	events  repository.WebhookEventRepository
}

func newHandlerFixture(t *testing.T, opts ...func(*service.PaymentServiceParams)) *handlerFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Order{},
		&domain.PaymentTransaction{},
		&domain.WebhookEvent{},
		&domain.ProcessedWebhook{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	gateway := &fakeGateway{
		verifyResult: provider.Verification{Verified: true, Code: provider.CodeSuccess},
	}
	params := service.PaymentServiceParams{
		Orders:     repository.NewOrderRepository(db),
		Txns:       repository.NewTransactionRepository(db),
		Events:     repository.NewWebhookEventRepository(db),
		Ledger:     service.NewMemoryLedger(24 * time.Hour),
		Limiter:    service.NewLocalFixedWindowLimiter(),
		Gateway:    gateway,
		Logger:     slog.New(slog.DiscardHandler),
		RateLimit:  10,
		RateWindow: time.Minute,
	}
	for _, opt := range opts {
		opt(&params)
	}
	return &handlerFixture{
		svc:     service.NewPaymentService(params),
		gateway: gateway,
		orders:  params.Orders,
		txns:    params.Txns,
		events:  params.Events,
	}
}
