package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/canteenhq/canteen-payments/internal/domain"
	"github.com/canteenhq/canteen-payments/internal/provider"
	"github.com/canteenhq/canteen-payments/internal/repository"
)

var (
	// ErrRateLimited means the per-transaction delivery ceiling was hit;
	// the transaction becomes eligible again after the window.
	ErrRateLimited = errors.New("webhook rate limited")

	// ErrInProgress means another delivery for the same transaction is
	// being processed right now; the provider's retry will resolve it.
	ErrInProgress = errors.New("webhook already being processed")

	// ErrUnconfirmed means the provider status check was inconclusive;
	// the order stays pending and the delivery must be retried.
	ErrUnconfirmed = errors.New("payment could not be verified")

	// ErrTerminalSession means the provider order exists but can no
	// longer be paid (already paid or expired).
	ErrTerminalSession = errors.New("payment session is in a terminal state")
)

// PaymentProvider is the outbound surface this service needs from the
// payment gateway.
type PaymentProvider interface {
	CreateOrder(ctx context.Context, req provider.CreateOrderRequest) (*provider.OrderSession, error)
	FetchOrder(ctx context.Context, orderID string) (*provider.OrderSession, error)
	VerifyPayment(ctx context.Context, transactionID string) (provider.Verification, error)
}

// WebhookEvent is the decoded provider callback payload. The order and
// transaction ids are explicit fields; nothing is recovered by parsing
// composite strings.
type WebhookEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
	Data    struct {
		Order struct {
			OrderID string `json:"order_id"`
		} `json:"order"`
		Payment struct {
			TransactionID string `json:"transaction_id"`
			PaymentStatus string `json:"payment_status"`
			AmountPaise   int64  `json:"amount_paise"`
		} `json:"payment"`
	} `json:"data"`
}

// WebhookDelivery is one inbound delivery after decoding and signature
// checking.
type WebhookDelivery struct {
	Event       WebhookEvent
	RawPayload  []byte
	SignatureOK bool
}

type WebhookStatus string

const (
	WebhookStatusSuccess          WebhookStatus = "success"
	WebhookStatusFailed           WebhookStatus = "failed"
	WebhookStatusAlreadyProcessed WebhookStatus = "already_processed"
)

type WebhookOutcome struct {
	Status  WebhookStatus
	Message string
}

type CreateSessionInput struct {
	OrderID       string
	AmountPaise   int64
	CustomerName  string
	CustomerPhone string
	CustomerID    string
}

// PaymentService owns payment-session creation and webhook
// reconciliation for canteen orders.
type PaymentService struct {
	orders   repository.OrderRepository
	txns     repository.TransactionRepository
	events   repository.WebhookEventRepository
	ledger   ProcessedLedger
	limiter  Limiter
	gateway  PaymentProvider
	receipts ReceiptStore
	outcomes OutcomePublisher
	logger   *slog.Logger

	sandbox    bool
	rateLimit  int
	rateWindow time.Duration

	// Concurrent create calls for the same order collapse into one
	// provider round-trip; the losers receive the winner's session.
	sf singleflight.Group
}

type PaymentServiceParams struct {
	Orders   repository.OrderRepository
	Txns     repository.TransactionRepository
	Events   repository.WebhookEventRepository
	Ledger   ProcessedLedger
	Limiter  Limiter
	Gateway  PaymentProvider
	Receipts ReceiptStore
	Outcomes OutcomePublisher
	Logger   *slog.Logger

	Sandbox    bool
	RateLimit  int
	RateWindow time.Duration
}

func NewPaymentService(p PaymentServiceParams) *PaymentService {
	if p.RateLimit <= 0 {
		p.RateLimit = 10
	}
	if p.RateWindow <= 0 {
		p.RateWindow = time.Minute
	}
	if p.Logger == nil {
		p.Logger = slog.New(slog.DiscardHandler)
	}
	return &PaymentService{
		orders:     p.Orders,
		txns:       p.Txns,
		events:     p.Events,
		ledger:     p.Ledger,
		limiter:    p.Limiter,
		gateway:    p.Gateway,
		receipts:   p.Receipts,
		outcomes:   p.Outcomes,
		logger:     p.Logger,
		sandbox:    p.Sandbox,
		rateLimit:  p.RateLimit,
		rateWindow: p.RateWindow,
	}
}

// HandleWebhook reconciles one webhook delivery. The caller has already
// decoded the payload and checked the signature; malformed payloads and
// signature rejections never reach this method in enforced mode.
//
// The delivery order of duplicates is irrelevant: the ledger
// short-circuits replays and the conditional order update refuses to
// touch terminal states, so any interleaving converges to one terminal
// order state.
func (s *PaymentService) HandleWebhook(ctx context.Context, delivery WebhookDelivery) (WebhookOutcome, error) {
	txnID := delivery.Event.Data.Payment.TransactionID
	orderID := delivery.Event.Data.Order.OrderID

	allowed, retryAfter, err := s.limiter.Allow(ctx, txnID, s.rateLimit, s.rateWindow)
	if err != nil {
		// A broken limiter backend must not drop payment confirmations;
		// fail closed into the provider's retry path.
		return WebhookOutcome{}, fmt.Errorf("rate limiter: %w", err)
	}
	if !allowed {
		s.recordEvent(ctx, delivery, "rate_limited")
		return WebhookOutcome{}, fmt.Errorf("%w: retry after %s", ErrRateLimited, retryAfter)
	}

	begin, err := s.ledger.Begin(ctx, txnID)
	if err != nil {
		return WebhookOutcome{}, fmt.Errorf("idempotency ledger: %w", err)
	}
	switch begin.State {
	case LedgerStateReplay:
		s.recordEvent(ctx, delivery, "replay")
		return WebhookOutcome{
			Status:  WebhookStatusAlreadyProcessed,
			Message: fmt.Sprintf("transaction already processed (%s)", begin.Outcome),
		}, nil
	case LedgerStateInProgress:
		s.recordEvent(ctx, delivery, "in_progress")
		return WebhookOutcome{}, ErrInProgress
	}

	verification := s.verify(ctx, delivery)
	if verification.Inconclusive() {
		// The order must stay pending; release the claim so the
		// provider's retry can reprocess once the gateway recovers.
		if abandonErr := s.ledger.Abandon(ctx, txnID); abandonErr != nil {
			s.logger.Error("abandon ledger claim", "transaction_id", txnID, "error", abandonErr.Error())
		}
		s.recordEvent(ctx, delivery, "unconfirmed")
		return WebhookOutcome{}, fmt.Errorf("%w: %s", ErrUnconfirmed, verification.Message)
	}

	var updated bool
	if verification.Verified {
		updated, err = s.orders.MarkPaid(ctx, orderID, txnID)
	} else {
		updated, err = s.orders.MarkFailed(ctx, orderID, txnID)
	}
	if err != nil {
		if abandonErr := s.ledger.Abandon(ctx, txnID); abandonErr != nil {
			s.logger.Error("abandon ledger claim", "transaction_id", txnID, "error", abandonErr.Error())
		}
		s.recordEvent(ctx, delivery, "store_error")
		return WebhookOutcome{}, fmt.Errorf("update order %s: %w", orderID, err)
	}

	outcome := WebhookOutcome{Status: WebhookStatusFailed, Message: "payment failed, order cancelled"}
	txnStatus := domain.TransactionStatusFailed
	if verification.Verified {
		outcome = WebhookOutcome{Status: WebhookStatusSuccess, Message: "payment confirmed"}
		txnStatus = domain.TransactionStatusConfirmed
	}
	if !updated {
		// Terminal state already applied by an earlier delivery that
		// slipped past the ledger; converge without a second mutation.
		outcome.Message = "order already in terminal state"
	}

	if err := s.txns.UpdateStatus(ctx, txnID, txnStatus, verification.Code); err != nil {
		s.logger.Error("update transaction status", "transaction_id", txnID, "error", err.Error())
	}
	if err := s.ledger.Complete(ctx, txnID, string(outcome.Status)); err != nil {
		s.logger.Error("complete ledger entry", "transaction_id", txnID, "error", err.Error())
	}

	s.recordEvent(ctx, delivery, string(outcome.Status))
	if updated {
		s.afterTerminalTransition(ctx, orderID, txnID, verification.Verified)
	}
	return outcome, nil
}

// verify resolves ground truth for the delivery. Enforced mode asks the
// provider directly and never trusts the webhook body; sandbox mode
// trusts the decoded body and logs the downgrade loudly.
func (s *PaymentService) verify(ctx context.Context, delivery WebhookDelivery) provider.Verification {
	if s.sandbox {
		s.logger.Warn("sandbox mode: trusting webhook body without provider verification",
			"transaction_id", delivery.Event.Data.Payment.TransactionID,
			"event_type", delivery.Event.Type,
		)
		if delivery.Event.Data.Payment.PaymentStatus == "SUCCESS" {
			return provider.Verification{Verified: true, Code: provider.CodeSuccess, Message: "sandbox: trusted webhook body"}
		}
		return provider.Verification{Verified: false, Code: provider.CodeFailed, Message: "sandbox: trusted webhook body"}
	}
	v, err := s.gateway.VerifyPayment(ctx, delivery.Event.Data.Payment.TransactionID)
	if err != nil {
		return provider.Verification{Code: provider.CodeVerificationError, Message: err.Error()}
	}
	if v.Code == provider.CodePending {
		// The gateway has not settled yet; treat as unconfirmed so the
		// retry arrives after settlement instead of cancelling the order.
		return provider.Verification{Code: provider.CodeVerificationError, Message: "provider reports payment still pending"}
	}
	return v
}

func (s *PaymentService) afterTerminalTransition(ctx context.Context, orderID, txnID string, paid bool) {
	if s.outcomes != nil {
		if err := s.outcomes.PublishOutcome(ctx, OutcomeEvent{
			OrderID:       orderID,
			TransactionID: txnID,
			Paid:          paid,
			OccurredAt:    time.Now().UTC(),
		}); err != nil {
			s.logger.Error("publish payment outcome", "order_id", orderID, "error", err.Error())
		}
	}
	if paid && s.receipts != nil {
		if _, err := s.receipts.StoreReceipt(ctx, Receipt{
			OrderID:       orderID,
			TransactionID: txnID,
			IssuedAt:      time.Now().UTC(),
		}); err != nil {
			s.logger.Error("store receipt", "order_id", orderID, "error", err.Error())
		}
	}
}

// RecordRejected writes an audit row for a delivery the HTTP layer
// refused before reconciliation (bad signature, malformed payload).
func (s *PaymentService) RecordRejected(ctx context.Context, delivery WebhookDelivery, reason string) {
	s.recordEvent(ctx, delivery, reason)
}

func (s *PaymentService) recordEvent(ctx context.Context, delivery WebhookDelivery, outcome string) {
	event := &domain.WebhookEvent{
		EventID:       delivery.Event.EventID,
		TransactionID: delivery.Event.Data.Payment.TransactionID,
		OrderID:       delivery.Event.Data.Order.OrderID,
		EventType:     delivery.Event.Type,
		Payload:       delivery.RawPayload,
		Outcome:       outcome,
		SignatureOK:   delivery.SignatureOK,
	}
	if err := s.events.Record(ctx, event); err != nil {
		s.logger.Error("record webhook event",
			"transaction_id", event.TransactionID,
			"error", err.Error(),
		)
	}
}

// CreateOrGetSession registers a payment session for an order. Retried
// calls are safe: concurrent ones collapse via singleflight, and a
// provider-side duplicate recovers the existing session instead of
// failing, unless that session can no longer be paid.
func (s *PaymentService) CreateOrGetSession(ctx context.Context, input CreateSessionInput) (*provider.OrderSession, error) {
	v, err, _ := s.sf.Do("create_session_"+input.OrderID, func() (interface{}, error) {
		return s.createOrGetSession(ctx, input)
	})
	if err != nil {
		return nil, err
	}
	return v.(*provider.OrderSession), nil
}

func (s *PaymentService) createOrGetSession(ctx context.Context, input CreateSessionInput) (*provider.OrderSession, error) {
	order, err := s.orders.FindByID(ctx, input.OrderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		order = &domain.Order{
			ID:            input.OrderID,
			AmountPaise:   input.AmountPaise,
			PaymentStatus: domain.PaymentStatusPending,
			Status:        domain.OrderStatusPending,
			PaymentMethod: "gateway",
		}
		if err := s.orders.Create(ctx, order); err != nil {
			return nil, fmt.Errorf("create order record: %w", err)
		}
	} else if err != nil {
		return nil, err
	}
	if order.PaymentStatus.Terminal() {
		return nil, fmt.Errorf("%w: order payment is %s", ErrTerminalSession, order.PaymentStatus)
	}

	txnID := NewTransactionID(input.OrderID)
	session, err := s.gateway.CreateOrder(ctx, provider.CreateOrderRequest{
		OrderID:       input.OrderID,
		TransactionID: txnID,
		AmountPaise:   input.AmountPaise,
		CustomerName:  input.CustomerName,
		CustomerPhone: input.CustomerPhone,
		CustomerID:    input.CustomerID,
	})
	if errors.Is(err, provider.ErrOrderExists) {
		existing, fetchErr := s.gateway.FetchOrder(ctx, input.OrderID)
		if fetchErr != nil {
			return nil, fmt.Errorf("recover existing session: %w", fetchErr)
		}
		if !existing.Payable() {
			return nil, fmt.Errorf("%w: provider order is %s", ErrTerminalSession, existing.State)
		}
		s.logger.Info("recovered existing payment session",
			"order_id", input.OrderID,
			"session_id", existing.SessionID,
		)
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.txns.Create(ctx, &domain.PaymentTransaction{
		TransactionID: txnID,
		OrderID:       input.OrderID,
		AmountPaise:   input.AmountPaise,
		Status:        domain.TransactionStatusInitiated,
		SessionID:     session.SessionID,
	}); err != nil {
		return nil, fmt.Errorf("record payment transaction: %w", err)
	}
	return session, nil
}

// VerifyTransaction serves the authenticated status-check endpoint.
func (s *PaymentService) VerifyTransaction(ctx context.Context, transactionID string) (provider.Verification, error) {
	if s.sandbox {
		s.logger.Warn("sandbox mode: answering status check from stored transaction state",
			"transaction_id", transactionID,
		)
		txn, err := s.txns.FindByTransactionID(ctx, transactionID)
		if err != nil {
			return provider.Verification{}, err
		}
		switch txn.Status {
		case domain.TransactionStatusConfirmed:
			return provider.Verification{Verified: true, Code: provider.CodeSuccess, Message: "sandbox: stored state"}, nil
		case domain.TransactionStatusFailed:
			return provider.Verification{Verified: false, Code: provider.CodeFailed, Message: "sandbox: stored state"}, nil
		default:
			return provider.Verification{Verified: false, Code: provider.CodePending, Message: "sandbox: stored state"}, nil
		}
	}
	return s.gateway.VerifyPayment(ctx, transactionID)
}

// ReceiptURL returns a presigned URL for a confirmed order's receipt.
func (s *PaymentService) ReceiptURL(ctx context.Context, orderID string) (string, error) {
	if s.receipts == nil {
		return "", ErrReceiptStorageDisabled
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.PaymentStatus != domain.PaymentStatusPaid {
		return "", fmt.Errorf("%w: order payment is %s", ErrReceiptNotAvailable, order.PaymentStatus)
	}
	return s.receipts.ReceiptURL(ctx, orderID)
}

// NewTransactionID builds the provider-facing transaction identifier.
// The order id also travels as an explicit field everywhere; this
// string is an opaque correlation handle, never parsed.
func NewTransactionID(orderID string) string {
	return fmt.Sprintf("TXN_%s_%d", orderID, time.Now().Unix())
}
