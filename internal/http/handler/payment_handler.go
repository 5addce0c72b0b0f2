package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/canteenhq/canteen-payments/internal/http/response"
	"github.com/canteenhq/canteen-payments/internal/repository"
	"github.com/canteenhq/canteen-payments/internal/service"
)

// Transaction ids look like TXN_<order uuid>_<unix seconds>. The pieces
// are never extracted from the string; this only screens obvious junk
// before the id is passed along as an opaque handle.
var transactionIDPattern = regexp.MustCompile(`^TXN_[0-9a-fA-F-]{36}_\d+$`)

// PaymentHandler serves the client-facing payment endpoints.
type PaymentHandler struct {
	svc    *service.PaymentService
	logger *slog.Logger
}

func NewPaymentHandler(svc *service.PaymentService, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{svc: svc, logger: logger}
}

type createOrderRequest struct {
	OrderID       string `json:"orderId"`
	AmountPaise   int64  `json:"amount"`
	CustomerName  string `json:"customerName,omitempty"`
	CustomerPhone string `json:"customerPhone,omitempty"`
	CustomerID    string `json:"customerId,omitempty"`
}

type createOrderResponse struct {
	OrderID   string `json:"orderId"`
	SessionID string `json:"sessionId"`
	State     string `json:"state"`
	// Provider holds the provider's session response verbatim so the
	// ordering frontend can hand it to the payment page unchanged.
	Provider json.RawMessage `json:"provider,omitempty"`
}

// CreateOrder serves POST /api/v1/payments/orders.
func (h *PaymentHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed request body", nil)
		return
	}
	if _, err := uuid.Parse(req.OrderID); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "orderId must be a valid UUID", nil)
		return
	}
	if req.AmountPaise <= 0 {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "amount must be positive", nil)
		return
	}

	session, err := h.svc.CreateOrGetSession(r.Context(), service.CreateSessionInput{
		OrderID:       req.OrderID,
		AmountPaise:   req.AmountPaise,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerID:    req.CustomerID,
	})
	if err != nil {
		if errors.Is(err, service.ErrTerminalSession) {
			response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
		h.logger.Error("create payment session", "order_id", req.OrderID, "error", err.Error())
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not create payment session", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, createOrderResponse{
		OrderID:   req.OrderID,
		SessionID: session.SessionID,
		State:     session.State,
		Provider:  session.Raw,
	})
}

type statusResponse struct {
	Verified bool   `json:"verified"`
	Code     string `json:"code"`
	Message  string `json:"message,omitempty"`
}

// CheckStatus serves GET /api/v1/payments/status/{transactionID}.
func (h *PaymentHandler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	txnID := chi.URLParam(r, "transactionID")
	if !transactionIDPattern.MatchString(txnID) {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid transaction id format", nil)
		return
	}

	verification, err := h.svc.VerifyTransaction(r.Context(), txnID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "transaction not found", nil)
			return
		}
		h.logger.Error("verify transaction", "transaction_id", txnID, "error", err.Error())
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "status check failed", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, statusResponse{
		Verified: verification.Verified,
		Code:     verification.Code,
		Message:  verification.Message,
	})
}

type receiptResponse struct {
	OrderID string `json:"orderId"`
	URL     string `json:"url"`
}

// GetReceipt serves GET /api/v1/payments/receipts/{orderID}.
func (h *PaymentHandler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if _, err := uuid.Parse(orderID); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "orderID must be a valid UUID", nil)
		return
	}

	url, err := h.svc.ReceiptURL(r.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		case errors.Is(err, service.ErrReceiptStorageDisabled):
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "receipt storage is not enabled", nil)
		case errors.Is(err, service.ErrReceiptNotAvailable):
			response.Error(w, r, http.StatusConflict, "CONFLICT", err.Error(), nil)
		default:
			h.logger.Error("fetch receipt url", "order_id", orderID, "error", err.Error())
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not fetch receipt", nil)
		}
		return
	}
	response.JSON(w, r, http.StatusOK, receiptResponse{OrderID: orderID, URL: url})
}
