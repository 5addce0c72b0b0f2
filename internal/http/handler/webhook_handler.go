package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/canteenhq/canteen-payments/internal/http/response"
	"github.com/canteenhq/canteen-payments/internal/security"
	"github.com/canteenhq/canteen-payments/internal/service"
)

const signatureHeader = "X-Verify"

// maxWebhookBody bounds inbound callback payloads; provider events are
// a few KB at most.
const maxWebhookBody = 1 << 20

// WebhookHandler terminates provider callbacks: it decodes the payload,
// checks the signature, and hands the delivery to the payment service.
type WebhookHandler struct {
	svc      *service.PaymentService
	verifier *security.SignatureVerifier
	logger   *slog.Logger
	sandbox  bool
}

func NewWebhookHandler(svc *service.PaymentService, verifier *security.SignatureVerifier, logger *slog.Logger, sandbox bool) *WebhookHandler {
	return &WebhookHandler{svc: svc, verifier: verifier, logger: logger, sandbox: sandbox}
}

// envelopedBody is the wrapped delivery format: the signed event rides
// base64-encoded inside a JSON shell.
type envelopedBody struct {
	Response string `json:"response"`
}

// HandlePaymentWebhook serves POST /webhooks/payment.
func (h *WebhookHandler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "unreadable request body", nil)
		return
	}

	payload, encoded, ok := decodePayload(raw)
	if !ok {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "undecodable webhook payload", nil)
		return
	}

	delivery := service.WebhookDelivery{RawPayload: payload}
	if err := json.Unmarshal(payload, &delivery.Event); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed webhook event", nil)
		return
	}

	provided := r.Header.Get(signatureHeader)
	switch {
	case h.sandbox:
		h.logger.Warn("sandbox mode: skipping webhook signature verification",
			"transaction_id", delivery.Event.Data.Payment.TransactionID,
		)
	case encoded != "":
		delivery.SignatureOK = h.verifier.VerifyEncoded(encoded, provided)
	default:
		delivery.SignatureOK = h.verifier.Verify(payload, provided)
	}
	if !h.sandbox && !delivery.SignatureOK {
		h.logger.Warn("rejected webhook with invalid signature",
			"transaction_id", delivery.Event.Data.Payment.TransactionID,
			"remote_addr", r.RemoteAddr,
		)
		h.svc.RecordRejected(r.Context(), delivery, "signature_invalid")
		response.Error(w, r, http.StatusForbidden, "SIGNATURE_INVALID", "webhook signature verification failed", nil)
		return
	}

	if msg := validateEvent(delivery.Event); msg != "" {
		h.svc.RecordRejected(r.Context(), delivery, "malformed")
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", msg, nil)
		return
	}

	outcome, err := h.svc.HandleWebhook(r.Context(), delivery)
	if err != nil {
		h.writeError(w, r, delivery, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{
		"status":  string(outcome.Status),
		"message": outcome.Message,
	})
}

func (h *WebhookHandler) writeError(w http.ResponseWriter, r *http.Request, delivery service.WebhookDelivery, err error) {
	txnID := delivery.Event.Data.Payment.TransactionID
	switch {
	case errors.Is(err, service.ErrRateLimited):
		response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", err.Error(), nil)
	case errors.Is(err, service.ErrInProgress):
		response.Error(w, r, http.StatusConflict, "CONFLICT", "delivery for this transaction is already being processed", nil)
	case errors.Is(err, service.ErrUnconfirmed):
		// 500 keeps the provider retrying until the status check settles.
		response.Error(w, r, http.StatusInternalServerError, "VERIFICATION_ERROR", err.Error(), nil)
	default:
		h.logger.Error("webhook processing failed", "transaction_id", txnID, "error", err.Error())
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "webhook processing failed", nil)
	}
}

// decodePayload accepts either the raw JSON event or a JSON shell whose
// "response" field carries the base64-encoded event. The second return
// is the still-encoded string when the wrapped form was used, since the
// provider signs that representation.
func decodePayload(raw []byte) (payload []byte, encoded string, ok bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, "", false
	}
	var shell envelopedBody
	if err := json.Unmarshal(raw, &shell); err == nil && shell.Response != "" {
		inner, err := base64.StdEncoding.DecodeString(shell.Response)
		if err != nil {
			return nil, "", false
		}
		return inner, shell.Response, true
	}
	if !json.Valid(raw) {
		return nil, "", false
	}
	return raw, "", true
}

func validateEvent(event service.WebhookEvent) string {
	if strings.TrimSpace(event.Data.Payment.TransactionID) == "" {
		return "missing transaction id"
	}
	orderID := event.Data.Order.OrderID
	if strings.TrimSpace(orderID) == "" {
		return "missing order id"
	}
	if _, err := uuid.Parse(orderID); err != nil {
		return "order id is not a valid UUID"
	}
	return ""
}
