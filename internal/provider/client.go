package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/canteenhq/canteen-payments/internal/security"
)

// Client talks to the payment provider's REST API. Every request is
// signed with the same salt scheme the provider uses for webhooks and
// carries a bounded timeout; the caller never blocks longer than the
// configured deadline.
type Client struct {
	baseURL    string
	merchantID string
	signer     *security.SignatureVerifier
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, merchantID string, signer *security.SignatureVerifier, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		merchantID: merchantID,
		signer:     signer,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type createOrderEnvelope struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		OrderID   string `json:"order_id"`
		SessionID string `json:"session_id"`
		State     string `json:"state"`
	} `json:"data"`
}

// CreateOrder registers a payment session for an order. A conflict
// response maps to ErrOrderExists so the caller can recover the
// existing session instead of failing the request.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderSession, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal create order: %w", err)
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/pg/v1/order", body)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider create order: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}

	var envelope createOrderEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	if resp.StatusCode == http.StatusConflict || envelope.Code == "ORDER_EXISTS" {
		return nil, ErrOrderExists
	}
	if resp.StatusCode != http.StatusOK || !envelope.Success {
		return nil, fmt.Errorf("provider create order failed: status=%d code=%s message=%s", resp.StatusCode, envelope.Code, envelope.Message)
	}
	return &OrderSession{
		OrderID:   envelope.Data.OrderID,
		SessionID: envelope.Data.SessionID,
		State:     envelope.Data.State,
		Raw:       raw,
	}, nil
}

// FetchOrder loads the provider's current session for an order id.
func (c *Client) FetchOrder(ctx context.Context, orderID string) (*OrderSession, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, c.baseURL+"/pg/v1/order/"+orderID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider fetch order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrOrderNotFound
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}
	var envelope createOrderEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !envelope.Success {
		return nil, fmt.Errorf("provider fetch order failed: status=%d code=%s", resp.StatusCode, envelope.Code)
	}
	return &OrderSession{
		OrderID:   envelope.Data.OrderID,
		SessionID: envelope.Data.SessionID,
		State:     envelope.Data.State,
		Raw:       raw,
	}, nil
}

type statusEnvelope struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		TransactionID string `json:"transaction_id"`
		OrderID       string `json:"order_id"`
		State         string `json:"state"`
	} `json:"data"`
}

// VerifyPayment performs the authoritative server-to-server status
// check. The webhook body is never trusted as the source of truth; this
// call is. Transport failures and provider 5xx resolve to
// CodeVerificationError, never to a confirmed failure.
func (c *Client) VerifyPayment(ctx context.Context, transactionID string) (Verification, error) {
	url := fmt.Sprintf("%s/pg/v1/status/%s/%s", c.baseURL, c.merchantID, transactionID)
	httpReq, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Verification{Code: CodeVerificationError, Message: err.Error()}, nil
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("provider status check unreachable",
			"transaction_id", transactionID,
			"error", err.Error(),
		)
		return Verification{Code: CodeVerificationError, Message: "provider unreachable: " + err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Verification{Code: CodeVerificationError, Message: fmt.Sprintf("provider returned status %d", resp.StatusCode)}, nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Verification{Code: CodeVerificationError, Message: "read provider response: " + err.Error()}, nil
	}
	var envelope statusEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Verification{Code: CodeVerificationError, Message: "undecodable provider response"}, nil
	}

	switch envelope.Data.State {
	case StateCompleted, StatePaid:
		return Verification{Verified: true, Code: CodeSuccess, Message: envelope.Message}, nil
	case StateFailed, StateExpired:
		return Verification{Verified: false, Code: CodeFailed, Message: envelope.Message}, nil
	case StatePending, StateCreated, StateActive:
		return Verification{Verified: false, Code: CodePending, Message: envelope.Message}, nil
	default:
		return Verification{Code: CodeVerificationError, Message: fmt.Sprintf("unknown provider state %q", envelope.Data.State)}, nil
	}
}

func (c *Client) newRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Merchant-Id", c.merchantID)
	if c.signer != nil {
		req.Header.Set("X-Verify", c.signer.Sign(body))
	}
	return req, nil
}
