package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJSONWritesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/status/TXN-1", nil)

	JSON(rec, req, http.StatusOK, map[string]any{"verified": true})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Verified bool `json:"verified"`
		} `json:"data"`
		Meta struct {
			RequestID string `json:"request_id"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.Success || !body.Data.Verified {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if body.Meta.RequestID == "" {
		t.Fatal("expected a request id in meta")
	}
}

func TestErrorWritesEnvelopeByDefault(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", nil)

	Error(rec, req, http.StatusForbidden, "SIGNATURE_INVALID", "signature mismatch", nil)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Success || body.Error.Code != "SIGNATURE_INVALID" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestErrorHonorsProblemJSONAccept(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", nil)
	req.Header.Set("Accept", "application/problem+json")

	Error(rec, req, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)

	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("expected problem+json content type, got %q", ct)
	}
	var body problemDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != http.StatusTooManyRequests || body.Title != "Too Many Requests" {
		t.Fatalf("unexpected problem body %+v", body)
	}
	if body.Type != "urn:problem:canteen-payments:rate-limited" {
		t.Fatalf("unexpected problem type %q", body.Type)
	}
}

func TestErrorIgnoresZeroQualityProblemJSON(t *testing.T) {
	for _, q := range []string{"0", "0.0", "0.00", "0.000"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", nil)
		req.Header.Set("Accept", "application/problem+json;q="+q)

		Error(rec, req, http.StatusBadRequest, "BAD_REQUEST", "bad", nil)

		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("q=%s: expected plain json, got %q", q, ct)
		}
	}
}
