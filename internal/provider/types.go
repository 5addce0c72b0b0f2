package provider

import "errors"

// Verification codes returned to callers of VerifyPayment.
const (
	CodeSuccess           = "PAYMENT_SUCCESS"
	CodeFailed            = "PAYMENT_FAILED"
	CodePending           = "PAYMENT_PENDING"
	CodeVerificationError = "VERIFICATION_ERROR"
)

// Provider-side order states.
const (
	StateCreated   = "CREATED"
	StateActive    = "ACTIVE"
	StatePaid      = "PAID"
	StateExpired   = "EXPIRED"
	StateFailed    = "FAILED"
	StateCompleted = "COMPLETED"
	StatePending   = "PENDING"
)

var (
	// ErrOrderExists is returned when the provider already holds an order
	// with the requested id (client retried a flaky create).
	ErrOrderExists = errors.New("provider order already exists")

	// ErrOrderNotFound is returned when fetching a provider order that
	// does not exist.
	ErrOrderNotFound = errors.New("provider order not found")
)

type CreateOrderRequest struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	AmountPaise   int64  `json:"amount_paise"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	CustomerID    string `json:"customer_id,omitempty"`
}

// OrderSession is the provider's payment-session view of an order. Raw
// holds the provider response verbatim for pass-through to clients.
type OrderSession struct {
	OrderID   string `json:"order_id"`
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Raw       []byte `json:"-"`
}

// Payable reports whether a payment can still be completed against the
// session.
func (s *OrderSession) Payable() bool {
	return s.State == StateCreated || s.State == StateActive || s.State == StatePending
}

// Verification is the outcome of an authoritative server-to-server
// status check. Code CodeVerificationError means "could not confirm",
// which is distinct from a confirmed failure.
type Verification struct {
	Verified bool   `json:"verified"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// Inconclusive reports whether the check failed to reach a trustworthy
// answer; the order must stay pending in that case.
func (v Verification) Inconclusive() bool {
	return v.Code == CodeVerificationError
}
