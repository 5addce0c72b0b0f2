package service

import (
	"context"
	"time"
)

// OutcomeEvent announces a terminal payment transition to the rest of
// the canteen platform (order tracking, admin dashboards).
type OutcomeEvent struct {
	OrderID       string    `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
	Paid          bool      `json:"paid"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, event OutcomeEvent) error
}
