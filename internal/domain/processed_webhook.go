package domain

import "time"

// ProcessedWebhook backs the durable idempotency ledger. The unique index
// on the transaction id is what makes Begin race-safe across instances.
type ProcessedWebhook struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TransactionID string    `gorm:"size:128;not null;uniqueIndex" json:"-"`
	Status        string    `gorm:"size:32;not null;index" json:"-"`
	Outcome       string    `gorm:"size:32" json:"-"`
	ExpiresAt     time.Time `gorm:"index;not null" json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
