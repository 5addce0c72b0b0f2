package domain

import "time"

// WebhookEvent is an append-only audit row recorded for every webhook
// delivery, accepted or not. Payloads are kept verbatim for dispute
// resolution.
type WebhookEvent struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	EventID       string    `gorm:"size:128;index" json:"event_id"`
	TransactionID string    `gorm:"size:128;index" json:"transaction_id"`
	OrderID       string    `gorm:"type:uuid;index" json:"order_id"`
	EventType     string    `gorm:"size:64" json:"event_type"`
	Payload       []byte    `gorm:"type:bytes" json:"-"`
	Outcome       string    `gorm:"size:32;not null" json:"outcome"`
	SignatureOK   bool      `gorm:"not null" json:"signature_ok"`
	CreatedAt     time.Time `json:"created_at"`
}
