package domain

import "time"

type TransactionStatus string

const (
	TransactionStatusInitiated TransactionStatus = "initiated"
	TransactionStatusConfirmed TransactionStatus = "confirmed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// PaymentTransaction correlates one payment attempt with an order. The
// order id is an explicit column; it is never recovered by parsing the
// transaction id string.
type PaymentTransaction struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	TransactionID string            `gorm:"size:128;not null;uniqueIndex" json:"transaction_id"`
	OrderID       string            `gorm:"type:uuid;not null;index" json:"order_id"`
	AmountPaise   int64             `gorm:"not null" json:"amount_paise"`
	Status        TransactionStatus `gorm:"size:16;not null;default:initiated" json:"status"`
	SessionID     string            `gorm:"size:256" json:"session_id"`
	ProviderCode  string            `gorm:"size:64" json:"provider_code"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}
