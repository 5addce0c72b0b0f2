package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusCollected OrderStatus = "collected"
)

// Terminal reports whether no further automated payment transition is
// permitted for the status.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusFailed
}

// Order is the narrow slice of the canteen order this service reads and
// writes. The ordering platform owns the rest of the row.
type Order struct {
	ID            string        `gorm:"type:uuid;primaryKey" json:"id"`
	CanteenID     string        `gorm:"type:uuid;index" json:"canteen_id"`
	AmountPaise   int64         `gorm:"not null" json:"amount_paise"`
	PaymentStatus PaymentStatus `gorm:"size:16;not null;default:pending;index" json:"payment_status"`
	Status        OrderStatus   `gorm:"size:16;not null;default:pending" json:"status"`
	PaymentMethod string        `gorm:"size:32" json:"payment_method"`
	Notes         string        `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
