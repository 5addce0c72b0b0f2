package database

import (
	"github.com/canteenhq/canteen-payments/internal/domain"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Order{},
		&domain.PaymentTransaction{},
		&domain.WebhookEvent{},
		&domain.ProcessedWebhook{},
	)
}
