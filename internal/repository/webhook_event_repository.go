package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/canteenhq/canteen-payments/internal/domain"
	"github.com/canteenhq/canteen-payments/internal/observability"
)

type WebhookEventRepository interface {
	Record(ctx context.Context, event *domain.WebhookEvent) error
	ListByTransactionID(ctx context.Context, transactionID string) ([]domain.WebhookEvent, error)
}

type GormWebhookEventRepository struct{ db *gorm.DB }

func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &GormWebhookEventRepository{db: db}
}

func (r *GormWebhookEventRepository) Record(ctx context.Context, event *domain.WebhookEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "webhook_event", "record", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "webhook_event", "record", "success")
	return nil
}

func (r *GormWebhookEventRepository) ListByTransactionID(ctx context.Context, transactionID string) ([]domain.WebhookEvent, error) {
	var events []domain.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("id ASC").
		Find(&events).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "webhook_event", "list_by_txn_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "webhook_event", "list_by_txn_id", "success")
	return events, nil
}
