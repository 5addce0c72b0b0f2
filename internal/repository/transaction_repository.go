package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/canteenhq/canteen-payments/internal/domain"
	"github.com/canteenhq/canteen-payments/internal/observability"
)

var ErrTransactionNotFound = errors.New("payment transaction not found")

type TransactionRepository interface {
	Create(ctx context.Context, txn *domain.PaymentTransaction) error
	FindByTransactionID(ctx context.Context, transactionID string) (*domain.PaymentTransaction, error)
	FindLatestByOrderID(ctx context.Context, orderID string) (*domain.PaymentTransaction, error)
	UpdateStatus(ctx context.Context, transactionID string, status domain.TransactionStatus, providerCode string) error
}

type GormTransactionRepository struct{ db *gorm.DB }

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &GormTransactionRepository{db: db}
}

func (r *GormTransactionRepository) Create(ctx context.Context, txn *domain.PaymentTransaction) error {
	// Retried creates for the same transaction id are no-ops; the unique
	// index keeps one row per attempt.
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoNothing: true,
		}).
		Create(txn).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "payment_transaction", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "payment_transaction", "create", "success")
	return nil
}

func (r *GormTransactionRepository) FindByTransactionID(ctx context.Context, transactionID string) (*domain.PaymentTransaction, error) {
	var txn domain.PaymentTransaction
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "payment_transaction", "find_by_txn_id", "not_found")
			return nil, ErrTransactionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "payment_transaction", "find_by_txn_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "payment_transaction", "find_by_txn_id", "success")
	return &txn, nil
}

func (r *GormTransactionRepository) FindLatestByOrderID(ctx context.Context, orderID string) (*domain.PaymentTransaction, error) {
	var txn domain.PaymentTransaction
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id DESC").First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "payment_transaction", "find_latest_by_order", "not_found")
			return nil, ErrTransactionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "payment_transaction", "find_latest_by_order", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "payment_transaction", "find_latest_by_order", "success")
	return &txn, nil
}

func (r *GormTransactionRepository) UpdateStatus(ctx context.Context, transactionID string, status domain.TransactionStatus, providerCode string) error {
	err := r.db.WithContext(ctx).
		Model(&domain.PaymentTransaction{}).
		Where("transaction_id = ?", transactionID).
		Updates(map[string]interface{}{
			"status":        status,
			"provider_code": providerCode,
		}).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "payment_transaction", "update_status", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "payment_transaction", "update_status", "success")
	return nil
}
