package service

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/canteenhq/canteen-payments/internal/domain"
)

const (
	ledgerStatusInProgress = "in_progress"
	ledgerStatusCompleted  = "completed"
)

// DBLedger is the durable ledger. The unique index on the transaction
// id makes Begin a single atomic insert-or-skip, which holds across
// instances and restarts.
type DBLedger struct {
	db        *gorm.DB
	retention time.Duration
	now       func() time.Time
}

func NewDBLedger(db *gorm.DB, retention time.Duration) *DBLedger {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &DBLedger{db: db, retention: retention, now: time.Now}
}

func (l *DBLedger) Begin(ctx context.Context, transactionID string) (LedgerResult, error) {
	now := l.now().UTC()
	// In-progress rows carry the short claim lease as their expiry;
	// Complete extends it to the retention window. A claim orphaned by a
	// crash therefore becomes reclaimable after the lease instead of
	// blocking redeliveries until retention expiry.
	rec := domain.ProcessedWebhook{
		TransactionID: transactionID,
		Status:        ledgerStatusInProgress,
		ExpiresAt:     now.Add(claimLease),
	}
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoNothing: true,
		}).
		Create(&rec)
	if res.Error != nil {
		return LedgerResult{}, res.Error
	}
	if res.RowsAffected == 1 {
		return LedgerResult{State: LedgerStateNew}, nil
	}

	var existing domain.ProcessedWebhook
	if err := l.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&existing).Error; err != nil {
		return LedgerResult{}, err
	}
	if now.After(existing.ExpiresAt) {
		// Expired lease or retention window; reclaim the row. The
		// conditional guard keeps only one concurrent reclaim winning.
		upd := l.db.WithContext(ctx).
			Model(&domain.ProcessedWebhook{}).
			Where("transaction_id = ? AND expires_at <= ?", transactionID, now).
			Updates(map[string]interface{}{
				"status":     ledgerStatusInProgress,
				"outcome":    "",
				"expires_at": now.Add(claimLease),
			})
		if upd.Error != nil {
			return LedgerResult{}, upd.Error
		}
		if upd.RowsAffected == 1 {
			return LedgerResult{State: LedgerStateNew}, nil
		}
		if err := l.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&existing).Error; err != nil {
			return LedgerResult{}, err
		}
	}
	if existing.Status == ledgerStatusCompleted {
		return LedgerResult{State: LedgerStateReplay, Outcome: existing.Outcome}, nil
	}
	return LedgerResult{State: LedgerStateInProgress}, nil
}

func (l *DBLedger) Complete(ctx context.Context, transactionID, outcome string) error {
	return l.db.WithContext(ctx).
		Model(&domain.ProcessedWebhook{}).
		Where("transaction_id = ?", transactionID).
		Updates(map[string]interface{}{
			"status":     ledgerStatusCompleted,
			"outcome":    outcome,
			"expires_at": l.now().UTC().Add(l.retention),
		}).Error
}

func (l *DBLedger) Abandon(ctx context.Context, transactionID string) error {
	return l.db.WithContext(ctx).
		Where("transaction_id = ? AND status = ?", transactionID, ledgerStatusInProgress).
		Delete(&domain.ProcessedWebhook{}).Error
}

// CleanupExpired deletes up to batchSize expired rows and returns how
// many were removed. The sweeper calls it periodically to bound table
// growth.
func (l *DBLedger) CleanupExpired(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	var ids []uint
	err := l.db.WithContext(ctx).
		Model(&domain.ProcessedWebhook{}).
		Where("expires_at <= ?", now.UTC()).
		Order("id ASC").
		Limit(batchSize).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := l.db.WithContext(ctx).Where("id IN ?", ids).Delete(&domain.ProcessedWebhook{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
