package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/canteenhq/canteen-payments/internal/domain"
	"github.com/canteenhq/canteen-payments/internal/observability"
)

var ErrOrderNotFound = errors.New("order not found")

type OrderRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	Create(ctx context.Context, order *domain.Order) error

	// MarkPaid transitions the order to paid/confirmed only while its
	// payment status is still pending. Returns (false, nil) when the
	// guard did not match, meaning a terminal state was already applied.
	MarkPaid(ctx context.Context, orderID, transactionID string) (bool, error)

	// MarkFailed transitions the order to failed/cancelled under the
	// same pending guard.
	MarkFailed(ctx context.Context, orderID, transactionID string) (bool, error)
}

type GormOrderRepository struct{ db *gorm.DB }

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "order", "find_by_id", "not_found")
			return nil, ErrOrderNotFound
		}
		observability.RecordRepositoryOperation(ctx, "order", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "order", "find_by_id", "success")
	return &order, nil
}

func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "order", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "order", "create", "success")
	return nil
}

func (r *GormOrderRepository) MarkPaid(ctx context.Context, orderID, transactionID string) (bool, error) {
	return r.transition(ctx, orderID, transactionID,
		domain.PaymentStatusPaid, domain.OrderStatusConfirmed, "payment confirmed")
}

func (r *GormOrderRepository) MarkFailed(ctx context.Context, orderID, transactionID string) (bool, error) {
	return r.transition(ctx, orderID, transactionID,
		domain.PaymentStatusFailed, domain.OrderStatusCancelled, "payment failed")
}

// transition is a single conditional UPDATE keyed on the pending guard.
// It is commutative with itself, so duplicate webhook deliveries that
// slip past the ledger cannot clobber a terminal state.
func (r *GormOrderRepository) transition(
	ctx context.Context,
	orderID, transactionID string,
	paymentStatus domain.PaymentStatus,
	status domain.OrderStatus,
	note string,
) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("id = ? AND payment_status = ?", orderID, domain.PaymentStatusPending).
		Updates(map[string]interface{}{
			"payment_status": paymentStatus,
			"status":         status,
			"notes": gorm.Expr(
				"CASE WHEN notes = '' THEN ? ELSE notes || ? END",
				auditNote(note, transactionID), "\n"+auditNote(note, transactionID),
			),
		})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "order", "transition", "error")
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&domain.Order{}).Where("id = ?", orderID).Count(&count).Error; err != nil {
			observability.RecordRepositoryOperation(ctx, "order", "transition", "error")
			return false, err
		}
		if count == 0 {
			observability.RecordRepositoryOperation(ctx, "order", "transition", "not_found")
			return false, ErrOrderNotFound
		}
		observability.RecordRepositoryOperation(ctx, "order", "transition", "conflict")
		return false, nil
	}
	observability.RecordRepositoryOperation(ctx, "order", "transition", "success")
	return true, nil
}

func auditNote(note, transactionID string) string {
	return fmt.Sprintf("%s via %s", note, transactionID)
}
