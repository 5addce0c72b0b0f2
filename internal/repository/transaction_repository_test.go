package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/canteenhq/canteen-payments/internal/domain"
)

func TestTransactionCreateIsIdempotentOnRetry(t *testing.T) {
	db := newTestDB(t)
	repo := NewTransactionRepository(db)
	orderID := uuid.NewString()

	txn := &domain.PaymentTransaction{
		TransactionID: "TXN-retry",
		OrderID:       orderID,
		AmountPaise:   5000,
		Status:        domain.TransactionStatusInitiated,
	}
	if err := repo.Create(context.Background(), txn); err != nil {
		t.Fatalf("first create: %v", err)
	}
	retry := &domain.PaymentTransaction{
		TransactionID: "TXN-retry",
		OrderID:       orderID,
		AmountPaise:   5000,
		Status:        domain.TransactionStatusInitiated,
	}
	if err := repo.Create(context.Background(), retry); err != nil {
		t.Fatalf("retried create: %v", err)
	}

	var count int64
	if err := db.Model(&domain.PaymentTransaction{}).Where("transaction_id = ?", "TXN-retry").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one row for a retried transaction id, got %d", count)
	}
}

func TestFindLatestByOrderIDReturnsNewestAttempt(t *testing.T) {
	db := newTestDB(t)
	repo := NewTransactionRepository(db)
	orderID := uuid.NewString()

	for _, id := range []string{"TXN-a", "TXN-b"} {
		if err := repo.Create(context.Background(), &domain.PaymentTransaction{
			TransactionID: id,
			OrderID:       orderID,
			AmountPaise:   1000,
		}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	latest, err := repo.FindLatestByOrderID(context.Background(), orderID)
	if err != nil {
		t.Fatalf("find latest: %v", err)
	}
	if latest.TransactionID != "TXN-b" {
		t.Fatalf("expected newest attempt TXN-b, got %s", latest.TransactionID)
	}
}

func TestUpdateStatusAndLookup(t *testing.T) {
	db := newTestDB(t)
	repo := NewTransactionRepository(db)

	if err := repo.Create(context.Background(), &domain.PaymentTransaction{
		TransactionID: "TXN-1",
		OrderID:       uuid.NewString(),
		AmountPaise:   1000,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.UpdateStatus(context.Background(), "TXN-1", domain.TransactionStatusConfirmed, "PAYMENT_SUCCESS"); err != nil {
		t.Fatalf("update status: %v", err)
	}

	got, err := repo.FindByTransactionID(context.Background(), "TXN-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != domain.TransactionStatusConfirmed || got.ProviderCode != "PAYMENT_SUCCESS" {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestFindMissingTransaction(t *testing.T) {
	db := newTestDB(t)
	repo := NewTransactionRepository(db)

	if _, err := repo.FindByTransactionID(context.Background(), "TXN-missing"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
	if _, err := repo.FindLatestByOrderID(context.Background(), uuid.NewString()); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}
