package service

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLedgerFirstDeliveryIsNew(t *testing.T) {
	ledger := NewMemoryLedger(24 * time.Hour)

	res, err := ledger.Begin(context.Background(), "TXN-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if res.State != LedgerStateNew {
		t.Fatalf("expected new, got %s", res.State)
	}
}

func TestMemoryLedgerReplayAfterComplete(t *testing.T) {
	ledger := NewMemoryLedger(24 * time.Hour)
	ctx := context.Background()

	if _, err := ledger.Begin(ctx, "TXN-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := ledger.Complete(ctx, "TXN-1", "success"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	res, err := ledger.Begin(ctx, "TXN-1")
	if err != nil {
		t.Fatalf("second begin: %v", err)
	}
	if res.State != LedgerStateReplay {
		t.Fatalf("expected replay, got %s", res.State)
	}
	if res.Outcome != "success" {
		t.Fatalf("expected recorded outcome, got %q", res.Outcome)
	}
}

func TestMemoryLedgerConcurrentDeliveryIsInProgress(t *testing.T) {
	ledger := NewMemoryLedger(24 * time.Hour)
	ctx := context.Background()

	if _, err := ledger.Begin(ctx, "TXN-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	res, err := ledger.Begin(ctx, "TXN-1")
	if err != nil {
		t.Fatalf("duplicate begin: %v", err)
	}
	if res.State != LedgerStateInProgress {
		t.Fatalf("expected in_progress, got %s", res.State)
	}
}

func TestMemoryLedgerAbandonReleasesClaim(t *testing.T) {
	ledger := NewMemoryLedger(24 * time.Hour)
	ctx := context.Background()

	if _, err := ledger.Begin(ctx, "TXN-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := ledger.Abandon(ctx, "TXN-1"); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	res, err := ledger.Begin(ctx, "TXN-1")
	if err != nil {
		t.Fatalf("begin after abandon: %v", err)
	}
	if res.State != LedgerStateNew {
		t.Fatalf("expected abandoned claim to be reprocessable, got %s", res.State)
	}
}

func TestMemoryLedgerReclaimsCrashedClaim(t *testing.T) {
	ledger := NewMemoryLedger(24 * time.Hour)
	ctx := context.Background()

	base := time.Unix(1700000000, 0)
	ledger.now = func() time.Time { return base }

	// A claim that is never completed nor abandoned, as if the process
	// died mid-delivery.
	if _, err := ledger.Begin(ctx, "TXN-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	ledger.now = func() time.Time { return base.Add(claimLease / 2) }
	res, err := ledger.Begin(ctx, "TXN-1")
	if err != nil {
		t.Fatalf("begin within lease: %v", err)
	}
	if res.State != LedgerStateInProgress {
		t.Fatalf("expected in_progress within lease, got %s", res.State)
	}

	ledger.now = func() time.Time { return base.Add(claimLease + time.Second) }
	res, err = ledger.Begin(ctx, "TXN-1")
	if err != nil {
		t.Fatalf("begin after lease: %v", err)
	}
	if res.State != LedgerStateNew {
		t.Fatalf("expected crashed claim reclaimed after lease, got %s", res.State)
	}
}

func TestMemoryLedgerPurgesExpiredEntries(t *testing.T) {
	ledger := NewMemoryLedger(time.Hour)
	ctx := context.Background()

	base := time.Unix(1700000000, 0)
	ledger.now = func() time.Time { return base }

	if _, err := ledger.Begin(ctx, "TXN-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := ledger.Complete(ctx, "TXN-1", "success"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	ledger.now = func() time.Time { return base.Add(2 * time.Hour) }
	res, err := ledger.Begin(ctx, "TXN-1")
	if err != nil {
		t.Fatalf("begin after expiry: %v", err)
	}
	if res.State != LedgerStateNew {
		t.Fatalf("expected expired entry to be purged, got %s", res.State)
	}
}
