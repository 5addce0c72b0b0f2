package service

import (
	"context"
	"sync"
	"time"
)

// claimLease bounds how long an unfinished in-progress claim can block
// redeliveries. A process that dies between Begin and Complete forfeits
// its claim once the lease passes, so the provider's next retry
// reprocesses the delivery instead of stalling until retention expiry.
const claimLease = 5 * time.Minute

type LedgerState string

const (
	LedgerStateNew        LedgerState = "new"
	LedgerStateReplay     LedgerState = "replay"
	LedgerStateInProgress LedgerState = "in_progress"
)

type LedgerResult struct {
	State LedgerState
	// Outcome holds the recorded terminal outcome on replay.
	Outcome string
}

// ProcessedLedger is the fast-path idempotency guard for webhook
// deliveries. Begin claims a transaction id; Complete records its
// terminal outcome; Abandon releases a claim whose processing failed so
// the provider's retry can try again. In-progress claims live only for
// claimLease; completed entries expire after the retention window.
//
// The ledger is best-effort: the conditional order update is the
// authoritative guard. A replayed delivery that slips past the ledger
// still cannot mutate a terminal order.
type ProcessedLedger interface {
	Begin(ctx context.Context, transactionID string) (LedgerResult, error)
	Complete(ctx context.Context, transactionID, outcome string) error
	Abandon(ctx context.Context, transactionID string) error
}

type memoryLedgerEntry struct {
	state     LedgerState
	outcome   string
	expiresAt time.Time
}

// MemoryLedger is the single-process implementation. History is lost on
// restart; production deployments use the Redis or DB backing instead.
type MemoryLedger struct {
	mu        sync.Mutex
	entries   map[string]*memoryLedgerEntry
	retention time.Duration
	now       func() time.Time
}

func NewMemoryLedger(retention time.Duration) *MemoryLedger {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &MemoryLedger{
		entries:   make(map[string]*memoryLedgerEntry),
		retention: retention,
		now:       time.Now,
	}
}

func (l *MemoryLedger) Begin(_ context.Context, transactionID string) (LedgerResult, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.purgeLocked(now)

	entry, ok := l.entries[transactionID]
	if !ok {
		// The lease, not the retention window, bounds the claim: a
		// crashed claim must not block redeliveries for a full day.
		l.entries[transactionID] = &memoryLedgerEntry{
			state:     LedgerStateInProgress,
			expiresAt: now.Add(claimLease),
		}
		return LedgerResult{State: LedgerStateNew}, nil
	}
	if entry.state == LedgerStateInProgress {
		return LedgerResult{State: LedgerStateInProgress}, nil
	}
	return LedgerResult{State: LedgerStateReplay, Outcome: entry.outcome}, nil
}

func (l *MemoryLedger) Complete(_ context.Context, transactionID, outcome string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[transactionID] = &memoryLedgerEntry{
		state:     LedgerStateReplay,
		outcome:   outcome,
		expiresAt: l.now().Add(l.retention),
	}
	return nil
}

func (l *MemoryLedger) Abandon(_ context.Context, transactionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.entries[transactionID]; ok && entry.state == LedgerStateInProgress {
		delete(l.entries, transactionID)
	}
	return nil
}

func (l *MemoryLedger) purgeLocked(now time.Time) {
	for id, entry := range l.entries {
		if now.After(entry.expiresAt) {
			delete(l.entries, id)
		}
	}
}
