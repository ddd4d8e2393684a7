package repository

import (
	"context"
	"sync"
	"time"

	"github.com/juttuchat/modguard/pkg/domain"
	"github.com/juttuchat/modguard/pkg/domain/ledger"
)

// MemoryLedgerRepository is an in-process ledger store with the same
// optimistic concurrency semantics as the postgres one. Used in tests and in
// single-node development setups.
type MemoryLedgerRepository struct {
	mu      sync.Mutex
	ledgers map[string]*ledger.UserViolationLedger
}

func NewMemoryLedgerRepository() *MemoryLedgerRepository {
	return &MemoryLedgerRepository{
		ledgers: make(map[string]*ledger.UserViolationLedger),
	}
}

func (r *MemoryLedgerRepository) Get(ctx context.Context, userID string) (*ledger.UserViolationLedger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.ledgers[userID]
	if !ok {
		return nil, domain.ErrLedgerNotFound
	}
	return copyLedger(stored), nil
}

func (r *MemoryLedgerRepository) GetOrCreate(ctx context.Context, userID string) (*ledger.UserViolationLedger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.ledgers[userID]
	if !ok {
		stored = ledger.NewLedger(userID, time.Now())
		r.ledgers[userID] = stored
	}
	return copyLedger(stored), nil
}

func (r *MemoryLedgerRepository) Update(ctx context.Context, l *ledger.UserViolationLedger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.ledgers[l.UserID]
	if !ok {
		return domain.ErrLedgerNotFound
	}
	if stored.Version != l.Version {
		return domain.ErrLedgerConflict
	}
	next := copyLedger(l)
	next.Version = l.Version + 1
	next.UpdatedAt = time.Now()
	r.ledgers[l.UserID] = next
	l.Version = next.Version
	l.UpdatedAt = next.UpdatedAt
	return nil
}

func copyLedger(l *ledger.UserViolationLedger) *ledger.UserViolationLedger {
	out := *l
	out.Violations = make(ledger.ViolationListJSON, len(l.Violations))
	copy(out.Violations, l.Violations)
	if l.BanEndsAt != nil {
		endsAt := *l.BanEndsAt
		out.BanEndsAt = &endsAt
	}
	return &out
}
