package ledger

import "context"

// Repository is the keyed persistent store for user violation ledgers.
// Updates are atomic per key: implementations must reject writes based on a
// stale version with domain.ErrLedgerConflict so callers can re-read and
// re-apply.
type Repository interface {
	// Get returns the ledger for a canonical user key, or
	// domain.ErrLedgerNotFound.
	Get(ctx context.Context, userID string) (*UserViolationLedger, error)

	// GetOrCreate returns the ledger, creating an empty one on first lookup.
	GetOrCreate(ctx context.Context, userID string) (*UserViolationLedger, error)

	// Update persists a modified ledger. The ledger's Version must match the
	// stored version; on success the stored version is incremented.
	Update(ctx context.Context, l *UserViolationLedger) error
}
