package sanction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juttuchat/modguard/pkg/domain"
	"github.com/juttuchat/modguard/pkg/domain/ledger"
	"github.com/juttuchat/modguard/pkg/infra/metrics"
	"github.com/juttuchat/modguard/pkg/infra/repository"
	"github.com/juttuchat/modguard/pkg/policy"
	"github.com/sirupsen/logrus"
)

// updateRetries bounds the internal retry on ledger write conflicts. Losing a
// violation record is a correctness problem, so conflicts are re-read and
// re-applied rather than surfaced.
const updateRetries = 3

// Executor is the only writer of user violation ledgers. It translates
// engine decisions into ledger mutations and derives concrete ban durations
// from the active sensitivity profile.
type Executor struct {
	repo     ledger.Repository
	profile  policy.Profile
	banCache *repository.BanStateCache
	logger   *logrus.Logger
}

func NewExecutor(
	repo ledger.Repository,
	profile policy.Profile,
	banCache *repository.BanStateCache,
	logger *logrus.Logger,
) *Executor {
	return &Executor{
		repo:     repo,
		profile:  profile,
		banCache: banCache,
		logger:   logger,
	}
}

// RecordViolation appends the entry and increments the violation count. Text
// violations additionally check the rolling 24-hour window: enough volume in
// a day triggers a ban even when the per-message tier did not ask for one.
// Returns the updated ledger and whether a volume ban was applied.
func (e *Executor) RecordViolation(ctx context.Context, userID string, entry ledger.ViolationEntry) (*ledger.UserViolationLedger, bool, error) {
	userID = ledger.NormalizeUserID(userID)
	volumeBanned := false

	updated, err := e.mutate(ctx, userID, func(l *ledger.UserViolationLedger) {
		volumeBanned = false
		l.Violations = append(l.Violations, entry)
		l.ViolationCount++

		if entry.Type.TextViolation() &&
			l.RecentTextViolations(entry.CreatedAt, e.profile.RollingWindow) >= e.profile.TextViolationLimit {
			e.ban(l, fmt.Sprintf("%d text violations within %s", e.profile.TextViolationLimit, e.profile.RollingWindow), false)
			volumeBanned = true
			if l.BanState == ledger.BanTemporary {
				// The next rolling window starts fresh; the ban count does not.
				l.Violations = ledger.ViolationListJSON{}
				l.ViolationCount = 0
			}
		}
	})
	if err != nil {
		return nil, false, err
	}

	e.logger.WithFields(logrus.Fields{
		"user_id":         userID,
		"violation_type":  string(entry.Type),
		"categories":      entry.Categories,
		"violation_count": updated.ViolationCount,
		"volume_banned":   volumeBanned,
	}).Info("violation recorded")

	if volumeBanned {
		e.cacheBan(ctx, updated)
	}
	return updated, volumeBanned, nil
}

// RecordForgiveness notes a first-offense forgiveness grant. It is not a
// violation: the violations list and count stay untouched, but the tier
// advances so the next sexual-only offense is blurred rather than forgiven.
func (e *Executor) RecordForgiveness(ctx context.Context, userID string) error {
	userID = ledger.NormalizeUserID(userID)
	updated, err := e.mutate(ctx, userID, func(l *ledger.UserViolationLedger) {
		l.ForgivenCount++
	})
	if err != nil {
		return err
	}
	e.logger.WithFields(logrus.Fields{
		"user_id":        userID,
		"forgiven_count": updated.ForgivenCount,
	}).Info("first offense forgiven")
	return nil
}

// ApplyBan increments the ban count and sets the ban state: permanent once
// the profile's threshold is reached or when forced, temporary otherwise.
func (e *Executor) ApplyBan(ctx context.Context, userID, reason string, forcePermanent bool) (ledger.BanState, error) {
	userID = ledger.NormalizeUserID(userID)

	updated, err := e.mutate(ctx, userID, func(l *ledger.UserViolationLedger) {
		e.ban(l, reason, forcePermanent)
	})
	if err != nil {
		return ledger.BanNone, err
	}

	e.logger.WithFields(logrus.Fields{
		"user_id":   userID,
		"ban_state": string(updated.BanState),
		"ban_count": updated.BanCount,
		"reason":    reason,
	}).Warn("ban applied")

	e.cacheBan(ctx, updated)
	return updated.BanState, nil
}

// mutate runs a read-modify-write cycle with bounded retries on version
// conflicts.
func (e *Executor) mutate(ctx context.Context, userID string, apply func(*ledger.UserViolationLedger)) (*ledger.UserViolationLedger, error) {
	var lastErr error
	for attempt := 0; attempt < updateRetries; attempt++ {
		l, err := e.repo.GetOrCreate(ctx, userID)
		if err != nil {
			return nil, err
		}
		apply(l)
		err = e.repo.Update(ctx, l)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, domain.ErrLedgerConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("ledger update failed after %d attempts: %w", updateRetries, lastErr)
}

func (e *Executor) ban(l *ledger.UserViolationLedger, reason string, forcePermanent bool) {
	l.BanCount++
	if forcePermanent || l.BanCount >= e.profile.PermanentBanAfter {
		l.BanState = ledger.BanPermanent
		l.BanEndsAt = nil
	} else {
		l.BanState = ledger.BanTemporary
		endsAt := time.Now().Add(e.profile.TempBanDuration)
		l.BanEndsAt = &endsAt
	}
	l.BanReason = reason
	metrics.BanTotal.WithLabelValues(string(l.BanState)).Inc()
}

func (e *Executor) cacheBan(ctx context.Context, l *ledger.UserViolationLedger) {
	if e.banCache != nil && l.BanState != ledger.BanNone {
		e.banCache.Put(ctx, l)
	}
}
