package sanction

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/juttuchat/modguard/pkg/domain"
	"github.com/juttuchat/modguard/pkg/domain/ledger"
	"github.com/juttuchat/modguard/pkg/domain/verdict"
	"github.com/juttuchat/modguard/pkg/infra/repository"
	"github.com/juttuchat/modguard/pkg/policy"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testExecutor(t *testing.T, repo ledger.Repository) *Executor {
	t.Helper()
	profile, err := policy.ProfileByName(policy.ProfileNormal)
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewExecutor(repo, profile, nil, logger)
}

func textEntry(at time.Time) ledger.ViolationEntry {
	return ledger.NewViolationEntry(
		ledger.ViolationHarmfulContent,
		[]string{verdict.CategoryHarassment},
		"mean message",
		0.5,
		at,
	)
}

func TestRecordViolation_AppendsAndCounts(t *testing.T) {
	repo := repository.NewMemoryLedgerRepository()
	exec := testExecutor(t, repo)
	ctx := context.Background()

	updated, volumeBanned, err := exec.RecordViolation(ctx, "user1", textEntry(time.Now()))
	require.NoError(t, err)
	assert.False(t, volumeBanned)
	assert.Equal(t, 1, updated.ViolationCount)
	require.Len(t, updated.Violations, 1)
	assert.Equal(t, ledger.ViolationHarmfulContent, updated.Violations[0].Type)
	assert.Equal(t, ledger.BanNone, updated.BanState)
}

func TestRecordViolation_NormalizesUserID(t *testing.T) {
	repo := repository.NewMemoryLedgerRepository()
	exec := testExecutor(t, repo)
	ctx := context.Background()

	_, _, err := exec.RecordViolation(ctx, "oauth:User1", textEntry(time.Now()))
	require.NoError(t, err)
	_, _, err = exec.RecordViolation(ctx, "USER1", textEntry(time.Now()))
	require.NoError(t, err)

	l, err := repo.Get(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 2, l.ViolationCount)
}

func TestRecordViolation_VolumeBanAtWindowLimit(t *testing.T) {
	repo := repository.NewMemoryLedgerRepository()
	exec := testExecutor(t, repo)
	ctx := context.Background()
	now := time.Now()

	// Four violations stay below the normal-profile limit of five.
	for i := 0; i < 4; i++ {
		_, volumeBanned, err := exec.RecordViolation(ctx, "user1", textEntry(now.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
		assert.False(t, volumeBanned)
	}

	updated, volumeBanned, err := exec.RecordViolation(ctx, "user1", textEntry(now.Add(5*time.Minute)))
	require.NoError(t, err)
	assert.True(t, volumeBanned)
	assert.Equal(t, ledger.BanTemporary, updated.BanState)
	require.NotNil(t, updated.BanEndsAt)
	assert.Equal(t, 1, updated.BanCount)

	// A temporary volume ban starts the next window fresh.
	assert.Empty(t, updated.Violations)
	assert.Equal(t, 0, updated.ViolationCount)
}

func TestRecordViolation_OldEntriesOutsideWindowDoNotCount(t *testing.T) {
	repo := repository.NewMemoryLedgerRepository()
	exec := testExecutor(t, repo)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 4; i++ {
		_, _, err := exec.RecordViolation(ctx, "user1", textEntry(now.Add(-25*time.Hour)))
		require.NoError(t, err)
	}

	updated, volumeBanned, err := exec.RecordViolation(ctx, "user1", textEntry(now))
	require.NoError(t, err)
	assert.False(t, volumeBanned)
	assert.Equal(t, ledger.BanNone, updated.BanState)
	assert.Equal(t, 5, updated.ViolationCount)
}

func TestRecordViolation_SevereThreatsDoNotFeedTheWindow(t *testing.T) {
	repo := repository.NewMemoryLedgerRepository()
	exec := testExecutor(t, repo)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 6; i++ {
		entry := ledger.NewViolationEntry(ledger.ViolationSevereThreat, []string{verdict.CategoryViolence}, "threat", 0.9, now)
		updated, volumeBanned, err := exec.RecordViolation(ctx, "user1", entry)
		require.NoError(t, err)
		assert.False(t, volumeBanned)
		assert.Equal(t, ledger.BanNone, updated.BanState)
	}
}

func TestRecordForgiveness_AdvancesTierWithoutViolation(t *testing.T) {
	repo := repository.NewMemoryLedgerRepository()
	exec := testExecutor(t, repo)
	ctx := context.Background()

	require.NoError(t, exec.RecordForgiveness(ctx, "user1"))

	l, err := repo.Get(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 0, l.ViolationCount)
	assert.Empty(t, l.Violations)
	assert.Equal(t, 1, l.ForgivenCount)
	assert.Equal(t, 1, l.Tier())
}

func TestApplyBan_EscalatesToPermanent(t *testing.T) {
	repo := repository.NewMemoryLedgerRepository()
	exec := testExecutor(t, repo)
	ctx := context.Background()

	state, err := exec.ApplyBan(ctx, "user1", "repeated violations", false)
	require.NoError(t, err)
	assert.Equal(t, ledger.BanTemporary, state)

	state, err = exec.ApplyBan(ctx, "user1", "repeated violations", false)
	require.NoError(t, err)
	assert.Equal(t, ledger.BanTemporary, state)

	// Third ban reaches the normal profile's permanent threshold.
	state, err = exec.ApplyBan(ctx, "user1", "repeated violations", false)
	require.NoError(t, err)
	assert.Equal(t, ledger.BanPermanent, state)

	l, err := repo.Get(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 3, l.BanCount)
	assert.Nil(t, l.BanEndsAt)
}

func TestApplyBan_ForcePermanent(t *testing.T) {
	repo := repository.NewMemoryLedgerRepository()
	exec := testExecutor(t, repo)

	state, err := exec.ApplyBan(context.Background(), "user1", "inappropriate image", true)
	require.NoError(t, err)
	assert.Equal(t, ledger.BanPermanent, state)
}

func TestApplyBan_TemporaryBanHasDuration(t *testing.T) {
	repo := repository.NewMemoryLedgerRepository()
	exec := testExecutor(t, repo)

	_, err := exec.ApplyBan(context.Background(), "user1", "volume", false)
	require.NoError(t, err)

	l, err := repo.Get(context.Background(), "user1")
	require.NoError(t, err)
	require.NotNil(t, l.BanEndsAt)
	remaining := time.Until(*l.BanEndsAt)
	assert.Greater(t, remaining, 23*time.Hour)
	assert.LessOrEqual(t, remaining, 24*time.Hour)
}

// conflictingRepo fails the first N updates with a version conflict.
type conflictingRepo struct {
	ledger.Repository
	conflicts int
	updates   int
}

func (r *conflictingRepo) Update(ctx context.Context, l *ledger.UserViolationLedger) error {
	r.updates++
	if r.conflicts > 0 {
		r.conflicts--
		return domain.ErrLedgerConflict
	}
	return r.Repository.Update(ctx, l)
}

func TestMutate_RetriesOnConflict(t *testing.T) {
	repo := &conflictingRepo{Repository: repository.NewMemoryLedgerRepository(), conflicts: 2}
	exec := testExecutor(t, repo)

	updated, _, err := exec.RecordViolation(context.Background(), "user1", textEntry(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ViolationCount)
	assert.Equal(t, 3, repo.updates)
}

func TestMutate_GivesUpAfterRetriesExhausted(t *testing.T) {
	repo := &conflictingRepo{Repository: repository.NewMemoryLedgerRepository(), conflicts: 10}
	exec := testExecutor(t, repo)

	_, _, err := exec.RecordViolation(context.Background(), "user1", textEntry(time.Now()))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLedgerConflict)
	assert.Equal(t, 3, repo.updates)
}
