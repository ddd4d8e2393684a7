package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/juttuchat/modguard/pkg/domain"
	"github.com/juttuchat/modguard/pkg/domain/ledger"
	"github.com/juttuchat/modguard/pkg/domain/verdict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_GetUnknownUser(t *testing.T) {
	repo := NewMemoryLedgerRepository()
	_, err := repo.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrLedgerNotFound)
}

func TestMemoryRepository_GetOrCreateIsLazy(t *testing.T) {
	repo := NewMemoryLedgerRepository()
	ctx := context.Background()

	l, err := repo.GetOrCreate(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "user1", l.UserID)
	assert.Equal(t, 0, l.ViolationCount)
	assert.Equal(t, ledger.BanNone, l.BanState)
	assert.Equal(t, int64(0), l.Version)

	again, err := repo.GetOrCreate(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, l.CreatedAt, again.CreatedAt)
}

func TestMemoryRepository_UpdateBumpsVersion(t *testing.T) {
	repo := NewMemoryLedgerRepository()
	ctx := context.Background()

	l, err := repo.GetOrCreate(ctx, "user1")
	require.NoError(t, err)

	l.ViolationCount = 1
	require.NoError(t, repo.Update(ctx, l))
	assert.Equal(t, int64(1), l.Version)

	stored, err := repo.Get(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ViolationCount)
	assert.Equal(t, int64(1), stored.Version)
}

func TestMemoryRepository_StaleWriteConflicts(t *testing.T) {
	repo := NewMemoryLedgerRepository()
	ctx := context.Background()

	first, err := repo.GetOrCreate(ctx, "user1")
	require.NoError(t, err)
	second, err := repo.GetOrCreate(ctx, "user1")
	require.NoError(t, err)

	first.ViolationCount = 1
	require.NoError(t, repo.Update(ctx, first))

	second.ViolationCount = 5
	err = repo.Update(ctx, second)
	assert.ErrorIs(t, err, domain.ErrLedgerConflict)

	stored, err := repo.Get(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ViolationCount)
}

func TestMemoryRepository_ReadsAreIsolatedCopies(t *testing.T) {
	repo := NewMemoryLedgerRepository()
	ctx := context.Background()

	l, err := repo.GetOrCreate(ctx, "user1")
	require.NoError(t, err)
	l.Violations = append(l.Violations, ledger.NewViolationEntry(
		ledger.ViolationHarmfulContent, []string{verdict.CategoryHate}, "x", 0.5, time.Now()))
	l.ViolationCount = 99

	stored, err := repo.Get(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.ViolationCount)
	assert.Empty(t, stored.Violations)
}

func TestMemoryRepository_ConcurrentRetriedWritesLoseNothing(t *testing.T) {
	repo := NewMemoryLedgerRepository()
	ctx := context.Background()
	const writers = 8
	const perWriter = 10

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				for {
					l, err := repo.GetOrCreate(ctx, "user1")
					if err != nil {
						t.Error(err)
						return
					}
					l.ViolationCount++
					err = repo.Update(ctx, l)
					if err == nil {
						break
					}
					if !errors.Is(err, domain.ErrLedgerConflict) {
						t.Error(err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	stored, err := repo.Get(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter, stored.ViolationCount)
}
