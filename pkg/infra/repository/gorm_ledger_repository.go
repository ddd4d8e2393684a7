package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juttuchat/modguard/pkg/domain"
	"github.com/juttuchat/modguard/pkg/domain/ledger"
	"github.com/juttuchat/modguard/pkg/infra/metrics"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedgerRepository persists user violation ledgers in postgres. Updates
// use an optimistic version check so concurrent writers never silently lose a
// violation record.
type GormLedgerRepository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewGormLedgerRepository(db *gorm.DB, logger *logrus.Logger) ledger.Repository {
	return &GormLedgerRepository{db: db, logger: logger}
}

// Migrate creates the ledger table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&ledger.UserViolationLedger{})
}

func (r *GormLedgerRepository) Get(ctx context.Context, userID string) (*ledger.UserViolationLedger, error) {
	var entity ledger.UserViolationLedger
	err := r.db.WithContext(ctx).First(&entity, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLedgerNotFound
		}
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	return &entity, nil
}

func (r *GormLedgerRepository) GetOrCreate(ctx context.Context, userID string) (*ledger.UserViolationLedger, error) {
	entity, err := r.Get(ctx, userID)
	if err == nil {
		return entity, nil
	}
	if !errors.Is(err, domain.ErrLedgerNotFound) {
		return nil, err
	}

	fresh := ledger.NewLedger(userID, time.Now())
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(fresh).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}

	// Re-read so a concurrent creator's row wins.
	return r.Get(ctx, userID)
}

func (r *GormLedgerRepository) Update(ctx context.Context, l *ledger.UserViolationLedger) error {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&ledger.UserViolationLedger{}).
		Where("user_id = ? AND version = ?", l.UserID, l.Version).
		Updates(map[string]interface{}{
			"violations":      l.Violations,
			"violation_count": l.ViolationCount,
			"forgiven_count":  l.ForgivenCount,
			"ban_state":       l.BanState,
			"ban_ends_at":     l.BanEndsAt,
			"ban_count":       l.BanCount,
			"ban_reason":      l.BanReason,
			"version":         l.Version + 1,
			"updated_at":      now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update ledger: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		metrics.LedgerConflictTotal.Inc()
		r.logger.WithFields(logrus.Fields{
			"user_id": l.UserID,
			"version": l.Version,
		}).Debug("ledger version conflict")
		return domain.ErrLedgerConflict
	}
	l.Version++
	l.UpdatedAt = now
	return nil
}
