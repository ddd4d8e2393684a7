package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/juttuchat/modguard/pkg/domain/ledger"
	"github.com/juttuchat/modguard/pkg/infra/cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	banKeyPattern = "modguard:ban:%s"
	banCacheTTL   = 24 * time.Hour
)

// BanStatus is the cached projection of a ledger's ban fields, enough for the
// step-one ban check without touching postgres.
type BanStatus struct {
	State  ledger.BanState `json:"state"`
	EndsAt *time.Time      `json:"ends_at,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

func (s BanStatus) Active(now time.Time) bool {
	switch s.State {
	case ledger.BanPermanent:
		return true
	case ledger.BanTemporary:
		return s.EndsAt != nil && s.EndsAt.After(now)
	default:
		return false
	}
}

// BanStateCache is a redis read-through cache of active ban states. Reads of
// the same user are deduplicated with singleflight so a burst of messages
// from one user costs one redis round trip.
type BanStateCache struct {
	cache  cache.Client
	logger *logrus.Logger
	group  singleflight.Group
}

func NewBanStateCache(cacheClient cache.Client, logger *logrus.Logger) *BanStateCache {
	return &BanStateCache{cache: cacheClient, logger: logger}
}

// Get returns the cached ban status. A miss or a decode failure returns
// (nil, false); the caller falls back to the ledger store.
func (c *BanStateCache) Get(ctx context.Context, userID string) (*BanStatus, bool) {
	key := fmt.Sprintf(banKeyPattern, userID)
	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.cache.Get(ctx, key)
	})
	if err != nil {
		return nil, false
	}
	raw, ok := value.(string)
	if !ok || raw == "" {
		return nil, false
	}
	var status BanStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		c.logger.WithError(err).Warn("failed to decode cached ban status")
		return nil, false
	}
	return &status, true
}

// Put stores the ledger's current ban state. Temporary bans expire from the
// cache with the ban itself.
func (c *BanStateCache) Put(ctx context.Context, l *ledger.UserViolationLedger) {
	status := BanStatus{State: l.BanState, EndsAt: l.BanEndsAt, Reason: l.BanReason}
	raw, err := json.Marshal(status)
	if err != nil {
		c.logger.WithError(err).Warn("failed to encode ban status")
		return
	}

	ttl := banCacheTTL
	if l.BanState == ledger.BanTemporary && l.BanEndsAt != nil {
		remaining := time.Until(*l.BanEndsAt)
		if remaining <= 0 {
			c.Invalidate(ctx, l.UserID)
			return
		}
		if remaining < ttl {
			ttl = remaining
		}
	}

	if err := c.cache.Set(ctx, fmt.Sprintf(banKeyPattern, l.UserID), string(raw), ttl); err != nil {
		c.logger.WithError(err).Warn("failed to cache ban status")
	}
}

func (c *BanStateCache) Invalidate(ctx context.Context, userID string) {
	if err := c.cache.Delete(ctx, fmt.Sprintf(banKeyPattern, userID)); err != nil {
		c.logger.WithError(err).Debug("failed to invalidate ban status")
	}
}
