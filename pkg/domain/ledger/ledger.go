package ledger

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BanState is forward-only in severity; temporary bans expire naturally.
type BanState string

const (
	BanNone      BanState = "none"
	BanTemporary BanState = "temporary"
	BanPermanent BanState = "permanent"
)

type ViolationType string

const (
	ViolationHarmfulContent       ViolationType = "harmful_content"
	ViolationSexualContentBlurred ViolationType = "sexual_content_blurred"
	ViolationSevereThreat         ViolationType = "severe_threat"
	ViolationFinalBan             ViolationType = "final_violation_ban"
	ViolationInappropriateImage   ViolationType = "inappropriate_image"
)

// ImageMarker replaces the content excerpt for image violations.
const ImageMarker = "[image]"

const excerptLimit = 100

// TextViolation reports whether a violation type counts toward the 24-hour
// rolling text-violation window. Severe threats and final-tier entries carry
// their own ban path and are excluded.
func (t ViolationType) TextViolation() bool {
	return t == ViolationHarmfulContent || t == ViolationSexualContentBlurred
}

type ViolationEntry struct {
	ID             uuid.UUID     `json:"id"`
	Type           ViolationType `json:"type"`
	Categories     []string      `json:"categories"`
	ContentExcerpt string        `json:"content_excerpt"`
	Confidence     float64       `json:"confidence"`
	CreatedAt      time.Time     `json:"created_at"`
}

// NewViolationEntry builds an entry with a bounded excerpt of the offending
// content. Entries are immutable once appended.
func NewViolationEntry(t ViolationType, categories []string, content string, confidence float64, now time.Time) ViolationEntry {
	return ViolationEntry{
		ID:             uuid.New(),
		Type:           t,
		Categories:     categories,
		ContentExcerpt: Excerpt(content),
		Confidence:     confidence,
		CreatedAt:      now,
	}
}

// Excerpt bounds content to the first 100 characters for ledger storage.
func Excerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptLimit {
		return content
	}
	return string(runes[:excerptLimit])
}

type ViolationListJSON []ViolationEntry

func (v ViolationListJSON) Value() (driver.Value, error) {
	if v == nil {
		return json.Marshal(ViolationListJSON{})
	}
	return json.Marshal(v)
}

func (v *ViolationListJSON) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("expected []byte, got %T", value)
	}
	return json.Unmarshal(bytes, v)
}

// UserViolationLedger is the durable per-user violation and ban record. It is
// mutated only through the sanction executor; the version column backs the
// repository's optimistic concurrency check.
type UserViolationLedger struct {
	UserID         string            `json:"user_id" gorm:"primaryKey;column:user_id"`
	Violations     ViolationListJSON `json:"violations" gorm:"type:jsonb"`
	ViolationCount int               `json:"violation_count"`
	// ForgivenCount tracks first-offense forgiveness grants. They are not
	// violations, but they advance the forgiveness tier so a second sexual
	// message is blurred instead of forgiven again.
	ForgivenCount int        `json:"forgiven_count"`
	BanState      BanState   `json:"ban_state"`
	BanEndsAt     *time.Time `json:"ban_ends_at,omitempty"`
	BanCount      int        `json:"ban_count"`
	BanReason     string     `json:"ban_reason"`
	Version       int64      `json:"version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (UserViolationLedger) TableName() string {
	return "user_violation_ledgers"
}

// NewLedger creates the lazily-initialized ledger for a canonical user key.
func NewLedger(userID string, now time.Time) *UserViolationLedger {
	return &UserViolationLedger{
		UserID:     userID,
		Violations: ViolationListJSON{},
		BanState:   BanNone,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Tier is the forgiveness stage used by the escalation engine: 0 warns, 1
// blurs, 2+ blocks and bans. Forgiven first offenses advance the tier without
// counting as violations.
func (l *UserViolationLedger) Tier() int {
	return l.ViolationCount + l.ForgivenCount
}

// Banned reports whether the user is under an active ban at the given time.
func (l *UserViolationLedger) Banned(now time.Time) bool {
	switch l.BanState {
	case BanPermanent:
		return true
	case BanTemporary:
		return l.BanEndsAt != nil && l.BanEndsAt.After(now)
	default:
		return false
	}
}

// RecentTextViolations counts text-channel violations inside the rolling
// window ending at now.
func (l *UserViolationLedger) RecentTextViolations(now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	count := 0
	for _, v := range l.Violations {
		if v.Type.TextViolation() && v.CreatedAt.After(cutoff) {
			count++
		}
	}
	return count
}

// knownIdentityPrefixes are the auth-provider prefixes the chat transport may
// attach to a sender id. The prefixed and bare forms must resolve to the same
// ledger.
var knownIdentityPrefixes = []string{
	"oauth:",
	"google:",
	"apple:",
	"firebase:",
	"anon:",
}

// NormalizeUserID maps every platform identity form of a user to one
// canonical ledger key.
func NormalizeUserID(raw string) string {
	id := strings.TrimSpace(raw)
	for _, prefix := range knownIdentityPrefixes {
		if strings.HasPrefix(id, prefix) {
			id = strings.TrimPrefix(id, prefix)
			break
		}
	}
	return strings.ToLower(id)
}
