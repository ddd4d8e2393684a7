package policy

import (
	"time"

	"github.com/juttuchat/modguard/pkg/domain"
	"github.com/juttuchat/modguard/pkg/domain/verdict"
)

const (
	ProfileStrict  = "strict"
	ProfileNormal  = "normal"
	ProfileRelaxed = "relaxed"
)

// Profile is the single source of truth for every moderation threshold and
// sanction parameter. It is selected once at startup and shared by the
// classifier gateway, the escalation engine and the sanction executor.
type Profile struct {
	Name string

	// FlagThresholds are the per-category cutoffs that make a verdict
	// flagged. They are deliberately decoupled from the oracle's own
	// flagging so sensitivity stays locally tunable.
	FlagThresholds map[string]float64

	// SevereThresholds sit above the flag thresholds. Any crossing blocks
	// the message immediately, regardless of the user's violation history.
	SevereThresholds map[string]float64

	// SuspicionThresholds sit below the flag thresholds. A crossing on an
	// otherwise clean verdict attaches a soft sender-only warning.
	SuspicionThresholds map[string]float64

	// MaxBlurCategories bounds how many sexual categories may be flagged
	// for the second-offense blur to still apply.
	MaxBlurCategories int

	// TextViolationLimit is the rolling-window volume at which text
	// violations trigger a ban independent of the per-message tier.
	TextViolationLimit int
	RollingWindow      time.Duration

	// PermanentBanAfter is the ban count at which a ban becomes permanent.
	PermanentBanAfter int
	TempBanDuration   time.Duration

	// MaxTextLength bounds classifier input.
	MaxTextLength int
}

var baseFlagThresholds = map[string]float64{
	verdict.CategorySexual:                0.02,
	verdict.CategorySexualMinors:          0.005,
	verdict.CategoryViolence:              0.02,
	verdict.CategoryViolenceGraphic:       0.02,
	verdict.CategoryHarassment:            0.03,
	verdict.CategoryHarassmentThreatening: 0.01,
	verdict.CategoryHate:                  0.02,
	verdict.CategorySelfHarm:              0.01,
	verdict.CategoryIllicit:               0.05,
}

var baseSevereThresholds = map[string]float64{
	verdict.CategoryViolence:   0.05,
	verdict.CategoryHarassment: 0.10,
	verdict.CategoryHate:       0.08,
	verdict.CategorySelfHarm:   0.06,
}

var baseSuspicionThresholds = map[string]float64{
	verdict.CategorySexual:     0.008,
	verdict.CategoryViolence:   0.005,
	verdict.CategoryHarassment: 0.008,
	verdict.CategoryHate:       0.005,
	verdict.CategorySelfHarm:   0.003,
}

func scaled(base map[string]float64, factor float64) map[string]float64 {
	out := make(map[string]float64, len(base))
	for cat, threshold := range base {
		out[cat] = threshold * factor
	}
	return out
}

func newProfile(name string, factor float64, textLimit, permanentAfter int, tempBan time.Duration) Profile {
	return Profile{
		Name:                name,
		FlagThresholds:      scaled(baseFlagThresholds, factor),
		SevereThresholds:    scaled(baseSevereThresholds, factor),
		SuspicionThresholds: scaled(baseSuspicionThresholds, factor),
		MaxBlurCategories:   2,
		TextViolationLimit:  textLimit,
		RollingWindow:       24 * time.Hour,
		PermanentBanAfter:   permanentAfter,
		TempBanDuration:     tempBan,
		MaxTextLength:       2000,
	}
}

// ProfileByName resolves one of the three named sensitivity profiles. Lower
// threshold factors mean more sensitive flagging.
func ProfileByName(name string) (Profile, error) {
	switch name {
	case ProfileStrict:
		return newProfile(ProfileStrict, 0.5, 3, 2, 48*time.Hour), nil
	case ProfileNormal, "":
		return newProfile(ProfileNormal, 1.0, 5, 3, 24*time.Hour), nil
	case ProfileRelaxed:
		return newProfile(ProfileRelaxed, 2.0, 10, 5, 12*time.Hour), nil
	default:
		return Profile{}, domain.ErrUnknownProfile
	}
}

// FlaggedCategories returns the categories whose score crosses its threshold,
// in the fixed vocabulary order so results are deterministic.
func FlaggedCategories(scores, thresholds map[string]float64) []string {
	var flagged []string
	for _, cat := range verdict.OracleCategories() {
		threshold, ok := thresholds[cat]
		if !ok {
			continue
		}
		if score, present := scores[cat]; present && score >= threshold {
			flagged = append(flagged, cat)
		}
	}
	return flagged
}
