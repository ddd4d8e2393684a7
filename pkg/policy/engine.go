package policy

import (
	"fmt"
	"time"

	"github.com/juttuchat/modguard/pkg/domain/ledger"
	"github.com/juttuchat/modguard/pkg/domain/verdict"
	"github.com/sirupsen/logrus"
)

type Action string

const (
	ActionAllow            Action = "allow"
	ActionAllowWithWarning Action = "allow_with_warning"
	ActionBlur             Action = "blur"
	ActionBlock            Action = "block"
	ActionBan              Action = "ban"
)

const (
	ReasonBanned         = "user-banned"
	ReasonNoContent      = "no-content"
	ReasonSevereThreat   = "severe-threat"
	ReasonClean          = "clean"
	ReasonFirstOffense   = "first-offense-forgiven"
	ReasonWarnOnly       = "low-confidence-warning"
	ReasonBlurred        = "sexual-content-blurred"
	ReasonHarmful        = "harmful-content"
	ReasonFinalViolation = "final-violation"
	ReasonImage          = "image-violation"
)

// Input is the content side of a moderation request after identity
// normalization.
type Input struct {
	UserID   string
	Text     string
	ImageRef string
}

func (in Input) HasContent() bool {
	return in.Text != "" || in.ImageRef != ""
}

func (in Input) HasImage() bool {
	return in.ImageRef != ""
}

// excerptSource is what lands in a violation entry's content excerpt.
func (in Input) excerptSource() string {
	if in.Text != "" {
		return in.Text
	}
	return ledger.ImageMarker
}

// Decision is the engine's verdict on one message. Record and Ban describe
// the ledger mutations the sanction executor must apply; the engine itself
// never writes.
type Decision struct {
	Action   Action
	Reason   string
	Message  string
	Blurred  bool
	Warnings []string

	// Ledger mutations for the sanction executor.
	Record            *ledger.ViolationEntry
	RecordForgiveness bool
	Ban               bool
	ForcePermanent    bool
}

// Engine implements the tiered forgiveness state machine with the
// severe-threat bypass. It is pure: all state lives in the ledger passed in.
type Engine struct {
	profile Profile
	logger  *logrus.Logger
}

func NewEngine(profile Profile, logger *logrus.Logger) *Engine {
	return &Engine{profile: profile, logger: logger}
}

func (e *Engine) Profile() Profile {
	return e.profile
}

// Decide maps a classification verdict plus the user's current ledger state
// to an action. Ordering is significant: active bans first, then the
// no-content allow, then the severe bypass, then tiering.
func (e *Engine) Decide(in Input, v verdict.Classification, led *ledger.UserViolationLedger, now time.Time) Decision {
	if led.Banned(now) {
		return Decision{
			Action:  ActionBlock,
			Reason:  ReasonBanned,
			Message: "Your account is currently suspended from chatting.",
		}
	}

	if !in.HasContent() {
		return Decision{Action: ActionAllow, Reason: ReasonNoContent}
	}

	// Severe cutoffs apply to oracle scores only; heuristic confidences are
	// not on a comparable scale.
	if v.Source == verdict.SourceOracle {
		if severe := e.severeCategories(v.CategoryScores); len(severe) > 0 {
			entry := ledger.NewViolationEntry(
				ledger.ViolationSevereThreat,
				severe,
				in.excerptSource(),
				maxScore(v.CategoryScores, severe),
				now,
			)
			e.logger.WithFields(logrus.Fields{
				"user_id":    in.UserID,
				"categories": severe,
			}).Warn("severe threat detected, bypassing forgiveness tiers")
			return Decision{
				Action:  ActionBlock,
				Reason:  ReasonSevereThreat,
				Message: "Your message was blocked. Threatening content is never allowed here.",
				Record:  &entry,
			}
		}
	}

	if !v.IsFlagged {
		d := Decision{Action: ActionAllow, Reason: ReasonClean}
		if v.Source == verdict.SourceOracle {
			d.Warnings = e.suspicionWarnings(v.CategoryScores)
		}
		return d
	}

	// Heuristic warn-only outcome: harmful phrasing with some redeeming
	// signal. Not recorded.
	if v.Source == verdict.SourceHeuristic && !v.Blocked {
		return Decision{
			Action:  ActionAllowWithWarning,
			Reason:  ReasonWarnOnly,
			Message: "Please keep the conversation respectful.",
		}
	}

	// Image violations skip tiering entirely and go straight to a ban.
	if in.HasImage() {
		entry := ledger.NewViolationEntry(
			ledger.ViolationInappropriateImage,
			v.FlaggedCategories,
			ledger.ImageMarker,
			e.confidence(v),
			now,
		)
		return Decision{
			Action:  ActionBan,
			Reason:  ReasonImage,
			Message: "Sharing inappropriate images leads to an immediate ban.",
			Record:  &entry,
			Ban:     true,
		}
	}

	return e.applyTier(in, v, led, now)
}

// applyTier runs the forgiveness state machine over the ledger state as it
// stood before this message. Non-sexual categories never earn forgiveness.
func (e *Engine) applyTier(in Input, v verdict.Classification, led *ledger.UserViolationLedger, now time.Time) Decision {
	sexualOnly := v.SexualOnly()

	switch {
	case led.Tier() == 0:
		if sexualOnly {
			return Decision{
				Action:            ActionAllowWithWarning,
				Reason:            ReasonFirstOffense,
				Message:           "This kind of message is not okay here. This is a warning; next time the message will be hidden.",
				RecordForgiveness: true,
			}
		}
		return e.blockHarmful(in, v, now)

	case led.Tier() == 1:
		if sexualOnly && len(v.FlaggedCategories) <= e.profile.MaxBlurCategories {
			entry := ledger.NewViolationEntry(
				ledger.ViolationSexualContentBlurred,
				v.FlaggedCategories,
				in.excerptSource(),
				e.confidence(v),
				now,
			)
			return Decision{
				Action:  ActionBlur,
				Reason:  ReasonBlurred,
				Message: "Your message was hidden from the room. One more violation will block your messages.",
				Blurred: true,
				Record:  &entry,
			}
		}
		return e.blockHarmful(in, v, now)

	default:
		entry := ledger.NewViolationEntry(
			ledger.ViolationFinalBan,
			v.FlaggedCategories,
			in.excerptSource(),
			e.confidence(v),
			now,
		)
		return Decision{
			Action:  ActionBlock,
			Reason:  ReasonFinalViolation,
			Message: "Your message was blocked and your account has been suspended for repeated violations.",
			Record:  &entry,
			Ban:     true,
		}
	}
}

func (e *Engine) blockHarmful(in Input, v verdict.Classification, now time.Time) Decision {
	entry := ledger.NewViolationEntry(
		ledger.ViolationHarmfulContent,
		v.FlaggedCategories,
		in.excerptSource(),
		e.confidence(v),
		now,
	)
	return Decision{
		Action:  ActionBlock,
		Reason:  ReasonHarmful,
		Message: categoryMessage(v.DominantCategory()),
		Record:  &entry,
	}
}

func (e *Engine) severeCategories(scores map[string]float64) []string {
	return FlaggedCategories(scores, e.profile.SevereThresholds)
}

// suspicionWarnings attaches soft, sender-only annotations for sub-flag
// signals on an otherwise clean verdict. They are not sanctions and are never
// recorded.
func (e *Engine) suspicionWarnings(scores map[string]float64) []string {
	var warnings []string
	for _, cat := range FlaggedCategories(scores, e.profile.SuspicionThresholds) {
		warnings = append(warnings, fmt.Sprintf("Heads up: your message may come across as %s to others.", categoryAdjective(cat)))
	}
	return warnings
}

// confidence picks the value stored on a violation entry: the strongest
// flagged oracle score, or the heuristic's own confidence.
func (e *Engine) confidence(v verdict.Classification) float64 {
	if v.Source == verdict.SourceHeuristic {
		return v.Confidence
	}
	return maxScore(v.CategoryScores, v.FlaggedCategories)
}

func maxScore(scores map[string]float64, categories []string) float64 {
	max := 0.0
	for _, cat := range categories {
		if s := scores[cat]; s > max {
			max = s
		}
	}
	return max
}

func categoryMessage(category string) string {
	switch category {
	case verdict.CategoryViolence, verdict.CategoryViolenceGraphic:
		return "Your message was blocked: violent content is not allowed."
	case verdict.CategoryHarassment, verdict.CategoryHarassmentThreatening, verdict.CategoryBullying:
		return "Your message was blocked: bullying or harassment is not allowed."
	case verdict.CategoryHate:
		return "Your message was blocked: hateful content is not allowed."
	case verdict.CategorySelfHarm:
		return "Your message was blocked. If you are struggling, please talk to a trusted adult."
	default:
		return "Your message was blocked because it violates the chat rules."
	}
}

func categoryAdjective(category string) string {
	switch category {
	case verdict.CategorySexual:
		return "sexual"
	case verdict.CategoryViolence:
		return "aggressive"
	case verdict.CategoryHarassment:
		return "hurtful"
	case verdict.CategoryHate:
		return "hateful"
	case verdict.CategorySelfHarm:
		return "concerning"
	default:
		return "inappropriate"
	}
}
