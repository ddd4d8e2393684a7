package moderation

import (
	"context"
	"sync"
	"time"

	"github.com/juttuchat/modguard/pkg/domain/ledger"
	"github.com/juttuchat/modguard/pkg/domain/verdict"
	"github.com/juttuchat/modguard/pkg/heuristics"
	"github.com/juttuchat/modguard/pkg/infra/metrics"
	"github.com/juttuchat/modguard/pkg/infra/oracle"
	"github.com/juttuchat/modguard/pkg/infra/repository"
	"github.com/juttuchat/modguard/pkg/policy"
	"github.com/juttuchat/modguard/pkg/sanction"
	"github.com/sirupsen/logrus"
)

// Request is the payload the chat transport hands over for every message
// send.
type Request struct {
	SenderID string `json:"sender_id"`
	Text     string `json:"text,omitempty"`
	ImageRef string `json:"image_ref,omitempty"`
}

// Result is what the transport needs to deliver, withhold or blur the
// message. Warnings are sender-only annotations, never sanctions.
type Result struct {
	Action         policy.Action `json:"action"`
	Reason         string        `json:"reason"`
	DisplayMessage string        `json:"display_message,omitempty"`
	IsBlurred      bool          `json:"is_blurred,omitempty"`
	Warnings       []string      `json:"warnings,omitempty"`
}

type Service interface {
	Moderate(ctx context.Context, req Request) (Result, error)
}

type service struct {
	classifier oracle.Classifier
	analyzer   *heuristics.Analyzer
	engine     *policy.Engine
	executor   *sanction.Executor
	repo       ledger.Repository
	banCache   *repository.BanStateCache
	logger     *logrus.Logger
	userLocks  sync.Map
}

func NewService(
	classifier oracle.Classifier,
	analyzer *heuristics.Analyzer,
	engine *policy.Engine,
	executor *sanction.Executor,
	repo ledger.Repository,
	banCache *repository.BanStateCache,
	logger *logrus.Logger,
) Service {
	return &service{
		classifier: classifier,
		analyzer:   analyzer,
		engine:     engine,
		executor:   executor,
		repo:       repo,
		banCache:   banCache,
		logger:     logger,
	}
}

// Moderate runs the full pipeline for one message: ban check, classification,
// escalation decision, sanctions. Concurrent messages from the same user
// serialize on a per-user mutex so two tier evaluations never race on the
// same ledger state.
func (s *service) Moderate(ctx context.Context, req Request) (Result, error) {
	userID := ledger.NormalizeUserID(req.SenderID)

	lock := s.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()

	// Cached ban state short-circuits before any store or oracle work.
	if s.banCache != nil {
		if status, ok := s.banCache.Get(ctx, userID); ok && status.Active(now) {
			return s.finish(userID, policy.Decision{
				Action:  policy.ActionBlock,
				Reason:  policy.ReasonBanned,
				Message: "Your account is currently suspended from chatting.",
			}), nil
		}
	}

	led, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	in := policy.Input{UserID: userID, Text: req.Text, ImageRef: req.ImageRef}

	var v verdict.Classification
	if in.HasContent() && !led.Banned(now) {
		v, err = s.classify(ctx, in)
		if err != nil {
			return Result{}, err
		}
	}

	decision := s.engine.Decide(in, v, led, now)

	if decision.RecordForgiveness {
		if err := s.executor.RecordForgiveness(ctx, userID); err != nil {
			s.logger.WithError(err).WithField("user_id", userID).
				Error("failed to record forgiveness")
		}
	}
	if decision.Record != nil {
		if _, _, err := s.executor.RecordViolation(ctx, userID, *decision.Record); err != nil {
			// The decision still stands; losing the record is logged loudly.
			s.logger.WithError(err).WithField("user_id", userID).
				Error("failed to record violation")
		}
	}
	if decision.Ban {
		if _, err := s.executor.ApplyBan(ctx, userID, decision.Reason, decision.ForcePermanent); err != nil {
			s.logger.WithError(err).WithField("user_id", userID).
				Error("failed to apply ban")
		}
	}

	return s.finish(userID, decision), nil
}

// classify runs the oracle first; on fail-open the local analyzer covers text
// as a fallback, and on a clean oracle verdict a hard heuristic match still
// counts as an additional signal. The oracle call is never retried: a failed
// call falls straight back.
func (s *service) classify(ctx context.Context, in policy.Input) (verdict.Classification, error) {
	v, err := s.classifier.Classify(ctx, oracle.Content{Text: in.Text, ImageRef: in.ImageRef})
	if err != nil {
		return verdict.Classification{}, err
	}

	if in.Text == "" {
		return v, nil
	}

	switch {
	case v.Source == verdict.SourceFallbackError:
		return s.analyzer.Analyze(in.Text), nil
	case !v.IsFlagged:
		if h := s.analyzer.Analyze(in.Text); h.IsFlagged && h.Blocked {
			return h, nil
		}
	}
	return v, nil
}

func (s *service) finish(userID string, d policy.Decision) Result {
	metrics.DecisionTotal.WithLabelValues(string(d.Action), d.Reason).Inc()

	if d.Action == policy.ActionBlock || d.Action == policy.ActionBan {
		s.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"action":  string(d.Action),
			"reason":  d.Reason,
		}).Info("message withheld")
	}

	return Result{
		Action:         d.Action,
		Reason:         d.Reason,
		DisplayMessage: d.Message,
		IsBlurred:      d.Blurred,
		Warnings:       d.Warnings,
	}
}

func (s *service) lockFor(userID string) *sync.Mutex {
	lock, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu, ok := lock.(*sync.Mutex)
	if !ok {
		return &sync.Mutex{}
	}
	return mu
}
