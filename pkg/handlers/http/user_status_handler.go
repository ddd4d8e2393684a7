package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/juttuchat/modguard/pkg/domain"
	"github.com/juttuchat/modguard/pkg/domain/ledger"
	"github.com/sirupsen/logrus"
)

type userStatusHandler struct {
	logger *logrus.Logger
	repo   ledger.Repository
}

func NewUserStatusHandler(logger *logrus.Logger, repo ledger.Repository) Handler {
	return &userStatusHandler{logger: logger, repo: repo}
}

type userStatusResponse struct {
	UserID         string     `json:"user_id"`
	ViolationCount int        `json:"violation_count"`
	BanState       string     `json:"ban_state"`
	BanEndsAt      *time.Time `json:"ban_ends_at,omitempty"`
	BanCount       int        `json:"ban_count"`
	Banned         bool       `json:"banned"`
}

// Handle exposes a user's ledger summary to the chat transport. Users with no
// history report an empty ledger rather than a 404: the ledger is created
// lazily on first violation.
func (h *userStatusHandler) Handle(c *fiber.Ctx) error {
	userID := ledger.NormalizeUserID(c.Params("id"))
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user id is required"})
	}

	l, err := h.repo.Get(c.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrLedgerNotFound) {
			return c.Status(fiber.StatusOK).JSON(userStatusResponse{
				UserID:   userID,
				BanState: string(ledger.BanNone),
			})
		}
		h.logger.WithError(err).Error("failed to load ledger")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}

	return c.Status(fiber.StatusOK).JSON(userStatusResponse{
		UserID:         l.UserID,
		ViolationCount: l.ViolationCount,
		BanState:       string(l.BanState),
		BanEndsAt:      l.BanEndsAt,
		BanCount:       l.BanCount,
		Banned:         l.Banned(time.Now()),
	})
}
