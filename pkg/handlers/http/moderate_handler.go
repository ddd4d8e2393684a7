package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	appModeration "github.com/juttuchat/modguard/pkg/app/moderation"
	"github.com/juttuchat/modguard/pkg/domain"
	"github.com/sirupsen/logrus"
)

type moderateHandler struct {
	logger  *logrus.Logger
	service appModeration.Service
}

func NewModerateHandler(logger *logrus.Logger, service appModeration.Service) Handler {
	return &moderateHandler{logger: logger, service: service}
}

// Handle accepts one message from the chat transport and returns the
// moderation decision. Infrastructure failures never surface here: they
// resolve to an allow decision inside the pipeline.
func (h *moderateHandler) Handle(c *fiber.Ctx) error {
	var req appModeration.Request
	if err := c.BodyParser(&req); err != nil {
		h.logger.WithError(err).Error("failed to bind request")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInvalidJsonPayload})
	}

	if req.SenderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "sender_id is required"})
	}

	result, err := h.service.Moderate(c.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		h.logger.WithError(err).Error("moderation pipeline failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}

	return c.Status(fiber.StatusOK).JSON(result)
}
