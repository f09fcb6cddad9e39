package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CalibrateBack/internal/middleware"
	"github.com/saeid-a/CalibrateBack/internal/models"
	"github.com/saeid-a/CalibrateBack/internal/services"
	"go.uber.org/zap"
)

// retryAfterSeconds is sent with 503 responses.
const retryAfterSeconds = "5"

func mapServiceError(c *fiber.Ctx, log *zap.Logger, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, services.ErrConfirmationRequired):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Confirmation required"})
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	case errors.Is(err, services.ErrUnauthorizedUser):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"role": models.RoleUnauthorized})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidStateTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Invalid state transition"})
	case errors.Is(err, services.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Already exists"})
	case errors.Is(err, services.ErrUnavailable):
		log.Warn("store unavailable", zap.String("path", c.Path()), zap.Error(err))
		c.Set(fiber.HeaderRetryAfter, retryAfterSeconds)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Service temporarily unavailable"})
	default:
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process request"})
	}
}

// actorFrom reads the caller set by the auth middleware.
func actorFrom(c *fiber.Ctx) (services.Actor, bool) {
	email, _ := c.Locals(middleware.LocalUserID).(string)
	role, _ := c.Locals(middleware.LocalRole).(string)
	if email == "" || role == "" {
		return services.Actor{}, false
	}
	return services.Actor{Email: email, Role: role}, true
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
}
