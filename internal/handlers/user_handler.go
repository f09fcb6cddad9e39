package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CalibrateBack/internal/models"
	"github.com/saeid-a/CalibrateBack/internal/services"
	"go.uber.org/zap"
)

type userApplicationService interface {
	Provision(ctx context.Context, actor services.Actor, input services.ProvisionUserInput) (*models.User, error)
	ListClients(ctx context.Context, actor services.Actor) ([]models.ClientSummary, error)
	Promote(ctx context.Context, actor services.Actor, clientEmail string) (*models.User, error)
	Demote(ctx context.Context, actor services.Actor, clientEmail string) (*models.User, error)
	AssignCoach(ctx context.Context, actor services.Actor, clientEmail, coachEmail string) (*models.User, error)
	AckCelebration(ctx context.Context, actor services.Actor) error
	Unread(ctx context.Context, actor services.Actor) (int, map[string]int, error)
}

type UserHandler struct {
	service userApplicationService
	log     *zap.Logger
}

type provisionUserRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	CoachEmail  string `json:"coach_email"`
}

type assignCoachRequest struct {
	CoachEmail string `json:"coach_email"`
}

func NewUserHandler(service userApplicationService, log *zap.Logger) *UserHandler {
	return &UserHandler{service: service, log: log}
}

func (h *UserHandler) Provision(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req provisionUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	user, err := h.service.Provision(c.Context(), actor, services.ProvisionUserInput{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Role:        req.Role,
		CoachEmail:  req.CoachEmail,
	})
	if err != nil {
		return mapServiceError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user})
}

func (h *UserHandler) ListClients(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	clients, err := h.service.ListClients(c.Context(), actor)
	if err != nil {
		return mapServiceError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"clients": clients})
}

func (h *UserHandler) Promote(c *fiber.Ctx) error {
	return h.changePhase(c, h.service.Promote)
}

func (h *UserHandler) Demote(c *fiber.Ctx) error {
	return h.changePhase(c, h.service.Demote)
}

func (h *UserHandler) changePhase(
	c *fiber.Ctx,
	change func(ctx context.Context, actor services.Actor, clientEmail string) (*models.User, error),
) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	user, err := change(c.Context(), actor, clientParam(c))
	if err != nil {
		return mapServiceError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"user":        user,
		"phase_title": models.PhaseTitle(user.CurrentPhase),
	})
}

func (h *UserHandler) AssignCoach(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req assignCoachRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	user, err := h.service.AssignCoach(c.Context(), actor, clientParam(c), req.CoachEmail)
	if err != nil {
		return mapServiceError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"user": user})
}

func (h *UserHandler) AckCelebration(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	if err := h.service.AckCelebration(c.Context(), actor); err != nil {
		return mapServiceError(c, h.log, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *UserHandler) Unread(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	total, inbox, err := h.service.Unread(c.Context(), actor)
	if err != nil {
		return mapServiceError(c, h.log, err)
	}

	body := fiber.Map{"unread_count": total}
	if inbox != nil {
		body["clients"] = inbox
	}
	return c.JSON(body)
}
