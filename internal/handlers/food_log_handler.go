package handlers

import (
	"context"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CalibrateBack/internal/live"
	"github.com/saeid-a/CalibrateBack/internal/middleware"
	"github.com/saeid-a/CalibrateBack/internal/models"
	"github.com/saeid-a/CalibrateBack/internal/services"
	chatws "github.com/saeid-a/CalibrateBack/internal/websocket"
	"go.uber.org/zap"
)

type foodLogApplicationService interface {
	Add(ctx context.Context, actor services.Actor, input services.AddFoodLogInput) (*models.FoodLog, error)
	Update(ctx context.Context, actor services.Actor, id, item, quantity string) (*models.FoodLog, error)
	Delete(ctx context.Context, actor services.Actor, id string) error
	ListDay(ctx context.Context, actor services.Actor, clientEmail, date string) ([]models.FoodLog, error)
	ListAll(ctx context.Context, actor services.Actor, clientEmail string) ([]models.FoodLog, error)
	Subscribe(ctx context.Context, actor services.Actor, clientEmail, date string) (*live.Feed[models.FoodLog], error)
}

type FoodLogHandler struct {
	service foodLogApplicationService
	log     *zap.Logger
}

type addFoodLogRequest struct {
	Meal     string `json:"meal"`
	Item     string `json:"item"`
	Quantity string `json:"quantity"`
	Date     string `json:"date"`
}

type updateFoodLogRequest struct {
	Item     string `json:"item"`
	Quantity string `json:"quantity"`
}

func NewFoodLogHandler(service foodLogApplicationService, log *zap.Logger) *FoodLogHandler {
	return &FoodLogHandler{service: service, log: log}
}

// ListMine returns the caller's log for ?date=, today by default.
func (h *FoodLogHandler) ListMine(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	logs, err := h.service.ListDay(c.Context(), actor, actor.Email, c.Query("date"))
	if err != nil {
		return mapServiceError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"logs": logs})
}

func (h *FoodLogHandler) Add(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req addFoodLogRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	entry, err := h.service.Add(c.Context(), actor, services.AddFoodLogInput{
		Meal:     req.Meal,
		Item:     req.Item,
		Quantity: req.Quantity,
		Date:     req.Date,
	})
	if err != nil {
		return mapServiceError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"log": entry})
}

func (h *FoodLogHandler) Update(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req updateFoodLogRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	entry, err := h.service.Update(c.Context(), actor, c.Params("id"), req.Item, req.Quantity)
	if err != nil {
		return mapServiceError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"log": entry})
}

func (h *FoodLogHandler) Delete(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	if err := h.service.Delete(c.Context(), actor, c.Params("id")); err != nil {
		return mapServiceError(c, h.log, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListForClient is the coach view. With ?date= it returns that day only.
func (h *FoodLogHandler) ListForClient(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var (
		logs []models.FoodLog
		err  error
	)
	if date := c.Query("date"); date != "" {
		logs, err = h.service.ListDay(c.Context(), actor, clientParam(c), date)
	} else {
		logs, err = h.service.ListAll(c.Context(), actor, clientParam(c))
	}
	if err != nil {
		return mapServiceError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"logs": logs})
}

func (h *FoodLogHandler) HandleWebSocket(conn *websocket.Conn) {
	actor := services.Actor{}
	actor.Email, _ = conn.Locals(middleware.LocalUserID).(string)
	actor.Role, _ = conn.Locals(middleware.LocalRole).(string)

	client := chatws.NewClient(context.Background(), conn, h.log.With(
		zap.String("socket", "logs"),
		zap.String("user", actor.Email),
	))
	chatws.ServeFoodLogs(client, h.service, actor, unescape(conn.Params("email")), conn.Query("date"))
}
