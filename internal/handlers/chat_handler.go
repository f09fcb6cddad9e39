package handlers

import (
	"context"
	"net/url"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CalibrateBack/internal/live"
	"github.com/saeid-a/CalibrateBack/internal/middleware"
	"github.com/saeid-a/CalibrateBack/internal/models"
	"github.com/saeid-a/CalibrateBack/internal/services"
	chatws "github.com/saeid-a/CalibrateBack/internal/websocket"
	"go.uber.org/zap"
)

type chatApplicationService interface {
	Append(ctx context.Context, actor services.Actor, clientEmail string, text string) (*models.Message, error)
	SoftDelete(ctx context.Context, actor services.Actor, clientEmail string, messageID string, confirm bool) (*models.Message, error)
	ListPage(ctx context.Context, actor services.Actor, clientEmail string, page int, limit int) ([]models.Message, int, error)
	Open(ctx context.Context, actor services.Actor, clientEmail string) error
	Subscribe(ctx context.Context, actor services.Actor, clientEmail string) (*live.Feed[models.Message], error)
}

type ChatHandler struct {
	service chatApplicationService
	log     *zap.Logger
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

func NewChatHandler(service chatApplicationService, log *zap.Logger) *ChatHandler {
	return &ChatHandler{service: service, log: log}
}

// GetMessages returns one page of the transcript, newest first.
func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	messages, total, err := h.service.ListPage(c.Context(), actor, clientParam(c), page, limit)
	if err != nil {
		return mapServiceError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"messages":   messages,
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	message, err := h.service.Append(c.Context(), actor, clientParam(c), req.Text)
	if err != nil {
		return mapServiceError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message})
}

func (h *ChatHandler) DeleteMessage(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	message, err := h.service.SoftDelete(c.Context(), actor, clientParam(c), c.Params("id"), c.QueryBool("confirm"))
	if err != nil {
		return mapServiceError(c, h.log, err)
	}

	return c.JSON(fiber.Map{"message": message})
}

func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	if err := h.service.Open(c.Context(), actor, clientParam(c)); err != nil {
		return mapServiceError(c, h.log, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	actor := services.Actor{}
	actor.Email, _ = conn.Locals(middleware.LocalUserID).(string)
	actor.Role, _ = conn.Locals(middleware.LocalRole).(string)
	clientEmail := unescape(conn.Params("email"))

	client := chatws.NewClient(context.Background(), conn, h.log.With(
		zap.String("socket", "chat"),
		zap.String("user", actor.Email),
	))
	chatws.ServeChat(client, h.service, actor, clientEmail)
}

func clientParam(c *fiber.Ctx) string {
	return unescape(c.Params("email"))
}

// unescape decodes a path segment. Addresses like a+b@x arrive encoded.
func unescape(segment string) string {
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		return segment
	}
	return decoded
}
