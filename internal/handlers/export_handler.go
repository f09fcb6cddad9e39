package handlers

import (
	"context"
	"mime"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CalibrateBack/internal/services"
	"go.uber.org/zap"
)

type exportApplicationService interface {
	Render(ctx context.Context, actor services.Actor, clientEmail, format string) (*services.ExportFile, error)
	Archive(ctx context.Context, actor services.Actor, clientEmail, format string) (*services.ArchivedExport, error)
}

type ExportHandler struct {
	service exportApplicationService
	log     *zap.Logger
}

func NewExportHandler(service exportApplicationService, log *zap.Logger) *ExportHandler {
	return &ExportHandler{service: service, log: log}
}

// Download streams the export as an attachment.
func (h *ExportHandler) Download(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	file, err := h.service.Render(c.Context(), actor, clientParam(c), c.Query("format"))
	if err != nil {
		return mapServiceError(c, h.log, err)
	}

	c.Set(fiber.HeaderContentType, file.ContentType)
	c.Set(fiber.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": file.Filename}))
	return c.Send(file.Body)
}

// Archive stores the export and returns a time-limited link to it.
func (h *ExportHandler) Archive(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	archived, err := h.service.Archive(c.Context(), actor, clientParam(c), c.Query("format"))
	if err != nil {
		return mapServiceError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"export": archived})
}
