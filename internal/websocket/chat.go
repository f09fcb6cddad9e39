package chatws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/saeid-a/CalibrateBack/internal/live"
	"github.com/saeid-a/CalibrateBack/internal/models"
	"github.com/saeid-a/CalibrateBack/internal/services"
	"go.uber.org/zap"
)

type chatService interface {
	Append(ctx context.Context, actor services.Actor, clientEmail string, text string) (*models.Message, error)
	SoftDelete(ctx context.Context, actor services.Actor, clientEmail string, messageID string, confirm bool) (*models.Message, error)
	Open(ctx context.Context, actor services.Actor, clientEmail string) error
	Subscribe(ctx context.Context, actor services.Actor, clientEmail string) (*live.Feed[models.Message], error)
}

type foodLogService interface {
	Subscribe(ctx context.Context, actor services.Actor, clientEmail, date string) (*live.Feed[models.FoodLog], error)
}

type incomingFrame struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	ID      string `json:"id"`
	Confirm bool   `json:"confirm"`
}

// ServeChat runs one chat socket until it closes. Having the conversation
// open counts as reading it, so incoming messages are marked read while
// the socket stays open.
func ServeChat(c *Client, service chatService, actor services.Actor, clientEmail string) {
	defer c.Close()
	ctx := c.Context()

	feed, err := service.Subscribe(ctx, actor, clientEmail)
	if err != nil {
		c.SendError(errorMessage(err))
		c.drain()
		return
	}
	defer feed.Close()

	if err := service.Open(ctx, actor, clientEmail); err != nil {
		c.log.Warn("mark conversation read", zap.String("client", clientEmail), zap.Error(err))
	}

	go c.WritePump()
	go Stream(c, feed, func(event live.Event) {
		message, ok := event.Doc.(models.Message)
		if !ok || event.Op != live.OpAdded || message.SenderEmail == actor.Email {
			return
		}
		if err := service.Open(ctx, actor, clientEmail); err != nil {
			c.log.Warn("mark conversation read", zap.String("client", clientEmail), zap.Error(err))
		}
	})

	c.ReadPump(func(payload []byte) {
		var in incomingFrame
		if err := json.Unmarshal(payload, &in); err != nil {
			c.SendError("invalid message payload")
			return
		}
		switch in.Type {
		case "message":
			if _, err := service.Append(ctx, actor, clientEmail, in.Text); err != nil {
				c.SendError(errorMessage(err))
			}
		case "delete":
			if _, err := service.SoftDelete(ctx, actor, clientEmail, in.ID, in.Confirm); err != nil {
				c.SendError(errorMessage(err))
			}
		case "read":
			if err := service.Open(ctx, actor, clientEmail); err != nil {
				c.SendError(errorMessage(err))
			}
		default:
			c.SendError("unsupported message type")
		}
	})
}

// ServeFoodLogs streams a client's food log. An empty date follows the
// whole history.
func ServeFoodLogs(c *Client, service foodLogService, actor services.Actor, clientEmail, date string) {
	defer c.Close()

	feed, err := service.Subscribe(c.Context(), actor, clientEmail, date)
	if err != nil {
		c.SendError(errorMessage(err))
		c.drain()
		return
	}
	defer feed.Close()

	go c.WritePump()
	go Stream(c, feed, nil)
	c.ReadPump(nil)
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return "invalid request"
	case errors.Is(err, services.ErrForbidden):
		return "forbidden"
	case errors.Is(err, services.ErrNotFound):
		return "not found"
	case errors.Is(err, services.ErrConfirmationRequired):
		return "confirmation required"
	case errors.Is(err, services.ErrUnavailable):
		return "temporarily unavailable, try again"
	default:
		return "failed to process request"
	}
}
