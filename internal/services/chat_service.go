package services

import (
	"context"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/saeid-a/CalibrateBack/internal/live"
	"github.com/saeid-a/CalibrateBack/internal/models"
)

const maxMessageLength = 4000

// ChatService owns the transcript of every client's conversation with the
// coaching team. The conversation key is the client's email.
type ChatService struct {
	users         userReader
	messages      MessageStore
	notifications *NotificationService
	hub           *live.Hub
	policy        *bluemonday.Policy
}

func NewChatService(
	users userReader,
	messages MessageStore,
	notifications *NotificationService,
	hub *live.Hub,
) *ChatService {
	return &ChatService{
		users:         users,
		messages:      messages,
		notifications: notifications,
		hub:           hub,
		policy:        bluemonday.StrictPolicy(),
	}
}

// Append stores a new message from actor and counts it as unread for the
// other side. Text is stripped of markup and must not be blank.
func (s *ChatService) Append(
	ctx context.Context,
	actor Actor,
	clientEmail string,
	text string,
) (*models.Message, error) {
	cleaned, err := s.cleanText(text)
	if err != nil {
		return nil, err
	}

	client, err := conversationAccess(ctx, s.users, actor, clientEmail)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	message := &models.Message{
		ID:          id.String(),
		ClientEmail: client.Email,
		SenderEmail: actor.Email,
		Text:        cleaned,
	}
	if err := s.messages.Create(ctx, message); err != nil {
		return nil, storeError(err)
	}

	if err := s.notifications.RecordMessage(ctx, client, actor.Email); err != nil {
		return message, err
	}
	return message, nil
}

// SoftDelete replaces a message's text with the tombstone. Only the sender
// may delete, and confirm must be set. Deleting twice is not an error.
func (s *ChatService) SoftDelete(
	ctx context.Context,
	actor Actor,
	clientEmail string,
	messageID string,
	confirm bool,
) (*models.Message, error) {
	if !confirm {
		return nil, ErrConfirmationRequired
	}
	if _, err := uuid.Parse(messageID); err != nil {
		return nil, ErrNotFound
	}

	client, err := conversationAccess(ctx, s.users, actor, clientEmail)
	if err != nil {
		return nil, err
	}

	message, err := s.messages.GetByID(ctx, client.Email, messageID)
	if err != nil {
		return nil, storeError(err)
	}
	if message.SenderEmail != actor.Email {
		return nil, ErrForbidden
	}
	if message.IsDeleted {
		return message, nil
	}

	deleted, err := s.messages.SoftDelete(ctx, client.Email, messageID)
	if err != nil {
		return nil, storeError(err)
	}
	return deleted, nil
}

// List returns the whole transcript, oldest first.
func (s *ChatService) List(ctx context.Context, actor Actor, clientEmail string) ([]models.Message, error) {
	client, err := conversationAccess(ctx, s.users, actor, clientEmail)
	if err != nil {
		return nil, err
	}
	messages, err := s.messages.ListByClient(ctx, client.Email)
	if err != nil {
		return nil, storeError(err)
	}
	return messages, nil
}

func (s *ChatService) ListPage(
	ctx context.Context,
	actor Actor,
	clientEmail string,
	page int,
	limit int,
) ([]models.Message, int, error) {
	if page <= 0 || limit <= 0 {
		return nil, 0, ErrInvalidInput
	}
	client, err := conversationAccess(ctx, s.users, actor, clientEmail)
	if err != nil {
		return nil, 0, err
	}
	messages, total, err := s.messages.ListPage(ctx, client.Email, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, storeError(err)
	}
	return messages, total, nil
}

// Open marks the conversation read for actor.
func (s *ChatService) Open(ctx context.Context, actor Actor, clientEmail string) error {
	client, err := conversationAccess(ctx, s.users, actor, clientEmail)
	if err != nil {
		return err
	}
	return s.notifications.MarkRead(ctx, client, actor)
}

// Subscribe returns a live transcript. The caller must Close it.
func (s *ChatService) Subscribe(ctx context.Context, actor Actor, clientEmail string) (*live.Feed[models.Message], error) {
	client, err := conversationAccess(ctx, s.users, actor, clientEmail)
	if err != nil {
		return nil, err
	}
	view := live.NewView(live.MessagesOldestFirst)
	return live.Follow(s.hub, live.CollectionMessages, client.Email, view, func() ([]models.Message, error) {
		messages, err := s.messages.ListByClient(ctx, client.Email)
		return messages, storeError(err)
	})
}

// cleanText strips markup from a message. Lengths count characters.
func (s *ChatService) cleanText(text string) (string, error) {
	cleaned := plainText(s.policy, text)
	if cleaned == "" || utf8.RuneCountInString(cleaned) > maxMessageLength {
		return "", ErrInvalidInput
	}
	return cleaned, nil
}

// plainText strips markup and returns the remaining text as the user typed
// it. Ampersands are escaped first so that entity text survives the
// policy's decode and re-encode, which the final unescape then undoes.
func plainText(policy *bluemonday.Policy, text string) string {
	escaped := strings.ReplaceAll(text, "&", "&amp;")
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(escaped)))
}
