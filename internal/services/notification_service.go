package services

import (
	"context"

	"github.com/saeid-a/CalibrateBack/internal/models"
	"go.uber.org/zap"
)

// NotificationService keeps the unread counters of every client/coach pair
// and the has_unread_msg summary flag on user records. A client's messages
// count against the assigned coach, or the shared team inbox when the client
// has none. Readers only ever zero their own side of a pair. After every
// counter change the flags involved are derived again by the user store from
// the counters, never written from a value read earlier.
type NotificationService struct {
	users    unreadFlagWriter
	counters UnreadStore
	log      *zap.Logger
}

func NewNotificationService(users unreadFlagWriter, counters UnreadStore, log *zap.Logger) *NotificationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationService{users: users, counters: counters, log: log}
}

func (s *NotificationService) MarkUnread(ctx context.Context, ownerEmail string) error {
	return storeError(s.users.SetUnreadFlag(ctx, ownerEmail, true))
}

func (s *NotificationService) ClearUnread(ctx context.Context, ownerEmail string) error {
	return storeError(s.users.SetUnreadFlag(ctx, ownerEmail, false))
}

// RecordMessage counts a new message against its recipient side.
func (s *NotificationService) RecordMessage(ctx context.Context, client *models.User, senderEmail string) error {
	if senderEmail == client.Email {
		coach := inboxOf(client)
		if err := s.counters.Increment(ctx, client.Email, coach, models.UnreadForCoach); err != nil {
			return storeError(err)
		}
		if coach == models.TeamInbox {
			return s.syncStaff(ctx)
		}
		return s.sync(ctx, coach)
	}

	if err := s.counters.Increment(ctx, client.Email, senderEmail, models.UnreadForClient); err != nil {
		return storeError(err)
	}
	return s.sync(ctx, client.Email)
}

// MarkRead zeroes the reader's side of the conversation with client.
func (s *NotificationService) MarkRead(ctx context.Context, client *models.User, reader Actor) error {
	if reader.Email == client.Email {
		if err := s.counters.Reset(ctx, client.Email, nil, models.UnreadForClient); err != nil {
			return storeError(err)
		}
		return s.sync(ctx, client.Email)
	}

	if !reader.IsStaff() {
		return ErrForbidden
	}
	inboxes := []string{reader.Email, models.TeamInbox}
	if err := s.counters.Reset(ctx, client.Email, inboxes, models.UnreadForCoach); err != nil {
		return storeError(err)
	}
	// The team inbox is shared, so clearing it can change every staff flag.
	return s.syncStaff(ctx)
}

// UnreadForClient is the number of staff messages client has not read.
func (s *NotificationService) UnreadForClient(ctx context.Context, clientEmail string) (int, error) {
	counters, err := s.counters.ListByClient(ctx, clientEmail)
	if err != nil {
		return 0, storeError(err)
	}
	total := 0
	for _, counter := range counters {
		total += counter.ForClient
	}
	return total, nil
}

// ClientInbox returns, per client email, how many messages coachEmail has
// not read. Messages waiting in the team inbox are included.
func (s *NotificationService) ClientInbox(ctx context.Context, coachEmail string) (map[string]int, error) {
	counters, err := s.counters.ListByCoach(ctx, []string{coachEmail, models.TeamInbox})
	if err != nil {
		return nil, storeError(err)
	}
	inbox := make(map[string]int)
	for _, counter := range counters {
		if counter.ForCoach > 0 {
			inbox[counter.ClientEmail] += counter.ForCoach
		}
	}
	return inbox, nil
}

func (s *NotificationService) syncStaff(ctx context.Context) error {
	staff, err := s.users.ListByRole(ctx, models.RoleCoach, models.RoleOwner)
	if err != nil {
		return storeError(err)
	}
	for _, member := range staff {
		if err := s.sync(ctx, member.Email); err != nil {
			return err
		}
	}
	return nil
}

func (s *NotificationService) sync(ctx context.Context, email string) error {
	unread, err := s.users.SyncUnreadFlag(ctx, email)
	if err != nil {
		return storeError(err)
	}
	s.log.Debug("unread flag synced", zap.String("email", email), zap.Bool("unread", unread))
	return nil
}

func inboxOf(client *models.User) string {
	if client.CoachEmail != "" {
		return client.CoachEmail
	}
	return models.TeamInbox
}
