package services

import (
	"context"

	"github.com/saeid-a/CalibrateBack/internal/models"
)

// The store interfaces below are satisfied by both the Postgres
// repositories and the Mongo stores.

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ListByRole(ctx context.Context, roles ...string) ([]models.User, error)
	UpdateDisplayName(ctx context.Context, email, displayName string) error
	SetUnreadFlag(ctx context.Context, email string, unread bool) error
	SyncUnreadFlag(ctx context.Context, email string) (bool, error)
	UpdatePhaseIfCurrent(ctx context.Context, email string, current, next int, celebrate bool) (*models.User, error)
	ClearCelebration(ctx context.Context, email string) error
	AssignCoach(ctx context.Context, clientEmail, coachEmail string) error
}

type MessageStore interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, clientEmail, id string) (*models.Message, error)
	ListByClient(ctx context.Context, clientEmail string) ([]models.Message, error)
	ListPage(ctx context.Context, clientEmail string, limit, offset int) ([]models.Message, int, error)
	SoftDelete(ctx context.Context, clientEmail, id string) (*models.Message, error)
}

type UnreadStore interface {
	Increment(ctx context.Context, clientEmail, coachEmail string, side models.UnreadSide) error
	Reset(ctx context.Context, clientEmail string, coachEmails []string, side models.UnreadSide) error
	ListByClient(ctx context.Context, clientEmail string) ([]models.UnreadCounter, error)
	ListByCoach(ctx context.Context, coachEmails []string) ([]models.UnreadCounter, error)
}

type FoodLogStore interface {
	Create(ctx context.Context, log *models.FoodLog) error
	GetByID(ctx context.Context, id string) (*models.FoodLog, error)
	Update(ctx context.Context, id, item, quantity string) (*models.FoodLog, error)
	Delete(ctx context.Context, id string) error
	ListByClientAndDate(ctx context.Context, clientEmail, date string) ([]models.FoodLog, error)
	ListByClient(ctx context.Context, clientEmail string) ([]models.FoodLog, error)
}

type userReader interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type unreadFlagWriter interface {
	SetUnreadFlag(ctx context.Context, email string, unread bool) error
	SyncUnreadFlag(ctx context.Context, email string) (bool, error)
	ListByRole(ctx context.Context, roles ...string) ([]models.User, error)
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	Email string
	Role  string
}

func (a Actor) IsStaff() bool {
	return models.IsStaffRole(a.Role)
}

// conversationAccess loads the client that owns a conversation and checks
// that actor may read or write it. Clients reach only their own
// conversation; coaches and owners reach every client's.
func conversationAccess(ctx context.Context, users userReader, actor Actor, clientEmail string) (*models.User, error) {
	clientEmail = models.NormalizeEmail(clientEmail)
	if clientEmail == "" {
		return nil, ErrInvalidInput
	}
	switch {
	case actor.Role == models.RoleClient:
		if actor.Email != clientEmail {
			return nil, ErrForbidden
		}
	case actor.IsStaff():
	default:
		return nil, ErrForbidden
	}

	client, err := users.GetByEmail(ctx, clientEmail)
	if err != nil {
		return nil, storeError(err)
	}
	if client.Role != models.RoleClient {
		return nil, ErrNotFound
	}
	return client, nil
}
