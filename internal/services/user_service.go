package services

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/saeid-a/CalibrateBack/internal/models"
	"go.uber.org/zap"
)

// Identity is what a federated sign-in tells us about the caller.
type Identity struct {
	Email       string
	DisplayName string
}

type ProvisionUserInput struct {
	Email       string
	DisplayName string
	Role        string
	CoachEmail  string
}

type UserService struct {
	users         UserStore
	notifications *NotificationService
	log           *zap.Logger
}

func NewUserService(users UserStore, notifications *NotificationService, log *zap.Logger) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{users: users, notifications: notifications, log: log}
}

// Provision creates a user record. Only owners may provision.
func (s *UserService) Provision(ctx context.Context, actor Actor, input ProvisionUserInput) (*models.User, error) {
	if actor.Role != models.RoleOwner {
		return nil, ErrForbidden
	}

	user := &models.User{
		Email:        models.NormalizeEmail(input.Email),
		DisplayName:  strings.TrimSpace(input.DisplayName),
		Role:         strings.ToLower(strings.TrimSpace(input.Role)),
		CoachEmail:   models.NormalizeEmail(input.CoachEmail),
		CurrentPhase: models.MinPhase,
	}
	if user.Role == "" {
		user.Role = models.RoleClient
	}
	if !models.IsKnownRole(user.Role) || user.Role == models.RoleUnauthorized {
		return nil, ErrInvalidInput
	}
	if user.CoachEmail != "" {
		if user.Role != models.RoleClient {
			return nil, ErrInvalidInput
		}
		if err := s.requireStaff(ctx, user.CoachEmail); err != nil {
			return nil, err
		}
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, storeError(err)
	}
	s.log.Info("user provisioned",
		zap.String("email", user.Email),
		zap.String("role", user.Role),
		zap.String("by", actor.Email))
	return user, nil
}

// Bootstrap makes sure email exists as an owner so a fresh deployment can
// be signed into. An existing record is left alone.
func (s *UserService) Bootstrap(ctx context.Context, email string) error {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil
	}
	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(storeError(err), ErrNotFound) {
		return storeError(err)
	}

	err = s.users.Create(ctx, &models.User{
		Email:        email,
		Role:         models.RoleOwner,
		CurrentPhase: models.MinPhase,
	})
	if err != nil && !errors.Is(storeError(err), ErrConflict) {
		return storeError(err)
	}
	s.log.Info("bootstrap owner ensured", zap.String("email", email))
	return nil
}

// SignIn resolves a verified identity to its user record. Unknown emails
// get ErrUnauthorizedUser and nothing is written.
func (s *UserService) SignIn(ctx context.Context, identity Identity) (*models.User, error) {
	email := models.NormalizeEmail(identity.Email)
	if email == "" {
		return nil, ErrInvalidInput
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		err = storeError(err)
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorizedUser
		}
		return nil, err
	}
	if user.Role == models.RoleUnauthorized {
		return nil, ErrUnauthorizedUser
	}

	name := strings.TrimSpace(identity.DisplayName)
	if name != "" && name != user.DisplayName {
		if err := s.users.UpdateDisplayName(ctx, user.Email, name); err != nil {
			return nil, storeError(err)
		}
		user.DisplayName = name
	}
	return user, nil
}

func (s *UserService) Me(ctx context.Context, actor Actor) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, actor.Email)
	if err != nil {
		return nil, storeError(err)
	}
	return user, nil
}

// ListClients is the coach's client selector: every client with its phase
// and the number of messages the caller has not read.
func (s *UserService) ListClients(ctx context.Context, actor Actor) ([]models.ClientSummary, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	clients, err := s.users.ListByRole(ctx, models.RoleClient)
	if err != nil {
		return nil, storeError(err)
	}
	inbox, err := s.notifications.ClientInbox(ctx, actor.Email)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.ClientSummary, 0, len(clients))
	for _, client := range clients {
		summaries = append(summaries, models.ClientSummary{
			Email:              client.Email,
			DisplayName:        client.DisplayName,
			CoachEmail:         client.CoachEmail,
			CurrentPhase:       client.CurrentPhase,
			PhaseTitle:         models.PhaseTitle(client.CurrentPhase),
			CelebratePromotion: client.CelebratePromotion,
			UnreadCount:        inbox[client.Email],
			HasUnreadMsg:       inbox[client.Email] > 0,
		})
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Email < summaries[j].Email
	})
	return summaries, nil
}

// Promote moves a client one phase forward and turns on the celebration.
func (s *UserService) Promote(ctx context.Context, actor Actor, clientEmail string) (*models.User, error) {
	return s.changePhase(ctx, actor, clientEmail, 1)
}

// Demote moves a client one phase back and turns the celebration off.
func (s *UserService) Demote(ctx context.Context, actor Actor, clientEmail string) (*models.User, error) {
	return s.changePhase(ctx, actor, clientEmail, -1)
}

func (s *UserService) changePhase(ctx context.Context, actor Actor, clientEmail string, step int) (*models.User, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	client, err := s.getClient(ctx, clientEmail)
	if err != nil {
		return nil, err
	}

	next := client.CurrentPhase + step
	if !models.ValidPhase(next) {
		return nil, ErrInvalidStateTransition
	}
	updated, err := s.users.UpdatePhaseIfCurrent(ctx, client.Email, client.CurrentPhase, next, step > 0)
	if err != nil {
		err = storeError(err)
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidStateTransition
		}
		return nil, err
	}
	s.log.Info("client phase changed",
		zap.String("client", client.Email),
		zap.Int("from", client.CurrentPhase),
		zap.Int("to", updated.CurrentPhase),
		zap.String("by", actor.Email))
	return updated, nil
}

// AckCelebration clears the promotion banner once the client has seen it.
func (s *UserService) AckCelebration(ctx context.Context, actor Actor) error {
	if actor.Role != models.RoleClient {
		return ErrForbidden
	}
	return storeError(s.users.ClearCelebration(ctx, actor.Email))
}

// AssignCoach sets or, with an empty coachEmail, clears a client's coach.
func (s *UserService) AssignCoach(ctx context.Context, actor Actor, clientEmail, coachEmail string) (*models.User, error) {
	if actor.Role != models.RoleOwner {
		return nil, ErrForbidden
	}
	client, err := s.getClient(ctx, clientEmail)
	if err != nil {
		return nil, err
	}
	coachEmail = models.NormalizeEmail(coachEmail)
	if coachEmail != "" {
		if err := s.requireStaff(ctx, coachEmail); err != nil {
			return nil, err
		}
	}
	if err := s.users.AssignCoach(ctx, client.Email, coachEmail); err != nil {
		return nil, storeError(err)
	}
	client.CoachEmail = coachEmail
	return client, nil
}

// Unread reports the caller's unread state: the message count for clients,
// the per-client inbox for staff.
func (s *UserService) Unread(ctx context.Context, actor Actor) (int, map[string]int, error) {
	if actor.Role == models.RoleClient {
		count, err := s.notifications.UnreadForClient(ctx, actor.Email)
		return count, nil, err
	}
	if !actor.IsStaff() {
		return 0, nil, ErrForbidden
	}
	inbox, err := s.notifications.ClientInbox(ctx, actor.Email)
	if err != nil {
		return 0, nil, err
	}
	total := 0
	for _, n := range inbox {
		total += n
	}
	return total, inbox, nil
}

func (s *UserService) getClient(ctx context.Context, email string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, ErrInvalidInput
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, storeError(err)
	}
	if user.Role != models.RoleClient {
		return nil, ErrNotFound
	}
	return user, nil
}

func (s *UserService) requireStaff(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		err = storeError(err)
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidInput
		}
		return err
	}
	if !user.IsStaff() {
		return ErrInvalidInput
	}
	return nil
}
