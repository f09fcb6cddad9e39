package services

import (
	"context"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/saeid-a/CalibrateBack/internal/live"
	"github.com/saeid-a/CalibrateBack/internal/models"
)

const maxFoodFieldLength = 200

type AddFoodLogInput struct {
	Meal     string
	Item     string
	Quantity string
	Date     string
}

type FoodLogService struct {
	users    userReader
	logs     FoodLogStore
	hub      *live.Hub
	location *time.Location
	policy   *bluemonday.Policy
	now      func() time.Time
}

func NewFoodLogService(users userReader, logs FoodLogStore, hub *live.Hub, location *time.Location) *FoodLogService {
	if location == nil {
		location = time.UTC
	}
	return &FoodLogService{
		users:    users,
		logs:     logs,
		hub:      hub,
		location: location,
		policy:   bluemonday.StrictPolicy(),
		now:      time.Now,
	}
}

// Add logs a meal entry for the calling client. An empty date means today
// in the service's time zone.
func (s *FoodLogService) Add(ctx context.Context, actor Actor, input AddFoodLogInput) (*models.FoodLog, error) {
	if actor.Role != models.RoleClient {
		return nil, ErrForbidden
	}
	if models.MealIndex(input.Meal) < 0 {
		return nil, ErrInvalidInput
	}
	item, quantity, err := s.cleanEntry(input.Item, input.Quantity)
	if err != nil {
		return nil, err
	}
	date, err := s.resolveDate(input.Date)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	log := &models.FoodLog{
		ID:          id.String(),
		ClientEmail: actor.Email,
		Meal:        input.Meal,
		Item:        item,
		Quantity:    quantity,
		Date:        date,
	}
	if err := s.logs.Create(ctx, log); err != nil {
		return nil, storeError(err)
	}
	return log, nil
}

func (s *FoodLogService) Update(ctx context.Context, actor Actor, id, item, quantity string) (*models.FoodLog, error) {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return nil, err
	}
	item, quantity, err := s.cleanEntry(item, quantity)
	if err != nil {
		return nil, err
	}
	updated, err := s.logs.Update(ctx, id, item, quantity)
	if err != nil {
		return nil, storeError(err)
	}
	return updated, nil
}

func (s *FoodLogService) Delete(ctx context.Context, actor Actor, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	return storeError(s.logs.Delete(ctx, id))
}

// ListDay returns one day of a client's log in meal order.
func (s *FoodLogService) ListDay(ctx context.Context, actor Actor, clientEmail, date string) ([]models.FoodLog, error) {
	client, err := conversationAccess(ctx, s.users, actor, clientEmail)
	if err != nil {
		return nil, err
	}
	date, err = s.resolveDate(date)
	if err != nil {
		return nil, err
	}
	logs, err := s.logs.ListByClientAndDate(ctx, client.Email, date)
	if err != nil {
		return nil, storeError(err)
	}
	slices.SortStableFunc(logs, live.FoodLogsByMeal)
	return logs, nil
}

// ListAll returns a client's whole history, newest first.
func (s *FoodLogService) ListAll(ctx context.Context, actor Actor, clientEmail string) ([]models.FoodLog, error) {
	client, err := conversationAccess(ctx, s.users, actor, clientEmail)
	if err != nil {
		return nil, err
	}
	logs, err := s.logs.ListByClient(ctx, client.Email)
	if err != nil {
		return nil, storeError(err)
	}
	return logs, nil
}

// Subscribe follows a client's log. With a date it follows that day in meal
// order, otherwise the whole history newest first.
func (s *FoodLogService) Subscribe(ctx context.Context, actor Actor, clientEmail, date string) (*live.Feed[models.FoodLog], error) {
	client, err := conversationAccess(ctx, s.users, actor, clientEmail)
	if err != nil {
		return nil, err
	}

	if date == "" {
		view := live.NewView(live.FoodLogsNewestFirst)
		return live.Follow(s.hub, live.CollectionFoodLogs, client.Email, view, func() ([]models.FoodLog, error) {
			logs, err := s.logs.ListByClient(ctx, client.Email)
			return logs, storeError(err)
		})
	}

	date, err = s.resolveDate(date)
	if err != nil {
		return nil, err
	}
	view := live.NewView(live.FoodLogsByMeal).Filter(func(log models.FoodLog) bool {
		return log.Date == date
	})
	return live.Follow(s.hub, live.CollectionFoodLogs, client.Email, view, func() ([]models.FoodLog, error) {
		logs, err := s.logs.ListByClientAndDate(ctx, client.Email, date)
		return logs, storeError(err)
	})
}

func (s *FoodLogService) owned(ctx context.Context, actor Actor, id string) (*models.FoodLog, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	log, err := s.logs.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if log.ClientEmail != actor.Email {
		return nil, ErrForbidden
	}
	return log, nil
}

func (s *FoodLogService) cleanEntry(item, quantity string) (string, string, error) {
	item = s.clean(item)
	quantity = s.clean(quantity)
	if item == "" || quantity == "" {
		return "", "", ErrInvalidInput
	}
	if utf8.RuneCountInString(item) > maxFoodFieldLength || utf8.RuneCountInString(quantity) > maxFoodFieldLength {
		return "", "", ErrInvalidInput
	}
	return item, quantity, nil
}

func (s *FoodLogService) clean(value string) string {
	return plainText(s.policy, value)
}

func (s *FoodLogService) resolveDate(date string) (string, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return s.now().In(s.location).Format(models.DateLayout), nil
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return "", ErrInvalidInput
	}
	return date, nil
}
