package services

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/saeid-a/CalibrateBack/internal/models"
	"github.com/saeid-a/CalibrateBack/internal/repository"
)

var testTime = time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

var errUnavailableStore = errors.Join(repository.ErrUnavailable, errors.New("connection refused"))

type memUsers struct {
	mu       sync.Mutex
	users    map[string]models.User
	writes   int
	getErr   error
	flagErr  error
	counters *memCounters
}

func newMemUsers(users ...models.User) *memUsers {
	m := &memUsers{users: make(map[string]models.User)}
	for _, user := range users {
		user.Normalize()
		m.users[user.Email] = user
	}
	return m
}

// track makes counters the source SyncUnreadFlag derives flags from.
func (m *memUsers) track(counters *memCounters) *memCounters {
	m.counters = counters
	return counters
}

func (m *memUsers) get(email string) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[email]
}

func (m *memUsers) Create(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.Normalize()
	if err := user.Validate(); err != nil {
		return err
	}
	if _, ok := m.users[user.Email]; ok {
		return repository.ErrDuplicate
	}
	m.writes++
	m.users[user.Email] = *user
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	user, ok := m.users[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (m *memUsers) ListByRole(_ context.Context, roles ...string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, user := range m.users {
		if slices.Contains(roles, user.Role) {
			out = append(out, user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *memUsers) update(email string, fn func(*models.User) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[email]
	if !ok || !fn(&user) {
		return repository.ErrNotFound
	}
	m.writes++
	m.users[email] = user
	return nil
}

func (m *memUsers) UpdateDisplayName(_ context.Context, email, displayName string) error {
	return m.update(email, func(u *models.User) bool { u.DisplayName = displayName; return true })
}

func (m *memUsers) SetUnreadFlag(_ context.Context, email string, unread bool) error {
	if m.flagErr != nil {
		return m.flagErr
	}
	return m.update(email, func(u *models.User) bool { u.HasUnreadMsg = unread; return true })
}

func (m *memUsers) SyncUnreadFlag(ctx context.Context, email string) (bool, error) {
	if m.flagErr != nil {
		return false, m.flagErr
	}
	user, err := m.GetByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	var pending []models.UnreadCounter
	if user.Role == models.RoleClient {
		pending = m.counters.list(func(c *models.UnreadCounter) bool {
			return c.ClientEmail == email && c.ForClient > 0
		})
	} else {
		pending = m.counters.list(func(c *models.UnreadCounter) bool {
			return (c.CoachEmail == email || c.CoachEmail == models.TeamInbox) && c.ForCoach > 0
		})
	}
	unread := len(pending) > 0
	return unread, m.update(email, func(u *models.User) bool { u.HasUnreadMsg = unread; return true })
}

func (m *memUsers) UpdatePhaseIfCurrent(_ context.Context, email string, current, next int, celebrate bool) (*models.User, error) {
	var updated models.User
	err := m.update(email, func(u *models.User) bool {
		if u.Role != models.RoleClient || u.CurrentPhase != current {
			return false
		}
		u.CurrentPhase = next
		u.CelebratePromotion = celebrate
		updated = *u
		return true
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (m *memUsers) ClearCelebration(_ context.Context, email string) error {
	return m.update(email, func(u *models.User) bool { u.CelebratePromotion = false; return true })
}

func (m *memUsers) AssignCoach(_ context.Context, clientEmail, coachEmail string) error {
	return m.update(clientEmail, func(u *models.User) bool {
		if u.Role != models.RoleClient {
			return false
		}
		u.CoachEmail = coachEmail
		return true
	})
}

type memMessages struct {
	mu        sync.Mutex
	messages  []models.Message
	clock     func() time.Time
	createErr error
	creates   int
}

func newMemMessages() *memMessages {
	return &memMessages{clock: func() time.Time { return testTime }}
}

func (m *memMessages) Create(_ context.Context, message *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.creates++
	message.CreatedAt = m.clock()
	message.UpdatedAt = message.CreatedAt
	m.messages = append(m.messages, *message)
	return nil
}

func (m *memMessages) GetByID(_ context.Context, clientEmail, id string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, message := range m.messages {
		if message.ID == id && message.ClientEmail == clientEmail {
			return &message, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memMessages) ListByClient(_ context.Context, clientEmail string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Message, 0)
	for _, message := range m.messages {
		if message.ClientEmail == clientEmail {
			out = append(out, message)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memMessages) ListPage(ctx context.Context, clientEmail string, limit, offset int) ([]models.Message, int, error) {
	all, _ := m.ListByClient(ctx, clientEmail)
	slices.Reverse(all)
	total := len(all)
	if offset >= total {
		return []models.Message{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (m *memMessages) SoftDelete(_ context.Context, clientEmail, id string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.messages {
		message := &m.messages[i]
		if message.ID == id && message.ClientEmail == clientEmail {
			message.Text = models.DeletedMessageText
			message.IsDeleted = true
			out := *message
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

type memCounters struct {
	mu       sync.Mutex
	counters map[[2]string]*models.UnreadCounter
}

func newMemCounters() *memCounters {
	return &memCounters{counters: make(map[[2]string]*models.UnreadCounter)}
}

func (m *memCounters) pair(clientEmail, coachEmail string) models.UnreadCounter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if counter, ok := m.counters[[2]string{clientEmail, coachEmail}]; ok {
		return *counter
	}
	return models.UnreadCounter{ClientEmail: clientEmail, CoachEmail: coachEmail}
}

func (m *memCounters) Increment(_ context.Context, clientEmail, coachEmail string, side models.UnreadSide) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{clientEmail, coachEmail}
	counter, ok := m.counters[key]
	if !ok {
		counter = &models.UnreadCounter{ClientEmail: clientEmail, CoachEmail: coachEmail}
		m.counters[key] = counter
	}
	if side == models.UnreadForClient {
		counter.ForClient++
	} else {
		counter.ForCoach++
	}
	return nil
}

func (m *memCounters) Reset(_ context.Context, clientEmail string, coachEmails []string, side models.UnreadSide) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, counter := range m.counters {
		if key[0] != clientEmail {
			continue
		}
		if len(coachEmails) > 0 && !slices.Contains(coachEmails, key[1]) {
			continue
		}
		if side == models.UnreadForClient {
			counter.ForClient = 0
		} else {
			counter.ForCoach = 0
		}
	}
	return nil
}

func (m *memCounters) ListByClient(_ context.Context, clientEmail string) ([]models.UnreadCounter, error) {
	return m.list(func(c *models.UnreadCounter) bool { return c.ClientEmail == clientEmail }), nil
}

func (m *memCounters) ListByCoach(_ context.Context, coachEmails []string) ([]models.UnreadCounter, error) {
	return m.list(func(c *models.UnreadCounter) bool { return slices.Contains(coachEmails, c.CoachEmail) }), nil
}

func (m *memCounters) list(keep func(*models.UnreadCounter) bool) []models.UnreadCounter {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UnreadCounter
	for _, counter := range m.counters {
		if keep(counter) {
			out = append(out, *counter)
		}
	}
	return out
}

type memFoodLogs struct {
	mu   sync.Mutex
	logs map[string]models.FoodLog
	seq  int
}

func newMemFoodLogs(logs ...models.FoodLog) *memFoodLogs {
	m := &memFoodLogs{logs: make(map[string]models.FoodLog)}
	for _, log := range logs {
		m.logs[log.ID] = log
	}
	return m
}

func (m *memFoodLogs) Create(_ context.Context, log *models.FoodLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	log.CreatedAt = testTime.Add(time.Duration(m.seq) * time.Minute)
	log.UpdatedAt = log.CreatedAt
	m.logs[log.ID] = *log
	return nil
}

func (m *memFoodLogs) GetByID(_ context.Context, id string) (*models.FoodLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log, ok := m.logs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &log, nil
}

func (m *memFoodLogs) Update(_ context.Context, id, item, quantity string) (*models.FoodLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log, ok := m.logs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	log.Item = item
	log.Quantity = quantity
	m.logs[id] = log
	return &log, nil
}

func (m *memFoodLogs) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.logs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.logs, id)
	return nil
}

func (m *memFoodLogs) ListByClientAndDate(_ context.Context, clientEmail, date string) ([]models.FoodLog, error) {
	out := m.list(func(l models.FoodLog) bool { return l.ClientEmail == clientEmail && l.Date == date })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memFoodLogs) ListByClient(_ context.Context, clientEmail string) ([]models.FoodLog, error) {
	out := m.list(func(l models.FoodLog) bool { return l.ClientEmail == clientEmail })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memFoodLogs) list(keep func(models.FoodLog) bool) []models.FoodLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.FoodLog, 0)
	for _, log := range m.logs {
		if keep(log) {
			out = append(out, log)
		}
	}
	return out
}

const (
	ownerEmail  = "owner@example.com"
	coachEmail  = "coach@example.com"
	coach2Email = "coach2@example.com"
	clientEmail = "client@example.com"
	otherEmail  = "other@example.com"
)

var (
	ownerActor  = Actor{Email: ownerEmail, Role: models.RoleOwner}
	coachActor  = Actor{Email: coachEmail, Role: models.RoleCoach}
	coach2Actor = Actor{Email: coach2Email, Role: models.RoleCoach}
	clientActor = Actor{Email: clientEmail, Role: models.RoleClient}
	otherActor  = Actor{Email: otherEmail, Role: models.RoleClient}
)

// seededUsers is an owner, two coaches, a client assigned to coach and an
// unassigned client.
func seededUsers() *memUsers {
	return newMemUsers(
		models.User{Email: ownerEmail, Role: models.RoleOwner},
		models.User{Email: coachEmail, Role: models.RoleCoach, DisplayName: "Coach"},
		models.User{Email: coach2Email, Role: models.RoleCoach},
		models.User{Email: clientEmail, Role: models.RoleClient, CoachEmail: coachEmail, DisplayName: "Client"},
		models.User{Email: otherEmail, Role: models.RoleClient},
	)
}
