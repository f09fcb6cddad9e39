//go:build integration

package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/saeid-a/CalibrateBack/internal/database"
	"github.com/saeid-a/CalibrateBack/internal/live"
	"github.com/saeid-a/CalibrateBack/internal/models"
	"github.com/saeid-a/CalibrateBack/internal/repository"
)

var dsn string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "password",
				"POSTGRES_DB":       "calibrate_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		panic(err)
	}
	dsn = fmt.Sprintf("postgres://postgres:password@%s:%s/calibrate_test?sslmode=disable", host, port.Port())

	if err := migrateUp(); err != nil {
		_ = container.Terminate(ctx)
		panic(err)
	}

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func migrateUp() error {
	path, err := filepath.Abs(filepath.Join("..", "..", "migrations"))
	if err != nil {
		return err
	}
	m, err := migrate.New("file://"+path, dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func connect(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pool, err := database.ConnectPostgres(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func createUser(t *testing.T, users *repository.UserRepository, email, role string) {
	t.Helper()
	require.NoError(t, users.Create(context.Background(), &models.User{Email: email, Role: role}))
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	users := repository.NewUserRepository(connect(t))

	createUser(t, users, "owner-u@example.com", models.RoleOwner)
	createUser(t, users, "client-u@example.com", models.RoleClient)

	err := users.Create(ctx, &models.User{Email: "client-u@example.com", Role: models.RoleClient})
	require.ErrorIs(t, err, repository.ErrDuplicate)

	_, err = users.GetByEmail(ctx, "missing@example.com")
	require.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, users.AssignCoach(ctx, "client-u@example.com", "owner-u@example.com"))
	require.NoError(t, users.UpdateDisplayName(ctx, "client-u@example.com", "Client U"))
	require.NoError(t, users.SetUnreadFlag(ctx, "client-u@example.com", true))

	client, err := users.GetByEmail(ctx, "client-u@example.com")
	require.NoError(t, err)
	assert.Equal(t, "owner-u@example.com", client.CoachEmail)
	assert.Equal(t, "Client U", client.DisplayName)
	assert.True(t, client.HasUnreadMsg)
	assert.Equal(t, models.MinPhase, client.CurrentPhase)

	promoted, err := users.UpdatePhaseIfCurrent(ctx, "client-u@example.com", 1, 2, true)
	require.NoError(t, err)
	assert.Equal(t, 2, promoted.CurrentPhase)
	assert.True(t, promoted.CelebratePromotion)

	_, err = users.UpdatePhaseIfCurrent(ctx, "client-u@example.com", 1, 2, true)
	require.ErrorIs(t, err, repository.ErrNotFound, "stale phase must not match")

	require.NoError(t, users.ClearCelebration(ctx, "client-u@example.com"))
	client, err = users.GetByEmail(ctx, "client-u@example.com")
	require.NoError(t, err)
	assert.False(t, client.CelebratePromotion)

	staff, err := users.ListByRole(ctx, models.RoleCoach, models.RoleOwner)
	require.NoError(t, err)
	emails := make([]string, 0, len(staff))
	for _, u := range staff {
		emails = append(emails, u.Email)
	}
	assert.Contains(t, emails, "owner-u@example.com")
	assert.NotContains(t, emails, "client-u@example.com")
}

func TestConcurrentPromotionsApplyOnce(t *testing.T) {
	ctx := context.Background()
	users := repository.NewUserRepository(connect(t))
	createUser(t, users, "race@example.com", models.RoleClient)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := users.UpdatePhaseIfCurrent(ctx, "race@example.com", 1, 2, true); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	client, err := users.GetByEmail(ctx, "race@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, client.CurrentPhase)
}

func TestMessageRepository(t *testing.T) {
	ctx := context.Background()
	pool := connect(t)
	users := repository.NewUserRepository(pool)
	messages := repository.NewMessageRepository(pool)
	createUser(t, users, "chat@example.com", models.RoleClient)

	var ids []string
	for i := 0; i < 3; i++ {
		id := uuid.Must(uuid.NewV7()).String()
		ids = append(ids, id)
		require.NoError(t, messages.Create(ctx, &models.Message{
			ID:          id,
			ClientEmail: "chat@example.com",
			SenderEmail: "chat@example.com",
			Text:        fmt.Sprintf("message %d", i),
		}))
	}

	all, err := messages.ListByClient(ctx, "chat@example.com")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "message 0", all[0].Text)

	page, total, err := messages.ListPage(ctx, "chat@example.com", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "message 2", page[0].Text)

	deleted, err := messages.SoftDelete(ctx, "chat@example.com", ids[1])
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, models.DeletedMessageText, deleted.Text)

	again, err := messages.SoftDelete(ctx, "chat@example.com", ids[1])
	require.NoError(t, err)
	assert.True(t, again.IsDeleted)

	_, err = messages.GetByID(ctx, "other@example.com", ids[0])
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUnreadRepositoryConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	pool := connect(t)
	users := repository.NewUserRepository(pool)
	unread := repository.NewUnreadRepository(pool)
	createUser(t, users, "busy@example.com", models.RoleClient)

	const sends = 50
	var wg sync.WaitGroup
	errs := make(chan error, sends)
	for i := 0; i < sends; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- unread.Increment(ctx, "busy@example.com", models.TeamInbox, models.UnreadForCoach)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	counters, err := unread.ListByCoach(ctx, []string{models.TeamInbox})
	require.NoError(t, err)
	var found *models.UnreadCounter
	for i := range counters {
		if counters[i].ClientEmail == "busy@example.com" {
			found = &counters[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, sends, found.ForCoach)
	assert.Equal(t, 0, found.ForClient)

	require.NoError(t, unread.Reset(ctx, "busy@example.com", []string{models.TeamInbox}, models.UnreadForCoach))
	counters, err = unread.ListByClient(ctx, "busy@example.com")
	require.NoError(t, err)
	require.Len(t, counters, 1)
	assert.Equal(t, 0, counters[0].ForCoach)
}

func TestUserRepositorySyncUnreadFlag(t *testing.T) {
	ctx := context.Background()
	pool := connect(t)
	users := repository.NewUserRepository(pool)
	unread := repository.NewUnreadRepository(pool)
	createUser(t, users, "sync-coach@example.com", models.RoleCoach)
	createUser(t, users, "sync-client@example.com", models.RoleClient)

	require.NoError(t, unread.Increment(ctx, "sync-client@example.com", "sync-coach@example.com", models.UnreadForClient))
	flag, err := users.SyncUnreadFlag(ctx, "sync-client@example.com")
	require.NoError(t, err)
	assert.True(t, flag)

	flag, err = users.SyncUnreadFlag(ctx, "sync-coach@example.com")
	require.NoError(t, err)
	assert.False(t, flag, "a client-side counter is not the coach's")

	require.NoError(t, unread.Increment(ctx, "sync-client@example.com", models.TeamInbox, models.UnreadForCoach))
	flag, err = users.SyncUnreadFlag(ctx, "sync-coach@example.com")
	require.NoError(t, err)
	assert.True(t, flag, "team inbox counts for every coach")

	require.NoError(t, unread.Reset(ctx, "sync-client@example.com", nil, models.UnreadForClient))
	flag, err = users.SyncUnreadFlag(ctx, "sync-client@example.com")
	require.NoError(t, err)
	assert.False(t, flag)

	client, err := users.GetByEmail(ctx, "sync-client@example.com")
	require.NoError(t, err)
	assert.False(t, client.HasUnreadMsg)

	_, err = users.SyncUnreadFlag(ctx, "missing@example.com")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUnreadFlagFollowsCountersUnderConcurrentSends(t *testing.T) {
	ctx := context.Background()
	pool := connect(t)
	users := repository.NewUserRepository(pool)
	unread := repository.NewUnreadRepository(pool)
	createUser(t, users, "reader@example.com", models.RoleClient)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, unread.Increment(ctx, "reader@example.com", "coach@example.com", models.UnreadForClient))
			_, err := users.SyncUnreadFlag(ctx, "reader@example.com")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, unread.Reset(ctx, "reader@example.com", nil, models.UnreadForClient))
			_, err := users.SyncUnreadFlag(ctx, "reader@example.com")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	counters, err := unread.ListByClient(ctx, "reader@example.com")
	require.NoError(t, err)
	pending := 0
	for _, counter := range counters {
		pending += counter.ForClient
	}
	client, err := users.GetByEmail(ctx, "reader@example.com")
	require.NoError(t, err)
	assert.Equal(t, pending > 0, client.HasUnreadMsg, "flag must match %d pending messages", pending)
}

func TestFoodLogRepository(t *testing.T) {
	ctx := context.Background()
	pool := connect(t)
	users := repository.NewUserRepository(pool)
	logs := repository.NewFoodLogRepository(pool)
	createUser(t, users, "eater@example.com", models.RoleClient)

	entry := &models.FoodLog{
		ID:          uuid.Must(uuid.NewV7()).String(),
		ClientEmail: "eater@example.com",
		Meal:        models.MealLunch,
		Item:        "Soup",
		Quantity:    "1 bowl",
		Date:        "2026-03-01",
	}
	require.NoError(t, logs.Create(ctx, entry))

	updated, err := logs.Update(ctx, entry.ID, "Stew", "2 bowls")
	require.NoError(t, err)
	assert.Equal(t, "Stew", updated.Item)

	day, err := logs.ListByClientAndDate(ctx, "eater@example.com", "2026-03-01")
	require.NoError(t, err)
	require.Len(t, day, 1)

	require.NoError(t, logs.Delete(ctx, entry.ID))
	require.ErrorIs(t, logs.Delete(ctx, entry.ID), repository.ErrNotFound)
}

type capturePublisher struct {
	events chan live.Event
}

func (p *capturePublisher) Publish(event live.Event) {
	p.events <- event
}

func TestChangeFeedPublishesInserts(t *testing.T) {
	pool := connect(t)
	users := repository.NewUserRepository(pool)
	messages := repository.NewMessageRepository(pool)
	createUser(t, users, "feed@example.com", models.RoleClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &capturePublisher{events: make(chan live.Event, 4)}
	go func() { _ = repository.NewChangeFeed(pool, zap.NewNop()).Run(ctx, out) }()

	id := uuid.Must(uuid.NewV7()).String()
	require.Eventually(t, func() bool {
		// The listener may not be attached yet; keep writing until it sees one.
		_ = messages.Create(ctx, &models.Message{
			ID:          uuid.Must(uuid.NewV7()).String(),
			ClientEmail: "feed@example.com",
			SenderEmail: "feed@example.com",
			Text:        "ping",
		})
		select {
		case event := <-out.events:
			return event.Collection == live.CollectionMessages && event.Key == "feed@example.com"
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 50*time.Millisecond)

	require.NoError(t, messages.Create(ctx, &models.Message{
		ID:          id,
		ClientEmail: "feed@example.com",
		SenderEmail: "feed@example.com",
		Text:        "hello",
	}))
	for {
		select {
		case event := <-out.events:
			if event.DocID != id {
				continue
			}
			assert.Equal(t, live.OpAdded, event.Op)
			message, ok := event.Doc.(models.Message)
			require.True(t, ok)
			assert.Equal(t, "hello", message.Text)
			return
		case <-time.After(5 * time.Second):
			t.Fatal("no change event for inserted message")
		}
	}
}

func TestChangeFeedResyncsAfterReconnect(t *testing.T) {
	pool := connect(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &capturePublisher{events: make(chan live.Event, 16)}
	go func() { _ = repository.NewChangeFeed(pool, zap.NewNop()).Run(ctx, out) }()

	listening := `
		SELECT COUNT(*) FROM pg_stat_activity
		WHERE query = 'LISTEN ` + repository.ChangeChannel + `' AND pid <> pg_backend_pid()`
	require.Eventually(t, func() bool {
		var n int
		return pool.QueryRow(ctx, listening).Scan(&n) == nil && n > 0
	}, 10*time.Second, 50*time.Millisecond)

	_, err := pool.Exec(ctx, `
		SELECT pg_terminate_backend(pid) FROM pg_stat_activity
		WHERE query = 'LISTEN `+repository.ChangeChannel+`' AND pid <> pg_backend_pid()`)
	require.NoError(t, err)

	resynced := map[string]bool{}
	deadline := time.After(15 * time.Second)
	for len(resynced) < 2 {
		select {
		case event := <-out.events:
			if event.Op == live.OpResync {
				assert.Empty(t, event.Key)
				resynced[event.Collection] = true
			}
		case <-deadline:
			t.Fatalf("no resync after reconnect, got %v", resynced)
		}
	}
	assert.True(t, resynced[live.CollectionMessages])
	assert.True(t, resynced[live.CollectionFoodLogs])
}
