package services

import (
	"context"
	"errors"
	"testing"

	"github.com/saeid-a/CalibrateBack/internal/models"
)

func newNotificationFixture() (*NotificationService, *memUsers, *memCounters) {
	users := seededUsers()
	counters := users.track(newMemCounters())
	return NewNotificationService(users, counters, nil), users, counters
}

func TestNotificationClientMessageFlagsAssignedCoach(t *testing.T) {
	service, users, counters := newNotificationFixture()
	ctx := context.Background()
	client := users.get(clientEmail)

	if err := service.RecordMessage(ctx, &client, clientEmail); err != nil {
		t.Fatalf("RecordMessage: %v", err)
	}

	if got := counters.pair(clientEmail, coachEmail).ForCoach; got != 1 {
		t.Fatalf("expected coach counter 1, got %d", got)
	}
	if !users.get(coachEmail).HasUnreadMsg {
		t.Fatal("expected coach flag to be set")
	}
	if users.get(coach2Email).HasUnreadMsg {
		t.Fatal("expected unrelated coach flag to stay clear")
	}
	if users.get(clientEmail).HasUnreadMsg {
		t.Fatal("expected sender flag to stay clear")
	}

	inbox, err := service.ClientInbox(ctx, coachEmail)
	if err != nil {
		t.Fatalf("ClientInbox: %v", err)
	}
	if inbox[clientEmail] != 1 {
		t.Fatalf("expected inbox count 1, got %d", inbox[clientEmail])
	}
}

func TestNotificationCoachOpenClearsOnlyCoachSide(t *testing.T) {
	service, users, counters := newNotificationFixture()
	ctx := context.Background()
	client := users.get(clientEmail)

	if err := service.RecordMessage(ctx, &client, clientEmail); err != nil {
		t.Fatalf("RecordMessage client: %v", err)
	}
	if err := service.RecordMessage(ctx, &client, coachEmail); err != nil {
		t.Fatalf("RecordMessage coach: %v", err)
	}
	if err := service.MarkRead(ctx, &client, coachActor); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	pair := counters.pair(clientEmail, coachEmail)
	if pair.ForCoach != 0 {
		t.Fatalf("expected coach side cleared, got %d", pair.ForCoach)
	}
	if pair.ForClient != 1 {
		t.Fatalf("expected client side untouched, got %d", pair.ForClient)
	}
	if users.get(coachEmail).HasUnreadMsg {
		t.Fatal("expected coach flag cleared after opening the chat")
	}
	if !users.get(clientEmail).HasUnreadMsg {
		t.Fatal("expected client flag to remain set")
	}
}

func TestNotificationClientOpenClearsClientSide(t *testing.T) {
	service, users, counters := newNotificationFixture()
	ctx := context.Background()
	client := users.get(clientEmail)

	for _, sender := range []string{coachEmail, coach2Email, clientEmail} {
		if err := service.RecordMessage(ctx, &client, sender); err != nil {
			t.Fatalf("RecordMessage %s: %v", sender, err)
		}
	}

	count, err := service.UnreadForClient(ctx, clientEmail)
	if err != nil {
		t.Fatalf("UnreadForClient: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 unread for client, got %d", count)
	}

	if err := service.MarkRead(ctx, &client, clientActor); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if users.get(clientEmail).HasUnreadMsg {
		t.Fatal("expected client flag cleared")
	}
	if count, _ := service.UnreadForClient(ctx, clientEmail); count != 0 {
		t.Fatalf("expected 0 unread for client, got %d", count)
	}
	if got := counters.pair(clientEmail, coachEmail).ForCoach; got != 1 {
		t.Fatalf("expected coach side untouched, got %d", got)
	}
}

func TestNotificationUnassignedClientUsesTeamInbox(t *testing.T) {
	service, users, counters := newNotificationFixture()
	ctx := context.Background()
	other := users.get(otherEmail)

	if err := service.RecordMessage(ctx, &other, otherEmail); err != nil {
		t.Fatalf("RecordMessage: %v", err)
	}
	if got := counters.pair(otherEmail, models.TeamInbox).ForCoach; got != 1 {
		t.Fatalf("expected team counter 1, got %d", got)
	}
	for _, email := range []string{ownerEmail, coachEmail, coach2Email} {
		if !users.get(email).HasUnreadMsg {
			t.Fatalf("expected %s flagged for team inbox", email)
		}
	}

	if err := service.MarkRead(ctx, &other, coach2Actor); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	for _, email := range []string{ownerEmail, coachEmail, coach2Email} {
		if users.get(email).HasUnreadMsg {
			t.Fatalf("expected %s cleared once the team inbox was read", email)
		}
	}
}

func TestNotificationTeamReadKeepsOwnInboxFlag(t *testing.T) {
	service, users, _ := newNotificationFixture()
	ctx := context.Background()
	client := users.get(clientEmail)
	other := users.get(otherEmail)

	if err := service.RecordMessage(ctx, &client, clientEmail); err != nil {
		t.Fatalf("RecordMessage client: %v", err)
	}
	if err := service.RecordMessage(ctx, &other, otherEmail); err != nil {
		t.Fatalf("RecordMessage other: %v", err)
	}
	if err := service.MarkRead(ctx, &other, coach2Actor); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	if !users.get(coachEmail).HasUnreadMsg {
		t.Fatal("expected coach to keep the flag for an assigned client's message")
	}
	if users.get(coach2Email).HasUnreadMsg {
		t.Fatal("expected coach2 flag cleared")
	}
}

func TestNotificationMarkReadRejectsOtherClients(t *testing.T) {
	service, users, _ := newNotificationFixture()
	client := users.get(clientEmail)

	err := service.MarkRead(context.Background(), &client, otherActor)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestNotificationPropagatesStoreFailures(t *testing.T) {
	service, users, _ := newNotificationFixture()
	users.flagErr = errUnavailableStore
	client := users.get(clientEmail)

	err := service.RecordMessage(context.Background(), &client, coachEmail)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

// racingCounters runs onReset once, right after the first Reset lands and
// before the caller gets to update any flag.
type racingCounters struct {
	UnreadStore
	onReset func()
}

func (c *racingCounters) Reset(ctx context.Context, clientEmail string, coachEmails []string, side models.UnreadSide) error {
	if err := c.UnreadStore.Reset(ctx, clientEmail, coachEmails, side); err != nil {
		return err
	}
	if hook := c.onReset; hook != nil {
		c.onReset = nil
		hook()
	}
	return nil
}

func TestNotificationClientFlagSurvivesSendDuringRead(t *testing.T) {
	users := seededUsers()
	counters := users.track(newMemCounters())
	racing := &racingCounters{UnreadStore: counters}
	service := NewNotificationService(users, racing, nil)
	ctx := context.Background()
	client := users.get(clientEmail)

	if err := service.RecordMessage(ctx, &client, coachEmail); err != nil {
		t.Fatalf("RecordMessage: %v", err)
	}
	racing.onReset = func() {
		if err := service.RecordMessage(ctx, &client, coachEmail); err != nil {
			t.Errorf("RecordMessage during read: %v", err)
		}
	}
	if err := service.MarkRead(ctx, &client, clientActor); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	if got := counters.pair(clientEmail, coachEmail).ForClient; got != 1 {
		t.Fatalf("expected the late message to stay unread, got %d", got)
	}
	if !users.get(clientEmail).HasUnreadMsg {
		t.Fatal("expected client flag to match the unread counter")
	}
}

func TestNotificationStaffFlagSurvivesSendDuringRead(t *testing.T) {
	users := seededUsers()
	counters := users.track(newMemCounters())
	racing := &racingCounters{UnreadStore: counters}
	service := NewNotificationService(users, racing, nil)
	ctx := context.Background()
	other := users.get(otherEmail)

	if err := service.RecordMessage(ctx, &other, otherEmail); err != nil {
		t.Fatalf("RecordMessage: %v", err)
	}
	racing.onReset = func() {
		if err := service.RecordMessage(ctx, &other, otherEmail); err != nil {
			t.Errorf("RecordMessage during read: %v", err)
		}
	}
	if err := service.MarkRead(ctx, &other, coach2Actor); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	if got := counters.pair(otherEmail, models.TeamInbox).ForCoach; got != 1 {
		t.Fatalf("expected the late message to stay unread, got %d", got)
	}
	for _, email := range []string{ownerEmail, coachEmail, coach2Email} {
		if !users.get(email).HasUnreadMsg {
			t.Fatalf("expected %s flag to match the team inbox", email)
		}
	}
}

func TestNotificationMarkAndClearUnread(t *testing.T) {
	service, users, _ := newNotificationFixture()
	ctx := context.Background()

	if err := service.MarkUnread(ctx, coachEmail); err != nil {
		t.Fatalf("MarkUnread: %v", err)
	}
	if !users.get(coachEmail).HasUnreadMsg {
		t.Fatal("expected flag set")
	}
	if err := service.ClearUnread(ctx, coachEmail); err != nil {
		t.Fatalf("ClearUnread: %v", err)
	}
	if users.get(coachEmail).HasUnreadMsg {
		t.Fatal("expected flag cleared")
	}
	if err := service.MarkUnread(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
