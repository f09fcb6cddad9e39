package mongostore

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/saeid-a/CalibrateBack/internal/live"
	"github.com/saeid-a/CalibrateBack/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func change(op, coll, id string, doc any) changeEvent {
	var c changeEvent
	c.OperationType = op
	c.Namespace.Coll = coll
	c.DocumentKey.ID = id
	if doc != nil {
		raw, err := bson.Marshal(doc)
		if err != nil {
			panic(err)
		}
		c.FullDocument = raw
	}
	return c
}

func TestToEvent_InsertMessage(t *testing.T) {
	msg := models.Message{
		ID:          "m1",
		ClientEmail: "client@example.com",
		SenderEmail: "coach@example.com",
		Text:        "hello",
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	event, err := toEvent(change("insert", messagesCollection, "m1", msg))
	require.NoError(t, err)

	assert.Equal(t, live.OpAdded, event.Op)
	assert.Equal(t, live.CollectionMessages, event.Collection)
	assert.Equal(t, "client@example.com", event.Key)
	got, ok := event.Doc.(models.Message)
	require.True(t, ok)
	assert.Equal(t, "hello", got.Text)
}

func TestToEvent_UpdateFoodLog(t *testing.T) {
	log := models.FoodLog{ID: "f1", ClientEmail: "c@example.com", Meal: models.MealLunch, Item: "rice", Date: "2026-01-02"}

	event, err := toEvent(change("update", foodLogsCollection, "f1", log))
	require.NoError(t, err)

	assert.Equal(t, live.OpModified, event.Op)
	assert.Equal(t, "c@example.com", event.Key)
	assert.Equal(t, "rice", event.Doc.(models.FoodLog).Item)
}

func TestToEvent_DeleteHasNoKey(t *testing.T) {
	event, err := toEvent(change("delete", foodLogsCollection, "f1", nil))
	require.NoError(t, err)

	assert.Equal(t, live.OpRemoved, event.Op)
	assert.Equal(t, "f1", event.DocID)
	assert.Empty(t, event.Key)
}

func TestToEvent_UpdateWithoutDocument(t *testing.T) {
	_, err := toEvent(change("update", messagesCollection, "m1", nil))
	assert.Error(t, err)
}

func TestToEvent_UnknownOperation(t *testing.T) {
	_, err := toEvent(change("drop", messagesCollection, "", nil))
	assert.Error(t, err)
}

type recordingPublisher struct {
	events []live.Event
}

func (p *recordingPublisher) Publish(event live.Event) {
	p.events = append(p.events, event)
}

func TestResyncCoversBothCollections(t *testing.T) {
	out := &recordingPublisher{}
	resync(out)

	require.Len(t, out.events, 2)
	assert.Equal(t, live.Resync(live.CollectionMessages), out.events[0])
	assert.Equal(t, live.Resync(live.CollectionFoodLogs), out.events[1])
}

func TestHistoryLostMatchesServerCode(t *testing.T) {
	lost := mongo.CommandError{Code: changeStreamHistoryLost, Name: "ChangeStreamHistoryLost"}
	assert.True(t, historyLost(lost))
	assert.True(t, historyLost(fmt.Errorf("watch: %w", lost)))
	assert.False(t, historyLost(mongo.CommandError{Code: 11000}))
	assert.False(t, historyLost(errors.New("connection reset")))
}

func TestNotDeletedFilterMatchesLegacyMessages(t *testing.T) {
	filter := notDeletedFilter("c@example.com", "m1")
	assert.Equal(t, bson.M{"$ne": true}, filter["is_deleted"])
	assert.Equal(t, "m1", filter["_id"])
	assert.Equal(t, "c@example.com", filter["client_email"])
}
