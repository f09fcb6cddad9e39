package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/saeid-a/CalibrateBack/internal/live"
	"github.com/saeid-a/CalibrateBack/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const reconnectDelay = 2 * time.Second

// changeStreamHistoryLost is the server error for a resume token that has
// fallen off the oplog.
const changeStreamHistoryLost = 286

type publisher interface {
	Publish(event live.Event)
}

// changeEvent is the subset of a change stream document the feed reads.
type changeEvent struct {
	OperationType string   `bson:"operationType"`
	FullDocument  bson.Raw `bson:"fullDocument"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	Namespace struct {
		Coll string `bson:"coll"`
	} `bson:"ns"`
}

// ChangeStream watches the messages and food_logs collections. It needs a
// replica set; a standalone server rejects the watch call.
type ChangeStream struct {
	db     *mongo.Database
	log    *zap.Logger
	resume bson.Raw
}

func NewChangeStream(db *mongo.Database, log *zap.Logger) *ChangeStream {
	return &ChangeStream{db: db, log: log}
}

// Run watches until ctx is cancelled. After an interruption the stream
// resumes from the last seen token so no change is skipped. When there is no
// usable token the new stream starts from now and subscribers are told to
// resync instead.
func (s *ChangeStream) Run(ctx context.Context, out publisher) error {
	for reconnect := false; ; reconnect = true {
		err := s.watch(ctx, out, reconnect)
		if ctx.Err() != nil {
			return nil
		}
		if historyLost(err) {
			s.resume = nil
		}
		s.log.Warn("change stream interrupted, reconnecting", zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *ChangeStream) watch(ctx context.Context, out publisher, reconnect bool) error {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"ns.coll":       bson.M{"$in": bson.A{messagesCollection, foodLogsCollection}},
			"operationType": bson.M{"$in": bson.A{"insert", "update", "replace", "delete"}},
		}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	if s.resume != nil {
		opts.SetResumeAfter(s.resume)
	}

	stream, err := s.db.Watch(ctx, pipeline, opts)
	if err != nil {
		return classify(err)
	}
	defer stream.Close(context.Background())
	s.log.Info("watching store changes", zap.String("database", s.db.Name()))
	if reconnect && s.resume == nil {
		resync(out)
	}

	for stream.Next(ctx) {
		var change changeEvent
		if err := stream.Decode(&change); err != nil {
			s.log.Warn("skipping undecodable change", zap.Error(err))
			s.resume = stream.ResumeToken()
			continue
		}
		event, err := toEvent(change)
		if err != nil {
			s.log.Warn("skipping change",
				zap.String("collection", change.Namespace.Coll),
				zap.String("id", change.DocumentKey.ID),
				zap.Error(err))
		} else {
			out.Publish(event)
		}
		s.resume = stream.ResumeToken()
	}
	return stream.Err()
}

func resync(out publisher) {
	out.Publish(live.Resync(live.CollectionMessages))
	out.Publish(live.Resync(live.CollectionFoodLogs))
}

func historyLost(err error) bool {
	var serverErr mongo.ServerError
	return errors.As(err, &serverErr) && serverErr.HasErrorCode(changeStreamHistoryLost)
}

// toEvent converts a change document. Deletes carry only the document id, so
// their Key is empty and the hub fans them out to the whole collection.
func toEvent(change changeEvent) (live.Event, error) {
	event := live.Event{
		Collection: change.Namespace.Coll,
		DocID:      change.DocumentKey.ID,
	}
	switch change.OperationType {
	case "insert":
		event.Op = live.OpAdded
	case "update", "replace":
		event.Op = live.OpModified
	case "delete":
		event.Op = live.OpRemoved
		return event, nil
	default:
		return live.Event{}, fmt.Errorf("unsupported operation %q", change.OperationType)
	}
	if change.FullDocument == nil {
		// Updated and deleted before the lookup ran; the delete event follows.
		return live.Event{}, fmt.Errorf("document %s no longer exists", change.DocumentKey.ID)
	}

	switch change.Namespace.Coll {
	case messagesCollection:
		var message models.Message
		if err := bson.Unmarshal(change.FullDocument, &message); err != nil {
			return live.Event{}, err
		}
		event.Key = message.ClientEmail
		event.Doc = message
	case foodLogsCollection:
		var log models.FoodLog
		if err := bson.Unmarshal(change.FullDocument, &log); err != nil {
			return live.Event{}, err
		}
		event.Key = log.ClientEmail
		event.Doc = log
	default:
		return live.Event{}, fmt.Errorf("unknown collection %q", change.Namespace.Coll)
	}
	return event, nil
}
