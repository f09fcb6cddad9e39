// Package mongostore is the MongoDB driver of the document store. Each
// collection has its own store type; the change stream in changes.go feeds
// live subscriptions.
package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/saeid-a/CalibrateBack/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection    = "users"
	messagesCollection = "messages"
	unreadCollection   = "unread_counters"
	foodLogsCollection = "food_logs"
)

// Connect opens a client and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// EnsureIndexes creates the indexes every store relies on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "role", Value: 1}}, Options: options.Index().SetName("idx_users_role")},
		},
		messagesCollection: {
			{
				Keys:    bson.D{{Key: "client_email", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
				Options: options.Index().SetName("idx_messages_client_created"),
			},
		},
		unreadCollection: {
			{
				Keys:    bson.D{{Key: "client_email", Value: 1}, {Key: "coach_email", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("idx_unread_pair"),
			},
			{Keys: bson.D{{Key: "coach_email", Value: 1}}, Options: options.Index().SetName("idx_unread_coach")},
		},
		foodLogsCollection: {
			{
				Keys:    bson.D{{Key: "client_email", Value: 1}, {Key: "date", Value: 1}},
				Options: options.Index().SetName("idx_food_logs_client_date"),
			},
		},
	}
	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return classify(err)
		}
	}
	return nil
}

// now returns the store timestamp. BSON dates keep milliseconds only, so the
// value is truncated to match what a later read returns.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return repository.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return errors.Join(repository.ErrDuplicate, err)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return errors.Join(repository.ErrUnavailable, err)
	default:
		return err
	}
}
