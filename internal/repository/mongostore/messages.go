package mongostore

import (
	"context"
	"errors"

	"github.com/saeid-a/CalibrateBack/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageStore keeps chat transcripts, one logical conversation per client.
type MessageStore struct {
	c *mongo.Collection
}

func NewMessageStore(db *mongo.Database) *MessageStore {
	return &MessageStore{c: db.Collection(messagesCollection)}
}

func (s *MessageStore) Create(ctx context.Context, message *models.Message) error {
	ts := now()
	message.CreatedAt = ts
	message.UpdatedAt = ts
	_, err := s.c.InsertOne(ctx, message)
	return classify(err)
}

func (s *MessageStore) GetByID(ctx context.Context, clientEmail, id string) (*models.Message, error) {
	var message models.Message
	if err := s.c.FindOne(ctx, bson.M{"_id": id, "client_email": clientEmail}).Decode(&message); err != nil {
		return nil, classify(err)
	}
	return &message, nil
}

func (s *MessageStore) ListByClient(ctx context.Context, clientEmail string) ([]models.Message, error) {
	return s.find(ctx, bson.M{"client_email": clientEmail},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
}

func (s *MessageStore) ListPage(ctx context.Context, clientEmail string, limit, offset int) ([]models.Message, int, error) {
	filter := bson.M{"client_email": clientEmail}
	total, err := s.c.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, classify(err)
	}
	messages, err := s.find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, 0, err
	}
	return messages, int(total), nil
}

// SoftDelete tombstones a message; an already deleted message is returned
// unchanged.
func (s *MessageStore) SoftDelete(ctx context.Context, clientEmail, id string) (*models.Message, error) {
	filter := notDeletedFilter(clientEmail, id)
	update := bson.M{"$set": bson.M{
		"text":       models.DeletedMessageText,
		"is_deleted": true,
		"updated_at": now(),
	}}

	var message models.Message
	err := s.c.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&message)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return s.GetByID(ctx, clientEmail, id)
	}
	if err != nil {
		return nil, classify(err)
	}
	return &message, nil
}

// notDeletedFilter matches a live message. Documents written before soft
// delete existed have no is_deleted field.
func notDeletedFilter(clientEmail, id string) bson.M {
	return bson.M{"_id": id, "client_email": clientEmail, "is_deleted": bson.M{"$ne": true}}
}

func (s *MessageStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Message, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err)
	}
	defer cur.Close(ctx)

	messages := make([]models.Message, 0)
	if err := cur.All(ctx, &messages); err != nil {
		return nil, classify(err)
	}
	return messages, nil
}
