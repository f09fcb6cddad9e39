package mongostore

import (
	"context"

	"github.com/saeid-a/CalibrateBack/internal/models"
	"github.com/saeid-a/CalibrateBack/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FoodLogStore keeps logged meal entries.
type FoodLogStore struct {
	c *mongo.Collection
}

func NewFoodLogStore(db *mongo.Database) *FoodLogStore {
	return &FoodLogStore{c: db.Collection(foodLogsCollection)}
}

func (s *FoodLogStore) Create(ctx context.Context, log *models.FoodLog) error {
	ts := now()
	log.CreatedAt = ts
	log.UpdatedAt = ts
	_, err := s.c.InsertOne(ctx, log)
	return classify(err)
}

func (s *FoodLogStore) GetByID(ctx context.Context, id string) (*models.FoodLog, error) {
	var log models.FoodLog
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&log); err != nil {
		return nil, classify(err)
	}
	return &log, nil
}

func (s *FoodLogStore) Update(ctx context.Context, id, item, quantity string) (*models.FoodLog, error) {
	var log models.FoodLog
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"item": item, "quantity": quantity, "updated_at": now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&log)
	if err != nil {
		return nil, classify(err)
	}
	return &log, nil
}

func (s *FoodLogStore) Delete(ctx context.Context, id string) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return classify(err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *FoodLogStore) ListByClientAndDate(ctx context.Context, clientEmail, date string) ([]models.FoodLog, error) {
	return s.find(ctx, bson.M{"client_email": clientEmail, "date": date},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
}

func (s *FoodLogStore) ListByClient(ctx context.Context, clientEmail string) ([]models.FoodLog, error) {
	return s.find(ctx, bson.M{"client_email": clientEmail},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}))
}

func (s *FoodLogStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.FoodLog, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err)
	}
	defer cur.Close(ctx)

	logs := make([]models.FoodLog, 0)
	if err := cur.All(ctx, &logs); err != nil {
		return nil, classify(err)
	}
	return logs, nil
}
