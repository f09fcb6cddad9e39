package mongostore

import (
	"context"
	"fmt"

	"github.com/saeid-a/CalibrateBack/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UnreadStore keeps one counter document per client/coach pair.
type UnreadStore struct {
	c *mongo.Collection
}

func NewUnreadStore(db *mongo.Database) *UnreadStore {
	return &UnreadStore{c: db.Collection(unreadCollection)}
}

func sideFields(side models.UnreadSide) (field, other string, err error) {
	switch side {
	case models.UnreadForClient:
		return "for_client", "for_coach", nil
	case models.UnreadForCoach:
		return "for_coach", "for_client", nil
	default:
		return "", "", fmt.Errorf("unknown unread side %q", side)
	}
}

// Increment uses $inc with upsert, which the server applies atomically.
func (s *UnreadStore) Increment(ctx context.Context, clientEmail, coachEmail string, side models.UnreadSide) error {
	field, other, err := sideFields(side)
	if err != nil {
		return err
	}
	_, err = s.c.UpdateOne(ctx,
		bson.M{"client_email": clientEmail, "coach_email": coachEmail},
		bson.M{
			"$inc":         bson.M{field: 1},
			"$set":         bson.M{"updated_at": now()},
			"$setOnInsert": bson.M{other: 0},
		},
		options.Update().SetUpsert(true),
	)
	return classify(err)
}

func (s *UnreadStore) Reset(ctx context.Context, clientEmail string, coachEmails []string, side models.UnreadSide) error {
	field, _, err := sideFields(side)
	if err != nil {
		return err
	}
	filter := bson.M{"client_email": clientEmail, field: bson.M{"$ne": 0}}
	if len(coachEmails) > 0 {
		filter["coach_email"] = bson.M{"$in": coachEmails}
	}
	_, err = s.c.UpdateMany(ctx, filter, bson.M{"$set": bson.M{field: 0, "updated_at": now()}})
	return classify(err)
}

func (s *UnreadStore) ListByClient(ctx context.Context, clientEmail string) ([]models.UnreadCounter, error) {
	return s.find(ctx, bson.M{"client_email": clientEmail},
		options.Find().SetSort(bson.D{{Key: "coach_email", Value: 1}}))
}

func (s *UnreadStore) ListByCoach(ctx context.Context, coachEmails []string) ([]models.UnreadCounter, error) {
	return s.find(ctx, bson.M{"coach_email": bson.M{"$in": coachEmails}},
		options.Find().SetSort(bson.D{{Key: "client_email", Value: 1}, {Key: "coach_email", Value: 1}}))
}

func (s *UnreadStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.UnreadCounter, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err)
	}
	defer cur.Close(ctx)

	counters := make([]models.UnreadCounter, 0)
	if err := cur.All(ctx, &counters); err != nil {
		return nil, classify(err)
	}
	return counters, nil
}
