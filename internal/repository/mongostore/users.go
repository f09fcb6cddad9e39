package mongostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/saeid-a/CalibrateBack/internal/models"
	"github.com/saeid-a/CalibrateBack/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserStore keeps user records keyed by email.
type UserStore struct {
	c        *mongo.Collection
	counters *mongo.Collection
}

func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{
		c:        db.Collection(usersCollection),
		counters: db.Collection(unreadCollection),
	}
}

const maxFlagSyncAttempts = 5

// Create validates and inserts a new record.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	user.Normalize()
	if err := user.Validate(); err != nil {
		return err
	}
	ts := now()
	user.CreatedAt = ts
	user.UpdatedAt = ts
	_, err := s.c.InsertOne(ctx, user)
	return classify(err)
}

// GetByEmail loads a record and fills defaults for fields older records lack.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": models.NormalizeEmail(email)}).Decode(&user); err != nil {
		return nil, classify(err)
	}
	user.Normalize()
	return &user, nil
}

func (s *UserStore) ListByRole(ctx context.Context, roles ...string) ([]models.User, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"role": bson.M{"$in": roles}},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, classify(err)
	}
	defer cur.Close(ctx)

	users := make([]models.User, 0)
	for cur.Next(ctx) {
		var user models.User
		if err := cur.Decode(&user); err != nil {
			return nil, err
		}
		user.Normalize()
		users = append(users, user)
	}
	return users, classify(cur.Err())
}

func (s *UserStore) UpdateDisplayName(ctx context.Context, email, displayName string) error {
	return s.setFields(ctx, bson.M{"_id": email}, bson.M{"display_name": displayName})
}

func (s *UserStore) SetUnreadFlag(ctx context.Context, email string, unread bool) error {
	return s.setFields(ctx, bson.M{"_id": email}, bson.M{"has_unread_msg": unread})
}

// SyncUnreadFlag derives has_unread_msg from the unread counters. Counters
// and users live in different collections, so after writing the flag the
// counters are read again and the flag rewritten until both agree. A counter
// change after the confirming read runs a sync of its own.
func (s *UserStore) SyncUnreadFlag(ctx context.Context, email string) (bool, error) {
	user, err := s.GetByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	filter := unreadFilter(user)
	unread, err := s.hasUnread(ctx, filter)
	if err != nil {
		return false, err
	}
	for attempt := 1; ; attempt++ {
		if err := s.setFields(ctx, bson.M{"_id": user.Email}, bson.M{"has_unread_msg": unread}); err != nil {
			return false, err
		}
		confirmed, err := s.hasUnread(ctx, filter)
		if err != nil {
			return false, err
		}
		if confirmed == unread {
			return unread, nil
		}
		if attempt == maxFlagSyncAttempts {
			return false, errors.Join(repository.ErrUnavailable,
				fmt.Errorf("unread flag for %s did not settle", user.Email))
		}
		unread = confirmed
	}
}

func unreadFilter(user *models.User) bson.M {
	if user.Role == models.RoleClient {
		return bson.M{"client_email": user.Email, "for_client": bson.M{"$gt": 0}}
	}
	return bson.M{
		"coach_email": bson.M{"$in": bson.A{user.Email, models.TeamInbox}},
		"for_coach":   bson.M{"$gt": 0},
	}
}

func (s *UserStore) hasUnread(ctx context.Context, filter bson.M) (bool, error) {
	n, err := s.counters.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, classify(err)
	}
	return n > 0, nil
}

// UpdatePhaseIfCurrent is a compare-and-set on current_phase. Records
// written before phases existed have no current_phase field and count as
// phase one.
func (s *UserStore) UpdatePhaseIfCurrent(
	ctx context.Context,
	email string,
	current int,
	next int,
	celebrate bool,
) (*models.User, error) {
	var phaseMatch any = current
	if current == models.MinPhase {
		phaseMatch = bson.M{"$in": bson.A{current, nil}}
	}
	filter := bson.M{"_id": email, "role": models.RoleClient, "current_phase": phaseMatch}
	update := bson.M{"$set": bson.M{
		"current_phase":       next,
		"celebrate_promotion": celebrate,
		"updated_at":          now(),
	}}

	var user models.User
	err := s.c.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if err != nil {
		return nil, classify(err)
	}
	user.Normalize()
	return &user, nil
}

func (s *UserStore) ClearCelebration(ctx context.Context, email string) error {
	return s.setFields(ctx, bson.M{"_id": email}, bson.M{"celebrate_promotion": false})
}

func (s *UserStore) AssignCoach(ctx context.Context, clientEmail, coachEmail string) error {
	filter := bson.M{"_id": clientEmail, "role": models.RoleClient}
	if coachEmail == "" {
		res, err := s.c.UpdateOne(ctx, filter, bson.M{
			"$unset": bson.M{"coach_email": ""},
			"$set":   bson.M{"updated_at": now()},
		})
		if err != nil {
			return classify(err)
		}
		if res.MatchedCount == 0 {
			return repository.ErrNotFound
		}
		return nil
	}
	return s.setFields(ctx, filter, bson.M{"coach_email": coachEmail})
}

func (s *UserStore) setFields(ctx context.Context, filter bson.M, fields bson.M) error {
	fields["updated_at"] = now()
	res, err := s.c.UpdateOne(ctx, filter, bson.M{"$set": fields})
	if err != nil {
		return classify(err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
