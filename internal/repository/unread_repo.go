package repository

import (
	"context"
	"fmt"

	"github.com/saeid-a/CalibrateBack/internal/models"
)

type UnreadRepository struct {
	db DBTX
}

func NewUnreadRepository(db DBTX) *UnreadRepository {
	return &UnreadRepository{db: db}
}

func sideColumn(side models.UnreadSide) (string, error) {
	switch side {
	case models.UnreadForClient:
		return "for_client", nil
	case models.UnreadForCoach:
		return "for_coach", nil
	default:
		return "", fmt.Errorf("unknown unread side %q", side)
	}
}

// Increment bumps one side of a pair's counter in a single upsert, so
// concurrent senders never lose an increment.
func (r *UnreadRepository) Increment(ctx context.Context, clientEmail, coachEmail string, side models.UnreadSide) error {
	column, err := sideColumn(side)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO unread_counters (client_email, coach_email, %[1]s)
		VALUES ($1, $2, 1)
		ON CONFLICT (client_email, coach_email)
		DO UPDATE SET %[1]s = unread_counters.%[1]s + 1, updated_at = NOW()
	`, column)
	_, err = r.db.Exec(ctx, query, clientEmail, coachEmail)
	return classify(err)
}

// Reset zeroes one side of the client's counters. An empty coachEmails
// resets every pair of the client.
func (r *UnreadRepository) Reset(ctx context.Context, clientEmail string, coachEmails []string, side models.UnreadSide) error {
	column, err := sideColumn(side)
	if err != nil {
		return err
	}
	if len(coachEmails) == 0 {
		_, err = r.db.Exec(ctx, fmt.Sprintf(`
			UPDATE unread_counters
			SET %[1]s = 0, updated_at = NOW()
			WHERE client_email = $1 AND %[1]s <> 0
		`, column), clientEmail)
		return classify(err)
	}
	_, err = r.db.Exec(ctx, fmt.Sprintf(`
		UPDATE unread_counters
		SET %[1]s = 0, updated_at = NOW()
		WHERE client_email = $1 AND coach_email = ANY($2) AND %[1]s <> 0
	`, column), clientEmail, coachEmails)
	return classify(err)
}

func (r *UnreadRepository) ListByClient(ctx context.Context, clientEmail string) ([]models.UnreadCounter, error) {
	return r.list(ctx, `
		SELECT client_email, coach_email, for_client, for_coach, updated_at
		FROM unread_counters
		WHERE client_email = $1
		ORDER BY coach_email
	`, clientEmail)
}

func (r *UnreadRepository) ListByCoach(ctx context.Context, coachEmails []string) ([]models.UnreadCounter, error) {
	return r.list(ctx, `
		SELECT client_email, coach_email, for_client, for_coach, updated_at
		FROM unread_counters
		WHERE coach_email = ANY($1)
		ORDER BY client_email, coach_email
	`, coachEmails)
}

func (r *UnreadRepository) list(ctx context.Context, query string, args ...any) ([]models.UnreadCounter, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	counters := make([]models.UnreadCounter, 0)
	for rows.Next() {
		var c models.UnreadCounter
		if err := rows.Scan(&c.ClientEmail, &c.CoachEmail, &c.ForClient, &c.ForCoach, &c.UpdatedAt); err != nil {
			return nil, classify(err)
		}
		counters = append(counters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return counters, nil
}
