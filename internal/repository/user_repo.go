package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/saeid-a/CalibrateBack/internal/models"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `email, display_name, role, COALESCE(coach_email, ''), current_phase,
	has_unread_msg, celebrate_promotion, schema_version, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.Email,
		&user.DisplayName,
		&user.Role,
		&user.CoachEmail,
		&user.CurrentPhase,
		&user.HasUnreadMsg,
		&user.CelebratePromotion,
		&user.SchemaVersion,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, classify(err)
	}
	user.Normalize()
	return &user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	user.Normalize()
	if err := user.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO users (email, display_name, role, coach_email, current_phase, schema_version)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		user.Email,
		user.DisplayName,
		user.Role,
		user.CoachEmail,
		user.CurrentPhase,
		user.SchemaVersion,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	return classify(err)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRow(ctx, query, models.NormalizeEmail(email)))
}

func (r *UserRepository) ListByRole(ctx context.Context, roles ...string) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = ANY($1) ORDER BY email`

	rows, err := r.db.Query(ctx, query, roles)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return users, nil
}

func (r *UserRepository) UpdateDisplayName(ctx context.Context, email, displayName string) error {
	return r.execOne(ctx, `
		UPDATE users
		SET display_name = $2, updated_at = NOW()
		WHERE email = $1
	`, email, displayName)
}

func (r *UserRepository) SetUnreadFlag(ctx context.Context, email string, unread bool) error {
	return r.execOne(ctx, `
		UPDATE users
		SET has_unread_msg = $2, updated_at = NOW()
		WHERE email = $1
	`, email, unread)
}

// SyncUnreadFlag derives has_unread_msg from the unread counters: a client
// has unread staff messages, a coach or owner has unread client messages in
// their own or the team inbox. The user row is locked first so that the
// update reads every counter write committed before the lock was granted.
func (r *UserRepository) SyncUnreadFlag(ctx context.Context, email string) (bool, error) {
	var unread bool
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var role string
		if err := tx.QueryRow(ctx, `SELECT role FROM users WHERE email = $1 FOR NO KEY UPDATE`, email).Scan(&role); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			UPDATE users u
			SET has_unread_msg = CASE
					WHEN u.role = 'client' THEN EXISTS (
						SELECT 1 FROM unread_counters c
						WHERE c.client_email = u.email AND c.for_client > 0)
					ELSE EXISTS (
						SELECT 1 FROM unread_counters c
						WHERE c.coach_email IN (u.email, $2) AND c.for_coach > 0)
				END,
				updated_at = NOW()
			WHERE u.email = $1
			RETURNING u.has_unread_msg
		`, email, models.TeamInbox).Scan(&unread)
	})
	if err != nil {
		return false, classify(err)
	}
	return unread, nil
}

// UpdatePhaseIfCurrent moves a client from one phase to another only if the
// stored phase still equals current. ErrNotFound means the record is missing
// or the phase moved underneath the caller.
func (r *UserRepository) UpdatePhaseIfCurrent(
	ctx context.Context,
	email string,
	current int,
	next int,
	celebrate bool,
) (*models.User, error) {
	query := `
		UPDATE users
		SET current_phase = $3, celebrate_promotion = $4, updated_at = NOW()
		WHERE email = $1 AND role = 'client' AND current_phase = $2
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, query, email, current, next, celebrate))
}

func (r *UserRepository) ClearCelebration(ctx context.Context, email string) error {
	return r.execOne(ctx, `
		UPDATE users
		SET celebrate_promotion = FALSE, updated_at = NOW()
		WHERE email = $1
	`, email)
}

func (r *UserRepository) AssignCoach(ctx context.Context, clientEmail, coachEmail string) error {
	return r.execOne(ctx, `
		UPDATE users
		SET coach_email = NULLIF($2, ''), updated_at = NOW()
		WHERE email = $1 AND role = 'client'
	`, clientEmail, coachEmail)
}

func (r *UserRepository) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
