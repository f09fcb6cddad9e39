package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/CalibrateBack/internal/models"
)

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `id, client_email, sender_email, text, is_deleted, created_at, updated_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var message models.Message
	err := row.Scan(
		&message.ID,
		&message.ClientEmail,
		&message.SenderEmail,
		&message.Text,
		&message.IsDeleted,
		&message.CreatedAt,
		&message.UpdatedAt,
	)
	if err != nil {
		return nil, classify(err)
	}
	return &message, nil
}

func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	query := `
		INSERT INTO messages (id, client_email, sender_email, text, is_deleted)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		message.ID,
		message.ClientEmail,
		message.SenderEmail,
		message.Text,
	).Scan(&message.CreatedAt, &message.UpdatedAt)
	return classify(err)
}

func (r *MessageRepository) GetByID(ctx context.Context, clientEmail, id string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1 AND client_email = $2`
	return scanMessage(r.db.QueryRow(ctx, query, id, clientEmail))
}

func (r *MessageRepository) ListByClient(ctx context.Context, clientEmail string) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE client_email = $1
		ORDER BY created_at ASC, id ASC
	`
	return r.list(ctx, query, clientEmail)
}

// ListPage returns the newest messages first, for the paginated history endpoint.
func (r *MessageRepository) ListPage(
	ctx context.Context,
	clientEmail string,
	limit int,
	offset int,
) ([]models.Message, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE client_email = $1
	`, clientEmail).Scan(&total); err != nil {
		return nil, 0, classify(err)
	}

	messages, err := r.list(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE client_email = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, clientEmail, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// SoftDelete tombstones a message. Deleting an already deleted message
// returns it unchanged.
func (r *MessageRepository) SoftDelete(ctx context.Context, clientEmail, id string) (*models.Message, error) {
	query := `
		UPDATE messages
		SET text = $3,
			is_deleted = TRUE,
			updated_at = CASE WHEN is_deleted THEN updated_at ELSE NOW() END
		WHERE id = $1 AND client_email = $2
		RETURNING ` + messageColumns
	return scanMessage(r.db.QueryRow(ctx, query, id, clientEmail, models.DeletedMessageText))
}

func (r *MessageRepository) list(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *message)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return messages, nil
}
