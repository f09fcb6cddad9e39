package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/CalibrateBack/internal/models"
)

type FoodLogRepository struct {
	db DBTX
}

func NewFoodLogRepository(db DBTX) *FoodLogRepository {
	return &FoodLogRepository{db: db}
}

const foodLogColumns = `id, client_email, meal, item, quantity, log_date, created_at, updated_at`

func scanFoodLog(row pgx.Row) (*models.FoodLog, error) {
	var log models.FoodLog
	err := row.Scan(
		&log.ID,
		&log.ClientEmail,
		&log.Meal,
		&log.Item,
		&log.Quantity,
		&log.Date,
		&log.CreatedAt,
		&log.UpdatedAt,
	)
	if err != nil {
		return nil, classify(err)
	}
	return &log, nil
}

func (r *FoodLogRepository) Create(ctx context.Context, log *models.FoodLog) error {
	query := `
		INSERT INTO food_logs (id, client_email, meal, item, quantity, log_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		log.ID,
		log.ClientEmail,
		log.Meal,
		log.Item,
		log.Quantity,
		log.Date,
	).Scan(&log.CreatedAt, &log.UpdatedAt)
	return classify(err)
}

func (r *FoodLogRepository) GetByID(ctx context.Context, id string) (*models.FoodLog, error) {
	query := `SELECT ` + foodLogColumns + ` FROM food_logs WHERE id = $1`
	return scanFoodLog(r.db.QueryRow(ctx, query, id))
}

func (r *FoodLogRepository) Update(ctx context.Context, id, item, quantity string) (*models.FoodLog, error) {
	query := `
		UPDATE food_logs
		SET item = $2, quantity = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + foodLogColumns
	return scanFoodLog(r.db.QueryRow(ctx, query, id, item, quantity))
}

func (r *FoodLogRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM food_logs WHERE id = $1`, id)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *FoodLogRepository) ListByClientAndDate(ctx context.Context, clientEmail, date string) ([]models.FoodLog, error) {
	return r.list(ctx, `
		SELECT `+foodLogColumns+`
		FROM food_logs
		WHERE client_email = $1 AND log_date = $2
		ORDER BY created_at ASC, id ASC
	`, clientEmail, date)
}

func (r *FoodLogRepository) ListByClient(ctx context.Context, clientEmail string) ([]models.FoodLog, error) {
	return r.list(ctx, `
		SELECT `+foodLogColumns+`
		FROM food_logs
		WHERE client_email = $1
		ORDER BY created_at DESC, id DESC
	`, clientEmail)
}

func (r *FoodLogRepository) list(ctx context.Context, query string, args ...any) ([]models.FoodLog, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	logs := make([]models.FoodLog, 0)
	for rows.Next() {
		log, err := scanFoodLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *log)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return logs, nil
}
