package notification

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const reminderSentSQL = `
SELECT reminder_sent
FROM tasks
WHERE task_id = $1 AND user_id = $2 AND deleted_at IS NULL`

const markReminderSentSQL = `
UPDATE tasks
SET reminder_sent = true
WHERE task_id = $1 AND user_id = $2 AND deleted_at IS NULL`

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

func (r *PostgresRepository) ReminderSent(ctx context.Context, userID, taskID string) (bool, error) {
	var sent bool
	err := r.Pool.QueryRow(ctx, reminderSentSQL, taskID, userID).Scan(&sent)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrTaskNotFound
	}
	return sent, err
}

func (r *PostgresRepository) MarkReminderSent(ctx context.Context, userID, taskID string) error {
	tag, err := r.Pool.Exec(ctx, markReminderSentSQL, taskID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}
