package recurrence

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taskwire/taskwire/internal/events"
)

const getTaskSQL = `
SELECT task_id, user_id, title, notes, priority, tags, due_at,
       recurrence_frequency, recurrence_expression, recurrence_chain_id, recurrence_depth,
       reminder_lead_minutes
FROM tasks
WHERE task_id = $1 AND user_id = $2 AND deleted_at IS NULL`

const hasOccurrenceSQL = `
SELECT EXISTS (
  SELECT 1 FROM tasks
  WHERE recurrence_chain_id = $1 AND due_at = $2 AND deleted_at IS NULL
)`

// The partial unique index on (recurrence_chain_id, due_at) turns
// concurrent duplicate deliveries into a no-op insert here.
const insertOccurrenceSQL = `
INSERT INTO tasks (
  task_id, user_id, title, notes, status, priority, tags, due_at,
  recurrence_frequency, recurrence_expression, recurrence_chain_id, recurrence_depth,
  reminder_lead_minutes, reminder_sent, created_at, updated_at
)
VALUES ($1, $2, $3, $4, 'open', $5, $6, $7, $8, $9, $10, $11, $12, false, $13, $13)
ON CONFLICT DO NOTHING`

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

func (r *PostgresRepository) GetTask(ctx context.Context, userID, taskID string) (TaskSnapshot, error) {
	var snap TaskSnapshot
	var freq, expr, chain *string
	err := r.Pool.QueryRow(ctx, getTaskSQL, taskID, userID).Scan(
		&snap.ID, &snap.UserID, &snap.Title, &snap.Notes, &snap.Priority, &snap.Tags,
		&snap.DueAt, &freq, &expr, &chain, &snap.Depth, &snap.LeadMinutes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return TaskSnapshot{}, ErrTaskNotFound
	}
	if err != nil {
		return TaskSnapshot{}, err
	}
	if freq != nil {
		snap.Recurrence = &events.Recurrence{Frequency: *freq}
		if expr != nil {
			snap.Recurrence.Expression = *expr
		}
	}
	if chain != nil {
		snap.ChainID = *chain
	}
	return snap, nil
}

func (r *PostgresRepository) HasOccurrence(ctx context.Context, chainID string, dueAt time.Time) (bool, error) {
	var exists bool
	err := r.Pool.QueryRow(ctx, hasOccurrenceSQL, chainID, dueAt).Scan(&exists)
	return exists, err
}

func (r *PostgresRepository) CreateTask(ctx context.Context, task TaskSnapshot, now time.Time) (bool, error) {
	var freq, expr *string
	if task.Recurrence != nil {
		freq = &task.Recurrence.Frequency
		if task.Recurrence.Expression != "" {
			expr = &task.Recurrence.Expression
		}
	}
	tag, err := r.Pool.Exec(ctx, insertOccurrenceSQL,
		task.ID, task.UserID, task.Title, task.Notes, task.Priority, task.Tags,
		task.DueAt, freq, expr, task.ChainID, task.Depth, task.LeadMinutes, now,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
