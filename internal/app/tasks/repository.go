package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taskwire/taskwire/internal/events"
)

const createTasksTableSQL = `
CREATE TABLE IF NOT EXISTS tasks (
  task_id text PRIMARY KEY,
  user_id text NOT NULL,
  title text NOT NULL,
  notes text NOT NULL DEFAULT '',
  status text NOT NULL DEFAULT 'open',
  priority text NOT NULL DEFAULT 'medium',
  tags text[] NOT NULL DEFAULT '{}',
  due_at timestamptz,
  recurrence_frequency text,
  recurrence_expression text,
  recurrence_chain_id text,
  recurrence_depth integer NOT NULL DEFAULT 0,
  reminder_lead_minutes integer NOT NULL DEFAULT 0,
  reminder_sent boolean NOT NULL DEFAULT false,
  created_at timestamptz NOT NULL,
  updated_at timestamptz NOT NULL,
  deleted_at timestamptz
)`

const createTasksUserIndexSQL = `
CREATE INDEX IF NOT EXISTS tasks_user_idx
ON tasks (user_id) WHERE deleted_at IS NULL`

// One occurrence per recurrence chain and due timestamp. This is the
// idempotency fence for the self-perpetuating recurrence loop.
const createChainOccurrenceIndexSQL = `
CREATE UNIQUE INDEX IF NOT EXISTS tasks_chain_occurrence_idx
ON tasks (recurrence_chain_id, due_at)
WHERE recurrence_chain_id IS NOT NULL AND deleted_at IS NULL`

const createReminderScanIndexSQL = `
CREATE INDEX IF NOT EXISTS tasks_reminder_idx
ON tasks (due_at)
WHERE reminder_sent = false AND deleted_at IS NULL`

const taskColumns = `
  task_id, user_id, title, notes, status, priority, tags, due_at,
  recurrence_frequency, recurrence_expression, recurrence_chain_id, recurrence_depth,
  reminder_lead_minutes, reminder_sent, created_at, updated_at`

const insertTaskSQL = `
INSERT INTO tasks (
  task_id, user_id, title, notes, status, priority, tags, due_at,
  recurrence_frequency, recurrence_expression, recurrence_chain_id, recurrence_depth,
  reminder_lead_minutes, reminder_sent, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

const getTaskSQL = `
SELECT ` + taskColumns + `
FROM tasks
WHERE task_id = $1 AND user_id = $2 AND deleted_at IS NULL`

const listTasksSQL = `
SELECT ` + taskColumns + `
FROM tasks
WHERE user_id = $1 AND deleted_at IS NULL
ORDER BY created_at DESC`

const updateTaskSQL = `
UPDATE tasks
SET title = $3, notes = $4, priority = $5, tags = $6, due_at = $7,
    recurrence_frequency = $8, recurrence_expression = $9, recurrence_chain_id = $10,
    reminder_lead_minutes = $11, reminder_sent = $12, updated_at = $13
WHERE task_id = $1 AND user_id = $2 AND deleted_at IS NULL`

const completeTaskSQL = `
UPDATE tasks
SET status = 'completed', updated_at = $3
WHERE task_id = $1 AND user_id = $2 AND deleted_at IS NULL
RETURNING ` + taskColumns

const deleteTaskSQL = `
UPDATE tasks
SET deleted_at = $3, updated_at = $3
WHERE task_id = $1 AND user_id = $2 AND deleted_at IS NULL
RETURNING ` + taskColumns

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{
		createTasksTableSQL,
		createTasksUserIndexSQL,
		createChainOccurrenceIndexSQL,
		createReminderScanIndexSQL,
	} {
		if _, err := r.Pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepository) Create(ctx context.Context, task Task) error {
	freq, expr, chain := recurrenceColumns(task.Recurrence, task.ChainID)
	_, err := r.Pool.Exec(ctx, insertTaskSQL,
		task.ID, task.UserID, task.Title, task.Notes, task.Status, task.Priority,
		task.Tags, task.DueAt, freq, expr, chain, task.Depth,
		task.LeadMinutes, task.Sent, task.CreatedAt, task.UpdatedAt,
	)
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, userID, taskID string) (Task, error) {
	return scanTask(r.Pool.QueryRow(ctx, getTaskSQL, taskID, userID))
}

func (r *PostgresRepository) List(ctx context.Context, userID string) ([]Task, error) {
	rows, err := r.Pool.Query(ctx, listTasksSQL, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Update(ctx context.Context, task Task) error {
	freq, expr, chain := recurrenceColumns(task.Recurrence, task.ChainID)
	tag, err := r.Pool.Exec(ctx, updateTaskSQL,
		task.ID, task.UserID, task.Title, task.Notes, task.Priority, task.Tags,
		task.DueAt, freq, expr, chain, task.LeadMinutes, task.Sent, task.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *PostgresRepository) Complete(ctx context.Context, userID, taskID string, at time.Time) (Task, error) {
	return scanTask(r.Pool.QueryRow(ctx, completeTaskSQL, taskID, userID, at))
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, taskID string, at time.Time) (Task, error) {
	return scanTask(r.Pool.QueryRow(ctx, deleteTaskSQL, taskID, userID, at))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var task Task
	var freq, expr, chain *string
	err := row.Scan(
		&task.ID, &task.UserID, &task.Title, &task.Notes, &task.Status, &task.Priority,
		&task.Tags, &task.DueAt, &freq, &expr, &chain, &task.Depth,
		&task.LeadMinutes, &task.Sent, &task.CreatedAt, &task.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, ErrTaskNotFound
	}
	if err != nil {
		return Task{}, err
	}
	if freq != nil {
		task.Recurrence = &events.Recurrence{Frequency: *freq}
		if expr != nil {
			task.Recurrence.Expression = *expr
		}
	}
	if chain != nil {
		task.ChainID = *chain
	}
	return task, nil
}

func recurrenceColumns(rule *events.Recurrence, chainID string) (freq, expr, chain *string) {
	if rule != nil {
		freq = &rule.Frequency
		if rule.Expression != "" {
			expr = &rule.Expression
		}
	}
	if chainID != "" {
		chain = &chainID
	}
	return freq, expr, chain
}
