package audit

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createAuditTableSQL = `
CREATE TABLE IF NOT EXISTS audit_events (
  id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
  event_id text NOT NULL,
  event_type text NOT NULL,
  user_id text NOT NULL DEFAULT '',
  subject_id text NOT NULL DEFAULT '',
  occurred_at timestamptz,
  payload jsonb,
  recorded_at timestamptz NOT NULL DEFAULT now()
)`

const createAuditEventIndexSQL = `
CREATE INDEX IF NOT EXISTS audit_events_event_idx ON audit_events (event_id)`

// No uniqueness on event_id: the trail keeps every delivery.
const appendAuditSQL = `
INSERT INTO audit_events (event_id, event_type, user_id, subject_id, occurred_at, payload)
VALUES ($1, $2, $3, $4, $5, $6)`

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createAuditTableSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createAuditEventIndexSQL); err != nil {
		return err
	}
	return nil
}

func (r *PostgresRepository) Append(ctx context.Context, rec Record) error {
	var payload any
	if len(rec.Payload) > 0 {
		payload = rec.Payload
	}
	var occurredAt any
	if !rec.OccurredAt.IsZero() {
		occurredAt = rec.OccurredAt
	}
	_, err := r.Pool.Exec(ctx, appendAuditSQL,
		rec.EventID, rec.EventType, rec.UserID, rec.SubjectID, occurredAt, payload,
	)
	return err
}
