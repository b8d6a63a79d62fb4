package reminder

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dueRemindersSQL = `
SELECT task_id, user_id, title, due_at, reminder_lead_minutes
FROM tasks
WHERE reminder_sent = false
  AND deleted_at IS NULL
  AND status = 'open'
  AND due_at IS NOT NULL
  AND reminder_lead_minutes > 0
  AND due_at - make_interval(mins => reminder_lead_minutes) <= $1
ORDER BY due_at`

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

func (r *PostgresRepository) DueReminders(ctx context.Context, now time.Time) ([]Due, error) {
	rows, err := r.Pool.Query(ctx, dueRemindersSQL, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Due
	for rows.Next() {
		var d Due
		if err := rows.Scan(&d.TaskID, &d.UserID, &d.Title, &d.DueAt, &d.LeadMinutes); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
