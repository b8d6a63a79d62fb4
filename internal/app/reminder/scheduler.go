// Package reminder derives reminder-due notifications from task state.
// The scheduler only emits; it never marks a reminder sent. The
// notification consumer owns that flag, so consecutive check runs may
// re-emit the same reminder and rely on the consumer's dedupe.
package reminder

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/taskwire/taskwire/internal/events"
)

// Due is one task whose reminder window has opened.
type Due struct {
	TaskID      string
	UserID      string
	Title       string
	DueAt       time.Time
	LeadMinutes int
}

type Store interface {
	DueReminders(ctx context.Context, now time.Time) ([]Due, error)
}

type Emitter interface {
	Emit(ctx context.Context, eventType, userID, subjectID string, payload any)
}

type Scheduler struct {
	Store   Store
	Emitter Emitter
	Now     func() time.Time
	Log     zerolog.Logger
}

func NewScheduler(store Store, emitter Emitter, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		Store:   store,
		Emitter: emitter,
		Now:     func() time.Time { return time.Now().UTC() },
		Log:     log.With().Str("component", "reminder_scheduler").Logger(),
	}
}

// CheckDue scans for unsent reminders whose remind_at has passed and
// emits one reminder.due per hit. Invoked by the external cron trigger.
func (s *Scheduler) CheckDue(ctx context.Context) (int, error) {
	now := s.Now()
	due, err := s.Store.DueReminders(ctx, now)
	if err != nil {
		return 0, err
	}

	for _, d := range due {
		lead := time.Duration(d.LeadMinutes) * time.Minute
		s.Emitter.Emit(ctx, events.ReminderDue, d.UserID, d.TaskID, events.ReminderPayload{
			TaskID:      d.TaskID,
			Title:       d.Title,
			DueAt:       d.DueAt,
			LeadMinutes: d.LeadMinutes,
			RemindAt:    d.DueAt.Add(-lead),
		})
	}
	if len(due) > 0 {
		s.Log.Info().Int("count", len(due)).Msg("reminder events emitted")
	}
	return len(due), nil
}
