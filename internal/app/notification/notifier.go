package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type Notification struct {
	UserID string
	TaskID string
	Title  string
	DueAt  time.Time
}

// Notifier is the external dispatch collaborator (push, email, ...).
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// LogNotifier writes deliveries to the structured log stream. It is the
// default channel until a real provider is wired in.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) Send(_ context.Context, msg Notification) error {
	n.Log.Info().
		Str("user_id", msg.UserID).
		Str("task_id", msg.TaskID).
		Str("title", msg.Title).
		Time("due_at", msg.DueAt).
		Msg("reminder delivered")
	return nil
}
