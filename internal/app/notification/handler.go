// Package notification delivers due reminders. The per-task sent flag
// is the idempotency state: a reminder is dispatched at most once, and
// a failed dispatch leaves the flag unset so redelivery retries the
// whole unit.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/taskwire/taskwire/internal/consumer"
	"github.com/taskwire/taskwire/internal/events"
)

var ErrTaskNotFound = errors.New("task not found")

type Store interface {
	ReminderSent(ctx context.Context, userID, taskID string) (bool, error)
	MarkReminderSent(ctx context.Context, userID, taskID string) error
}

type Handler struct {
	Store    Store
	Notifier Notifier
	Now      func() time.Time
	Log      zerolog.Logger
}

func NewHandler(store Store, notifier Notifier, log zerolog.Logger) *Handler {
	return &Handler{
		Store:    store,
		Notifier: notifier,
		Now:      func() time.Time { return time.Now().UTC() },
		Log:      log.With().Str("handler", "notification").Logger(),
	}
}

func (h *Handler) Handle(ctx context.Context, env events.Envelope) consumer.Outcome {
	if env.EventType != events.ReminderDue {
		return consumer.Ack
	}

	var payload events.ReminderPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		h.Log.Warn().Err(err).Str("event_id", env.EventID).Msg("dropping malformed reminder payload")
		return consumer.Ack
	}

	// Write-time emissions register intent with a future remind_at; the
	// periodic due-check re-emits once the moment has passed.
	if payload.RemindAt.After(h.Now()) {
		return consumer.Ack
	}

	sent, err := h.Store.ReminderSent(ctx, env.UserID, env.SubjectID)
	if errors.Is(err, ErrTaskNotFound) {
		h.Log.Warn().Str("task_id", env.SubjectID).Msg("reminder target no longer exists")
		return consumer.Ack
	}
	if err != nil {
		return consumer.Retry
	}
	if sent {
		h.Log.Debug().Str("task_id", env.SubjectID).Str("event_id", env.EventID).
			Msg("reminder already sent")
		return consumer.Ack
	}

	err = h.Notifier.Send(ctx, Notification{
		UserID: env.UserID,
		TaskID: payload.TaskID,
		Title:  payload.Title,
		DueAt:  payload.DueAt,
	})
	if err != nil {
		h.Log.Warn().Err(err).Str("task_id", env.SubjectID).
			Msg("notification dispatch failed; requesting redelivery")
		return consumer.Retry
	}

	if err := h.Store.MarkReminderSent(ctx, env.UserID, env.SubjectID); err != nil {
		return consumer.Retry
	}
	return consumer.Ack
}
