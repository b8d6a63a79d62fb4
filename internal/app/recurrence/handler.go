// Package recurrence materializes the next occurrence of a recurring
// task when its current occurrence completes. The creation re-enters
// the event pipeline (it emits task.created), so the loop is guarded
// twice: a unique occurrence per chain and due timestamp, and a hard
// depth limit per chain.
package recurrence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nuid"
	"github.com/rs/zerolog"
	"github.com/taskwire/taskwire/internal/consumer"
	"github.com/taskwire/taskwire/internal/events"
)

// MaxDepth caps how many occurrences one chain may generate.
const MaxDepth = 1000

var ErrTaskNotFound = errors.New("task not found")

// TaskSnapshot is the slice of task state this consumer reads and
// copies forward into the next occurrence.
type TaskSnapshot struct {
	ID          string
	UserID      string
	Title       string
	Notes       string
	Priority    string
	Tags        []string
	DueAt       *time.Time
	Recurrence  *events.Recurrence
	ChainID     string
	Depth       int
	LeadMinutes int
}

type Store interface {
	GetTask(ctx context.Context, userID, taskID string) (TaskSnapshot, error)
	HasOccurrence(ctx context.Context, chainID string, dueAt time.Time) (bool, error)
	// CreateTask inserts the next occurrence; created=false means another
	// delivery won the occurrence slot first.
	CreateTask(ctx context.Context, task TaskSnapshot, now time.Time) (created bool, err error)
}

type Emitter interface {
	Emit(ctx context.Context, eventType, userID, subjectID string, payload any)
	EmitReminderIfNeeded(ctx context.Context, userID, taskID, title string, dueAt *time.Time, leadMinutes int)
}

type Handler struct {
	Store   Store
	Emitter Emitter
	Now     func() time.Time
	NewID   func() string
	Log     zerolog.Logger
}

func NewHandler(store Store, emitter Emitter, log zerolog.Logger) *Handler {
	return &Handler{
		Store:   store,
		Emitter: emitter,
		Now:     func() time.Time { return time.Now().UTC() },
		NewID:   nuid.Next,
		Log:     log.With().Str("handler", "recurrence").Logger(),
	}
}

func (h *Handler) Handle(ctx context.Context, env events.Envelope) consumer.Outcome {
	if env.EventType != events.TaskCompleted {
		return consumer.Ack
	}

	snap, err := h.Store.GetTask(ctx, env.UserID, env.SubjectID)
	if errors.Is(err, ErrTaskNotFound) {
		h.Log.Warn().Str("task_id", env.SubjectID).Msg("completed task no longer exists")
		return consumer.Ack
	}
	if err != nil {
		return consumer.Retry
	}

	rule := snap.Recurrence
	if rule == nil {
		var payload events.TaskPayload
		if json.Unmarshal(env.Payload, &payload) == nil {
			rule = payload.Recurrence
		}
	}
	if rule == nil {
		return consumer.Ack
	}
	if snap.Depth >= MaxDepth {
		h.Log.Warn().Str("task_id", snap.ID).Str("chain_id", snap.ChainID).
			Int("depth", snap.Depth).Msg("recurrence chain reached max depth")
		return consumer.Ack
	}

	base := h.Now()
	if snap.DueAt != nil {
		base = *snap.DueAt
	}
	next, err := NextDue(base, *rule)
	if err != nil {
		h.Log.Error().Err(err).Str("task_id", snap.ID).Str("event_id", env.EventID).
			Msg("recurrence schedule cannot be computed; dropping")
		return consumer.Ack
	}

	chain := snap.ChainID
	if chain == "" {
		chain = snap.ID
	}

	exists, err := h.Store.HasOccurrence(ctx, chain, next)
	if err != nil {
		return consumer.Retry
	}
	if exists {
		h.Log.Debug().Str("chain_id", chain).Time("due_at", next).
			Msg("next occurrence already exists")
		return consumer.Ack
	}

	nextTask := TaskSnapshot{
		ID:          h.NewID(),
		UserID:      snap.UserID,
		Title:       snap.Title,
		Notes:       snap.Notes,
		Priority:    snap.Priority,
		Tags:        snap.Tags,
		DueAt:       &next,
		Recurrence:  rule,
		ChainID:     chain,
		Depth:       snap.Depth + 1,
		LeadMinutes: snap.LeadMinutes,
	}
	created, err := h.Store.CreateTask(ctx, nextTask, h.Now())
	if err != nil {
		return consumer.Retry
	}
	if !created {
		return consumer.Ack
	}

	h.Log.Info().Str("task_id", nextTask.ID).Str("chain_id", chain).
		Int("depth", nextTask.Depth).Time("due_at", next).Msg("next occurrence created")

	h.Emitter.Emit(ctx, events.TaskCreated, snap.UserID, nextTask.ID, events.TaskPayload{
		TaskID:      nextTask.ID,
		Title:       nextTask.Title,
		Status:      "open",
		Priority:    nextTask.Priority,
		DueAt:       nextTask.DueAt,
		Recurrence:  nextTask.Recurrence,
		ChainID:     nextTask.ChainID,
		Depth:       nextTask.Depth,
		LeadMinutes: nextTask.LeadMinutes,
	})
	h.Emitter.EmitReminderIfNeeded(ctx, snap.UserID, nextTask.ID, nextTask.Title, nextTask.DueAt, nextTask.LeadMinutes)
	return consumer.Ack
}
