package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nuid"
	"github.com/rs/zerolog"
	"github.com/taskwire/taskwire/internal/platform/metrics"
	"github.com/taskwire/taskwire/internal/transport"
)

const (
	defaultAttempts       = 3
	defaultBackoff        = 500 * time.Millisecond
	defaultPublishTimeout = 2 * time.Second
)

// Emitter publishes domain events after the triggering write has
// committed. Emit never fails the caller: every publish error is logged,
// counted and discarded. Callers must not invoke it before commit.
type Emitter struct {
	Transport transport.Transport
	Now       func() time.Time
	NewID     func() string
	Log       zerolog.Logger

	Attempts       int
	Backoff        time.Duration
	PublishTimeout time.Duration
	Sleep          func(time.Duration)
}

func NewEmitter(tr transport.Transport, log zerolog.Logger) *Emitter {
	return &Emitter{
		Transport:      tr,
		Now:            func() time.Time { return time.Now().UTC() },
		NewID:          nuid.Next,
		Log:            log.With().Str("component", "emitter").Logger(),
		Attempts:       defaultAttempts,
		Backoff:        defaultBackoff,
		PublishTimeout: defaultPublishTimeout,
		Sleep:          time.Sleep,
	}
}

// Emit constructs the envelope, resolves the topic and publishes,
// retrying transient failures with linear backoff. Fire-and-forget.
func (e *Emitter) Emit(ctx context.Context, eventType, userID, subjectID string, payload any) {
	topic, err := TopicFor(eventType)
	if err != nil {
		e.Log.Error().Err(err).Str("event_type", eventType).Str("subject_id", subjectID).
			Msg("event dropped: no topic for event type")
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		e.Log.Error().Err(err).Str("event_type", eventType).Str("subject_id", subjectID).
			Msg("event dropped: payload not marshalable")
		return
	}

	env := Envelope{
		EventID:       e.NewID(),
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		OccurredAt:    e.Now(),
		UserID:        userID,
		SubjectID:     subjectID,
		Payload:       raw,
	}
	body, err := json.Marshal(env)
	if err != nil {
		e.Log.Error().Err(err).Str("event_type", eventType).Str("subject_id", subjectID).
			Msg("event dropped: envelope not marshalable")
		return
	}

	e.publishWithRetry(ctx, topic, env, body)
}

func (e *Emitter) publishWithRetry(ctx context.Context, topic string, env Envelope, body []byte) {
	var lastErr error
	for attempt := 1; attempt <= e.Attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, e.PublishTimeout)
		lastErr = e.Transport.Publish(attemptCtx, topic, env.UserID, body)
		cancel()
		if lastErr == nil {
			metrics.EventsPublished.WithLabelValues(topic, e.Transport.Name()).Inc()
			e.Log.Debug().Str("event_type", env.EventType).Str("event_id", env.EventID).
				Str("topic", topic).Msg("event published")
			return
		}
		e.Log.Warn().Err(lastErr).Str("event_type", env.EventType).Str("subject_id", env.SubjectID).
			Int("attempt", attempt).Int("max_attempts", e.Attempts).Msg("event publish attempt failed")
		if attempt < e.Attempts {
			e.Sleep(e.Backoff * time.Duration(attempt))
		}
	}

	metrics.EventPublishFailures.WithLabelValues(topic, e.Transport.Name()).Inc()
	e.Log.Error().Err(lastErr).Str("event_type", env.EventType).Str("event_id", env.EventID).
		Str("subject_id", env.SubjectID).Str("topic", topic).
		Msg("event dropped after exhausting publish retries")
}

// EmitReminderIfNeeded registers reminder intent for a task. It is a
// no-op unless both a due timestamp and a positive lead time are present.
// The envelope carries the computed remind_at; actually firing at that
// moment is the periodic due-check's job.
func (e *Emitter) EmitReminderIfNeeded(ctx context.Context, userID, taskID, title string, dueAt *time.Time, leadMinutes int) {
	if dueAt == nil || leadMinutes <= 0 {
		return
	}
	lead := time.Duration(leadMinutes) * time.Minute
	e.Emit(ctx, ReminderDue, userID, taskID, ReminderPayload{
		TaskID:      taskID,
		Title:       title,
		DueAt:       *dueAt,
		LeadMinutes: leadMinutes,
		RemindAt:    dueAt.Add(-lead),
	})
}
