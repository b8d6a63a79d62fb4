// Package audit appends every pipeline event to an append-only trail.
// Unlike the other consumers it performs no dedupe: duplicate deliveries
// produce duplicate rows, which is acceptable because the trail is read
// as a trace, not as a ledger. Unknown event types are recorded as-is.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/taskwire/taskwire/internal/consumer"
	"github.com/taskwire/taskwire/internal/events"
)

// Record is one row of the trail: envelope metadata plus the raw payload.
type Record struct {
	EventID    string
	EventType  string
	UserID     string
	SubjectID  string
	OccurredAt time.Time
	Payload    []byte
}

type Store interface {
	Append(ctx context.Context, rec Record) error
}

type Handler struct {
	Store Store
	Log   zerolog.Logger
}

func NewHandler(store Store, log zerolog.Logger) *Handler {
	return &Handler{
		Store: store,
		Log:   log.With().Str("handler", "audit").Logger(),
	}
}

func (h *Handler) Handle(ctx context.Context, env events.Envelope) consumer.Outcome {
	err := h.Store.Append(ctx, Record{
		EventID:    env.EventID,
		EventType:  env.EventType,
		UserID:     env.UserID,
		SubjectID:  env.SubjectID,
		OccurredAt: env.OccurredAt,
		Payload:    env.Payload,
	})
	if err != nil {
		h.Log.Warn().Err(err).Str("event_id", env.EventID).Msg("audit append failed; requesting redelivery")
		return consumer.Retry
	}
	return consumer.Ack
}
