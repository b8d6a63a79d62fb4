// Package consumer is the shared runtime for event consumer services.
// Each service registers one handler per subscribed topic; the runtime
// exposes the discovery and receive endpoints for the sidecar binding,
// runs the consume loops for the direct binding, and converts every
// handler failure into a retry verdict so the broker's redelivery policy
// governs recovery.
package consumer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/taskwire/taskwire/internal/events"
	"github.com/taskwire/taskwire/internal/platform/metrics"
	"github.com/taskwire/taskwire/internal/transport"
)

// Outcome is the delivery verdict a handler returns for one envelope.
type Outcome int

const (
	// Ack: processed, do not redeliver.
	Ack Outcome = iota
	// Retry: transient failure, redeliver later.
	Retry
)

func (o Outcome) String() string {
	if o == Ack {
		return "ack"
	}
	return "retry"
}

// Handler processes one envelope. Duplicate and out-of-order deliveries
// are expected; handlers own their idempotency checks.
type Handler func(ctx context.Context, env events.Envelope) Outcome

type subscription struct {
	topic   string
	route   string
	handler Handler
}

type Runtime struct {
	Name           string
	PubsubName     string
	HandlerTimeout time.Duration
	Log            zerolog.Logger

	// Ready gates the readiness endpoint; nil means always ready.
	Ready func(ctx context.Context) error

	subs []subscription
}

const defaultHandlerTimeout = 30 * time.Second

func New(name, pubsubName string, log zerolog.Logger) *Runtime {
	return &Runtime{
		Name:           name,
		PubsubName:     pubsubName,
		HandlerTimeout: defaultHandlerTimeout,
		Log:            log.With().Str("component", "consumer_runtime").Logger(),
	}
}

// Subscribe registers a handler for a topic. Route is the path the
// sidecar pushes envelopes to. Must be called before Router or RunDirect.
func (r *Runtime) Subscribe(topic, route string, h Handler) {
	r.subs = append(r.subs, subscription{topic: topic, route: route, handler: h})
}

// Descriptors returns the subscription set in registration order.
// Recomputed on every call, never persisted.
func (r *Runtime) Descriptors() []transport.Descriptor {
	out := make([]transport.Descriptor, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, transport.Descriptor{
			PubsubName: r.PubsubName,
			Topic:      sub.topic,
			Route:      sub.route,
		})
	}
	return out
}

// dispatch runs one envelope through the handler behind a supervisor
// boundary: panics and timeouts become Retry, never a crash. The handler
// runs on its own goroutine so a stuck handler cannot wedge delivery;
// it is abandoned after HandlerTimeout and the broker redelivers.
func (r *Runtime) dispatch(ctx context.Context, sub subscription, env events.Envelope) Outcome {
	ctx, cancel := context.WithTimeout(ctx, r.HandlerTimeout)
	defer cancel()

	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.Log.Error().Interface("panic", rec).
					Str("event_id", env.EventID).Str("event_type", env.EventType).
					Msg("handler panicked; requesting redelivery")
				done <- Retry
			}
		}()
		done <- sub.handler(ctx, env)
	}()

	var out Outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		r.Log.Warn().Str("event_id", env.EventID).Str("event_type", env.EventType).
			Dur("timeout", r.HandlerTimeout).Msg("handler timed out; requesting redelivery")
		out = Retry
	}
	metrics.HandlerOutcomes.WithLabelValues(r.Name, out.String()).Inc()
	return out
}
