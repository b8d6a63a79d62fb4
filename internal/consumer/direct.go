package consumer

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/taskwire/taskwire/internal/messaging"
	"github.com/taskwire/taskwire/internal/platform/natsutil"
)

// RunDirect starts one queue-subscribed consume loop per subscription on
// the given JetStream connection. The queue group is the service name,
// so scaled-out replicas share each topic. Undecodable payloads are
// terminated; everything else maps Ack to Ack and Retry to Nak.
//
// Deliveries within one subscription are dispatched sequentially by the
// NATS callback; subscriptions run independently of each other and of
// the inbound HTTP domain.
func (r *Runtime) RunDirect(ctx context.Context, client *natsutil.Client) error {
	for _, sub := range r.subs {
		subject, err := messaging.SubscribeSubject(sub.topic)
		if err != nil {
			return err
		}
		sub := sub
		_, err = client.JS.QueueSubscribe(subject, r.Name, func(msg *nats.Msg) {
			env, decErr := decodeEnvelope(msg.Data)
			if decErr != nil {
				r.Log.Warn().Err(decErr).Str("subject", msg.Subject).
					Msg("terminating undecodable envelope")
				_ = msg.Term()
				return
			}
			switch r.dispatch(ctx, sub, env) {
			case Ack:
				_ = msg.Ack()
			default:
				_ = msg.Nak()
			}
		}, nats.ManualAck())
		if err != nil {
			return err
		}
		r.Log.Info().Str("subject", subject).Str("topic", sub.topic).
			Msg("direct consume loop started")
	}
	return nil
}
