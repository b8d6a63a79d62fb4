package transport

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/taskwire/taskwire/internal/messaging"
	"github.com/taskwire/taskwire/internal/platform/natsutil"
)

type jetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Direct publishes straight to JetStream over a connection this process
// owns. Reconnect and backoff live in the NATS client options; callers
// see only publish success or a transport error.
type Direct struct {
	js   jetStreamPublisher
	subs []Descriptor
}

func NewDirect(client *natsutil.Client, subs []Descriptor) *Direct {
	return &Direct{js: client.JS, subs: subs}
}

func (d *Direct) Name() string { return "direct" }

func (d *Direct) Publish(ctx context.Context, topic, key string, body []byte) error {
	subject, err := messaging.PublishSubject(topic, key)
	if err != nil {
		return &Error{Binding: d.Name(), Topic: topic, Err: err}
	}
	if _, err := d.js.Publish(subject, body, nats.Context(ctx)); err != nil {
		return &Error{Binding: d.Name(), Topic: topic, Err: err}
	}
	return nil
}

func (d *Direct) Subscriptions() []Descriptor {
	return d.subs
}
