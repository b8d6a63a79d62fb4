// Package transport carries envelopes between the write path and the
// consumer services. Two interchangeable bindings implement the same
// contract: a sidecar-mediated one (a co-located process owns the broker
// connection) and a direct one (this process owns a JetStream
// connection). One boolean selects the binding at process start; both
// ship byte-identical envelope bodies.
package transport

import (
	"context"
	"fmt"
)

// Descriptor declares one (topic, route) subscription of a consumer
// service. The sidecar queries these through the service's discovery
// endpoint; the direct binding consumes the topic itself.
type Descriptor struct {
	PubsubName string `json:"pubsubname"`
	Topic      string `json:"topic"`
	Route      string `json:"route"`
}

// Transport is the publish/subscribe contract shared by both bindings.
// Key is the owning identity; the direct binding uses it to pick the
// sharded subject, the sidecar binding ignores it.
type Transport interface {
	Name() string
	Publish(ctx context.Context, topic, key string, body []byte) error
	Subscriptions() []Descriptor
}

// Error wraps a broker-level publish failure. The emitter recovers from
// it locally; it never reaches the write-path caller.
type Error struct {
	Binding string
	Topic   string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s transport: publish to %q: %v", e.Binding, e.Topic, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
