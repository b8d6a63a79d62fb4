package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/taskwire/taskwire/internal/sharding"
)

type fakeJetStream struct {
	subjects []string
	bodies   [][]byte
	err      error
}

func (f *fakeJetStream) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.subjects = append(f.subjects, subj)
	f.bodies = append(f.bodies, cp)
	return &nats.PubAck{Stream: "TASKS"}, nil
}

func TestDirect_PublishShardsByKey(t *testing.T) {
	js := &fakeJetStream{}
	d := &Direct{js: js}

	if err := d.Publish(context.Background(), "task-events", "user-1", []byte(`{}`)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(js.subjects) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(js.subjects))
	}
	want := sharding.Subject("app.task", "user-1")
	if js.subjects[0] != want {
		t.Fatalf("subject = %q, want %q", js.subjects[0], want)
	}
	if !strings.HasSuffix(js.subjects[0], ".user.user-1") {
		t.Fatalf("subject does not carry owner: %q", js.subjects[0])
	}
}

func TestDirect_UnknownTopic(t *testing.T) {
	d := &Direct{js: &fakeJetStream{}}
	err := d.Publish(context.Background(), "no-such-topic", "user-1", []byte(`{}`))
	if err == nil {
		t.Fatal("expected an error for an unknown topic")
	}
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected *transport.Error, got %T", err)
	}
}

func TestDirect_BrokerErrorIsWrapped(t *testing.T) {
	cause := errors.New("no responders")
	d := &Direct{js: &fakeJetStream{err: cause}}
	err := d.Publish(context.Background(), "reminders", "user-1", []byte(`{}`))
	if !errors.Is(err, cause) {
		t.Fatalf("error does not wrap cause: %v", err)
	}
}

// Both bindings must put the exact same bytes on the wire for a given
// envelope. The binding decides routing, never content.
func TestBindings_BodyIsByteIdentical(t *testing.T) {
	body := []byte(`{"event_id":"evt-1","event_type":"task.created","payload":{"task_id":"task-1"}}`)

	var sidecarBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sidecarBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sc := NewSidecar(srv.URL, "task-pubsub", nil)
	if err := sc.Publish(context.Background(), "task-events", "user-1", body); err != nil {
		t.Fatalf("sidecar publish: %v", err)
	}

	js := &fakeJetStream{}
	d := &Direct{js: js}
	if err := d.Publish(context.Background(), "task-events", "user-1", body); err != nil {
		t.Fatalf("direct publish: %v", err)
	}

	if string(sidecarBody) != string(body) || string(js.bodies[0]) != string(body) {
		t.Fatalf("bindings altered the body:\nsidecar: %s\ndirect:  %s", sidecarBody, js.bodies[0])
	}
}
