package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSidecar_PublishURLAndBody(t *testing.T) {
	var gotPath string
	var gotBody []byte
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewSidecar(srv.URL, "task-pubsub", nil)
	body := []byte(`{"event_id":"evt-1"}`)
	if err := s.Publish(context.Background(), "task-events", "user-1", body); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if gotPath != "/v1.0/publish/task-pubsub/task-events" {
		t.Fatalf("posted to %q", gotPath)
	}
	if gotContentType != "application/json" {
		t.Fatalf("content type = %q", gotContentType)
	}
	if string(gotBody) != string(body) {
		t.Fatalf("body altered in transit: %q", gotBody)
	}
}

func TestSidecar_NonSuccessStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewSidecar(srv.URL, "task-pubsub", nil)
	err := s.Publish(context.Background(), "task-events", "user-1", []byte(`{}`))
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected *transport.Error, got %T", err)
	}
	if terr.Binding != "sidecar" || terr.Topic != "task-events" {
		t.Fatalf("error context: %+v", terr)
	}
}

func TestSidecar_UnreachableSidecarIsAnError(t *testing.T) {
	s := NewSidecar("http://127.0.0.1:1", "task-pubsub", nil)
	if err := s.Publish(context.Background(), "task-events", "user-1", []byte(`{}`)); err == nil {
		t.Fatal("expected a connection error")
	}
}

func TestSidecar_Subscriptions(t *testing.T) {
	subs := []Descriptor{{PubsubName: "task-pubsub", Topic: "reminders", Route: "/reminders"}}
	s := NewSidecar("http://localhost:3500", "task-pubsub", subs)
	got := s.Subscriptions()
	if len(got) != 1 || got[0] != subs[0] {
		t.Fatalf("subscriptions = %+v", got)
	}
}
