package consumer

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/taskwire/taskwire/internal/events"
	"github.com/taskwire/taskwire/internal/platform/metrics"
)

var errEmptyEnvelope = errors.New("envelope has no event_id or event_type")

// Receive-route statuses understood by the sidecar.
const (
	statusSuccess = "SUCCESS"
	statusRetry   = "RETRY"
	statusDrop    = "DROP"
)

// Router builds the HTTP surface the sidecar talks to: the discovery
// endpoint, one receive route per subscription, and liveness/readiness
// probes that are independent of event processing.
func (r *Runtime) Router() http.Handler {
	router := chi.NewRouter()

	router.Get("/dapr/subscribe", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, r.Descriptors())
	})

	for _, sub := range r.subs {
		router.Post(sub.route, r.receiveHandler(sub))
	}

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if r.Ready != nil {
			if err := r.Ready(req.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", metrics.DefaultHandler())

	return router
}

func (r *Runtime) receiveHandler(sub subscription) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": statusRetry})
			return
		}

		env, err := decodeEnvelope(body)
		if err != nil {
			r.Log.Warn().Err(err).Str("route", sub.route).Msg("dropping undecodable envelope")
			writeJSON(w, http.StatusOK, map[string]string{"status": statusDrop})
			return
		}

		switch r.dispatch(req.Context(), sub, env) {
		case Ack:
			writeJSON(w, http.StatusOK, map[string]string{"status": statusSuccess})
		default:
			writeJSON(w, http.StatusOK, map[string]string{"status": statusRetry})
		}
	}
}

// decodeEnvelope accepts both a bare envelope and the sidecar's
// CloudEvents wrapper, which carries the envelope under "data".
func decodeEnvelope(body []byte) (events.Envelope, error) {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && len(wrapper.Data) > 0 {
		body = wrapper.Data
	}

	var env events.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return events.Envelope{}, err
	}
	if env.EventID == "" && env.EventType == "" {
		return events.Envelope{}, errEmptyEnvelope
	}
	return env, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
