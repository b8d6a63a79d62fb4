package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const sidecarClientTimeout = 5 * time.Second

// Sidecar publishes through a co-located pub/sub sidecar over local
// HTTP. The process never holds broker credentials; the sidecar owns the
// connection and delivers inbound envelopes by POSTing to the routes in
// Subscriptions.
type Sidecar struct {
	BaseURL    string
	PubsubName string
	Client     *http.Client
	subs       []Descriptor
}

func NewSidecar(baseURL, pubsubName string, subs []Descriptor) *Sidecar {
	return &Sidecar{
		BaseURL:    baseURL,
		PubsubName: pubsubName,
		Client:     &http.Client{Timeout: sidecarClientTimeout},
		subs:       subs,
	}
}

func (s *Sidecar) Name() string { return "sidecar" }

func (s *Sidecar) Publish(ctx context.Context, topic, _ string, body []byte) error {
	url := fmt.Sprintf("%s/v1.0/publish/%s/%s", s.BaseURL, s.PubsubName, topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &Error{Binding: s.Name(), Topic: topic, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return &Error{Binding: s.Name(), Topic: topic, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{
			Binding: s.Name(),
			Topic:   topic,
			Err:     fmt.Errorf("sidecar responded %d", resp.StatusCode),
		}
	}
	return nil
}

func (s *Sidecar) Subscriptions() []Descriptor {
	return s.subs
}
