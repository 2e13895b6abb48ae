package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rzbill/funnel/internal/event"
)

// batchEnvelope is the JSON body posted to the downstream endpoint.
type batchEnvelope struct {
	BatchID  string          `json:"batch_id"`
	SealedAt time.Time       `json:"sealed_at"`
	Events   []eventEnvelope `json:"events"`
}

type eventEnvelope struct {
	ID         string            `json:"id"`
	Payload    []byte            `json:"payload"`
	Headers    map[string]string `json:"headers,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

// HTTPSink posts batches as JSON to a configured endpoint.
//
// Classification: network errors, 429, and 5xx are retryable; any other
// non-2xx status is fatal (the batch itself was rejected).
type HTTPSink struct {
	endpoint string
	client   *http.Client
}

// NewHTTP creates an HTTPSink. A zero timeout defaults to 10s per request.
func NewHTTP(endpoint string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Send implements Sink.
func (s *HTTPSink) Send(ctx context.Context, batch *event.Batch) error {
	env := batchEnvelope{
		BatchID:  batch.ID,
		SealedAt: batch.SealedAt,
		Events:   make([]eventEnvelope, 0, batch.Len()),
	}
	for _, ev := range batch.Events {
		env.Events = append(env.Events, eventEnvelope{
			ID:         ev.ID.String(),
			Payload:    ev.Payload,
			Headers:    ev.Headers,
			ReceivedAt: ev.ReceivedAt,
		})
	}
	body, err := json.Marshal(env)
	if err != nil {
		return Fatal("encode", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return Fatal("request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Funnel-Batch-Id", batch.ID)

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return Retryable("transport", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return Retryable("throttled", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return Retryable("unavailable", fmt.Errorf("status %d", resp.StatusCode))
	default:
		return Fatal("rejected", fmt.Errorf("status %d", resp.StatusCode))
	}
}

// Close implements Sink.
func (s *HTTPSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
