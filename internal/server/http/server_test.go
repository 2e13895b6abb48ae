package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/funnel/internal/config"
	"github.com/rzbill/funnel/internal/runtime"
	logpkg "github.com/rzbill/funnel/pkg/log"
)

func testServer(t *testing.T) (*Server, *runtime.Runtime) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Sink.Kind = "devnull"
	cfg.Queue.Capacity = 4
	cfg.Batch.MaxWait = cfgpkg.Duration(50 * time.Millisecond)
	logger := logpkg.NewLogger(logpkg.WithLevel(logpkg.ErrorLevel), logpkg.WithOutput(logpkg.NullOutput{}))

	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	go rt.Run(context.Background())
	t.Cleanup(func() { _ = rt.Shutdown(time.Second) })
	return New(rt, logger), rt
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	return w
}

func TestSubmitAccepted(t *testing.T) {
	s, _ := testServer(t)
	w := do(t, s, http.MethodPost, "/v1/events", `{"payload":"aGVsbG8=","headers":{"tenant":"acme"}}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: %d body: %s", w.Code, w.Body.String())
	}
	var resp submitResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.EventID == "" || resp.ReceivedAt.IsZero() {
		t.Fatalf("incomplete receipt: %+v", resp)
	}
}

func TestSubmitRejectsBadBodies(t *testing.T) {
	s, _ := testServer(t)
	if w := do(t, s, http.MethodPost, "/v1/events", `{not json`); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/v1/events", `{"headers":{}}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty payload: %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/v1/events", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("method: %d", w.Code)
	}
}

func TestSubmitAfterShutdownIs503(t *testing.T) {
	s, rt := testServer(t)
	_ = rt.Shutdown(time.Second)
	w := do(t, s, http.MethodPost, "/v1/events", `{"payload":"eA=="}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status after shutdown: %d", w.Code)
	}
}

func TestBulkSubmit(t *testing.T) {
	s, _ := testServer(t)
	w := do(t, s, http.MethodPost, "/v1/events/bulk",
		`{"events":[{"payload":"YQ=="},{"payload":""},{"payload":"Yg=="}]}`)
	if w.Code != http.StatusMultiStatus {
		t.Fatalf("status: %d body: %s", w.Code, w.Body.String())
	}
	var resp bulkResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Accepted) != 3 {
		t.Fatalf("accepted slots: %d", len(resp.Accepted))
	}
	if resp.Accepted[0] == nil || resp.Accepted[2] == nil {
		t.Fatalf("valid events rejected: %+v", resp)
	}
	if resp.Accepted[1] != nil || resp.Errors[1] == "" {
		t.Fatalf("empty payload slipped through: %+v", resp)
	}
}

func TestHealthHandler(t *testing.T) {
	s, _ := testServer(t)
	w := do(t, s, http.MethodGet, "/v1/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("body: %s", w.Body.String())
	}
}

func TestHealthNotServingAfterShutdown(t *testing.T) {
	s, rt := testServer(t)
	_ = rt.Shutdown(time.Second)
	w := do(t, s, http.MethodGet, "/v1/healthz", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := testServer(t)
	do(t, s, http.MethodPost, "/v1/events", `{"payload":"eA=="}`)
	w := do(t, s, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "funnel_events_accepted_total") {
		t.Fatalf("metrics body missing counters: %.200s", w.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := testServer(t)
	w := do(t, s, http.MethodOptions, "/v1/events", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status: %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}
