package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rzbill/funnel/internal/event"
	"github.com/rzbill/funnel/internal/journal"
	"github.com/rzbill/funnel/pkg/id"
	logpkg "github.com/rzbill/funnel/pkg/log"
)

func fixedBase(url string) BaseURLFunc { return func() string { return url } }

func TestSendPrintsReceipt(t *testing.T) {
	var gotPath string
	var gotBody sendBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"event_id":    "0000018c-test",
			"received_at": "2026-01-01T00:00:00Z",
		})
	}))
	defer srv.Close()

	cmd := NewSendCommand(fixedBase(srv.URL))
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"hello", "--header", "tenant=acme"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotPath != "/v1/events" {
		t.Fatalf("path: %s", gotPath)
	}
	if string(gotBody.Payload) != "hello" || gotBody.Headers["tenant"] != "acme" {
		t.Fatalf("body: %+v", gotBody)
	}
	if !strings.Contains(buf.String(), "0000018c-test") {
		t.Fatalf("output missing event id: %s", buf.String())
	}
}

func TestSendReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "queue full"})
	}))
	defer srv.Close()

	cmd := NewSendCommand(fixedBase(srv.URL))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"hello"})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "queue full") {
		t.Fatalf("expected rejection error, got %v", err)
	}
}

func TestSendBulkFromStdin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/events/bulk" {
			t.Errorf("path: %s", r.URL.Path)
		}
		var req struct {
			Events []sendBody `json:"events"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		accepted := make([]*receiptBody, len(req.Events))
		for i := range req.Events {
			accepted[i] = &receiptBody{EventID: "id"}
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accepted": accepted,
			"errors":   make([]string, len(req.Events)),
		})
	}))
	defer srv.Close()

	cmd := NewSendCommand(fixedBase(srv.URL))
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader("one\ntwo\n"))
	cmd.SetArgs([]string{"--bulk"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(buf.String(), "accepted 2 of 2") {
		t.Fatalf("output: %s", buf.String())
	}
}

func TestHealthCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	cmd := NewHealthCommand(fixedBase(srv.URL))
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(buf.String(), `"status": "ok"`) {
		t.Fatalf("output: %s", buf.String())
	}
}

func TestHealthCommandNotServing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cmd := NewHealthCommand(fixedBase(srv.URL))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for 503")
	}
}

func TestLostCommandListsJournal(t *testing.T) {
	dir := t.TempDir()
	quiet := logpkg.NewLogger(logpkg.WithLevel(logpkg.ErrorLevel), logpkg.WithOutput(logpkg.NullOutput{}))
	j, err := journal.Open(dir, quiet)
	if err != nil {
		t.Fatalf("journal open: %v", err)
	}
	gen := id.NewGenerator()
	ev := &event.Event{ID: gen.Next(), Payload: []byte(`{"k":"v"}`), ReceivedAt: time.Now()}
	batch := event.NewBatch([]*event.Event{ev}, true)
	if err := j.RecordLost(context.Background(), batch, event.OutcomeDeadlineExceeded); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	cmd := NewLostCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--data-dir", dir})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, ev.ID.String()) || !strings.Contains(out, "deadline_exceeded") {
		t.Fatalf("output: %s", out)
	}
}

func TestParseHeaders(t *testing.T) {
	h, err := parseHeaders([]string{"a=1", "b=two=2"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if h["a"] != "1" || h["b"] != "two=2" {
		t.Fatalf("parsed: %v", h)
	}
	if _, err := parseHeaders([]string{"noequals"}); err == nil {
		t.Fatalf("expected error for bad pair")
	}
	if h, _ := parseHeaders(nil); h != nil {
		t.Fatalf("nil input must return nil map")
	}
}
