package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rzbill/funnel/internal/pipeline"
	"github.com/rzbill/funnel/internal/queue"
	"github.com/rzbill/funnel/internal/runtime"
	"github.com/rzbill/funnel/pkg/log"
)

// Server exposes the ingestion gate over HTTP.
type Server struct {
	rt     *runtime.Runtime
	srv    *http.Server
	lis    net.Listener
	logger log.Logger
}

func New(rt *runtime.Runtime, logger log.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		rt:     rt,
		srv:    &http.Server{Handler: cors(mux)},
		logger: logger.With(log.Component("http")),
	}
	mux.HandleFunc("/v1/events", s.handleSubmit)
	mux.HandleFunc("/v1/events/bulk", s.handleSubmitBulk)
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(rt.Registry(), promhttp.HandlerOpts{}))
	return s
}

// ListenAndServe serves until ctx is cancelled, then shuts the listener
// down. Draining the pipeline itself is the runtime's job.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("http server listening", log.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Addr returns the bound listen address, once serving.
func (s *Server) Addr() string {
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type submitReq struct {
	Payload []byte            `json:"payload"`
	Headers map[string]string `json:"headers"`
}

type submitResp struct {
	EventID    string    `json:"event_id"`
	ReceivedAt time.Time `json:"received_at"`
}

type errorResp struct {
	Error string `json:"error"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req submitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "malformed body"})
		return
	}
	if len(req.Payload) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "empty payload"})
		return
	}
	receipt, err := s.rt.Pipeline().Submit(r.Context(), req.Payload, req.Headers)
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResp{
		EventID:    receipt.EventID,
		ReceivedAt: receipt.ReceivedAt,
	})
}

type bulkReq struct {
	Events []submitReq `json:"events"`
}

type bulkResp struct {
	// Accepted holds receipts in request order, nil where the event was
	// rejected; Errors carries the matching reason.
	Accepted []*submitResp `json:"accepted"`
	Errors   []string      `json:"errors"`
}

func (s *Server) handleSubmitBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req bulkReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Events) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "malformed body"})
		return
	}
	resp := bulkResp{
		Accepted: make([]*submitResp, len(req.Events)),
		Errors:   make([]string, len(req.Events)),
	}
	status := http.StatusAccepted
	for i, ev := range req.Events {
		if len(ev.Payload) == 0 {
			resp.Errors[i] = "empty payload"
			status = http.StatusMultiStatus
			continue
		}
		receipt, err := s.rt.Pipeline().Submit(r.Context(), ev.Payload, ev.Headers)
		if err != nil {
			resp.Errors[i] = err.Error()
			status = http.StatusMultiStatus
			continue
		}
		resp.Accepted[i] = &submitResp{EventID: receipt.EventID, ReceivedAt: receipt.ReceivedAt}
	}
	writeJSON(w, status, resp)
}

// writeSubmitError maps gate rejections onto status codes: backpressure is
// 429, a draining pipeline is 503, a filtered payload is 422.
func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, queue.ErrFull):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusTooManyRequests, errorResp{Error: "queue full"})
	case errors.Is(err, queue.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Error: "shutting down"})
	case errors.Is(err, pipeline.ErrFiltered):
		writeJSON(w, http.StatusUnprocessableEntity, errorResp{Error: "filtered"})
	default:
		s.logger.Error("submit failed", log.Err(err))
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "internal"})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_serving",
			"reason": err.Error(),
		})
		return
	}
	st := s.rt.Pipeline().QueueStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"queue_depth":    st.Depth,
		"queue_capacity": st.Capacity,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
