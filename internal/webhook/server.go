// internal/webhook/server.go
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jkpraja/genMJP/internal/gateway"
	"github.com/jkpraja/genMJP/internal/state"
	"github.com/jkpraja/genMJP/internal/types"
)

// TriggerFunc starts a manual run.
type TriggerFunc func(ctx context.Context) (*gateway.Run, error)

// Journal is the read side of the run journal.
type Journal interface {
	Tail(ctx context.Context, limit int) ([]*types.RunRecord, error)
	Get(ctx context.Context, id types.RunID) (*types.RunRecord, error)
}

// StatsFunc reports active and queued runs.
type StatsFunc func() (active, queued int64)

// Server exposes health, manual trigger and run history over HTTP.
type Server struct {
	trigger TriggerFunc
	journal Journal
	stats   StatsFunc
	mux     *http.ServeMux

	// WaitTimeout bounds POST /trigger?wait=1.
	WaitTimeout time.Duration
}

func NewServer(trigger TriggerFunc, journal Journal, stats StatsFunc) *Server {
	s := &Server{
		trigger:     trigger,
		journal:     journal,
		stats:       stats,
		mux:         http.NewServeMux(),
		WaitTimeout: 30 * time.Minute,
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /trigger", s.handleTrigger)
	s.mux.HandleFunc("GET /api/runs", s.handleRuns)
	s.mux.HandleFunc("GET /api/runs/{id}", s.handleRun)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.stats != nil {
		active, queued := s.stats()
		resp["active"] = active
		resp["queued"] = queued
	}
	writeJSON(w, http.StatusOK, resp)
}

// TriggerResponse is the body of POST /trigger.
type TriggerResponse struct {
	RunID  string           `json:"run_id"`
	Status string           `json:"status"`
	Error  string           `json:"error,omitempty"`
	Record *types.RunRecord `json:"record,omitempty"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	// The run outlives the request unless the caller waits for it.
	run, err := s.trigger(context.WithoutCancel(r.Context()))
	if err != nil {
		slog.Error("manual trigger failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	slog.Info("manual trigger queued", "run_id", string(run.ID), "remote", r.RemoteAddr)

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		writeJSON(w, http.StatusAccepted, TriggerResponse{RunID: string(run.ID), Status: string(gateway.RunStatusQueued)})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.WaitTimeout)
	defer cancel()
	select {
	case <-run.Done():
	case <-ctx.Done():
		writeJSON(w, http.StatusAccepted, TriggerResponse{RunID: string(run.ID), Status: "pending"})
		return
	}

	resp := TriggerResponse{RunID: string(run.ID), Status: string(run.Status), Record: run.Record}
	code := http.StatusOK
	if run.Error != nil {
		resp.Error = run.Error.Error()
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	recs, err := s.journal.Tail(r.Context(), limit)
	if err != nil {
		slog.Error("tail runs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Newest first.
	out := make([]*types.RunRecord, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		out = append(out, recs[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.journal.Get(r.Context(), types.RunID(r.PathValue("id")))
	if errors.Is(err, state.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		slog.Error("get run failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
