package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	tberrors "git.home.luguber.info/inful/texbot/internal/errors"
	"git.home.luguber.info/inful/texbot/internal/eventstore"
	"git.home.luguber.info/inful/texbot/internal/logfields"
	"git.home.luguber.info/inful/texbot/internal/queue"
	"git.home.luguber.info/inful/texbot/internal/version"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// HealthResponse is the /healthz payload.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Version     string    `json:"version"`
	Uptime      float64   `json:"uptime"`
	QueueLength int       `json:"queue_length"`
	ActiveJobs  int       `json:"active_jobs"`
	Ledger      bool      `json:"ledger"`
}

// RequestListResponse is the /api/requests payload.
type RequestListResponse struct {
	Requests []*eventstore.RequestSummary `json:"requests"`
	Count    int                          `json:"count"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   version.Resolved(),
		Uptime:    time.Since(s.started).Seconds(),
		Ledger:    s.deps.Ledger != nil,
	}
	if s.deps.Queue != nil {
		health.QueueLength = s.deps.Queue.Length()
		health.ActiveJobs = s.deps.Queue.ActiveCount()
	}
	s.writeJSON(w, r, http.StatusOK, health)
}

// QueueResponse is the /api/queue payload. History is oldest first.
type QueueResponse struct {
	Length  int         `json:"length"`
	Active  []queue.Job `json:"active"`
	History []queue.Job `json:"history"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if s.deps.Queue == nil {
		s.errs.WriteErrorResponse(w, r, tberrors.NotFound("queue", "default"))
		return
	}
	s.writeJSON(w, r, http.StatusOK, QueueResponse{
		Length:  s.deps.Queue.Length(),
		Active:  s.deps.Queue.GetActiveJobs(),
		History: s.deps.Queue.History(),
	})
}

func (s *Server) handleQueueJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.deps.Queue == nil {
		s.errs.WriteErrorResponse(w, r, tberrors.NotFound("job", id))
		return
	}
	job, ok := s.deps.Queue.JobSnapshot(id)
	if !ok {
		s.errs.WriteErrorResponse(w, r, tberrors.NotFound("job", id))
		return
	}
	s.writeJSON(w, r, http.StatusOK, job)
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ledger == nil {
		s.errs.WriteErrorResponse(w, r, ledgerDisabled())
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.errs.WriteErrorResponse(w, r, tberrors.ValidationFailed("limit", "must be a positive integer"))
			return
		}
		limit = min(n, maxListLimit)
	}

	summaries, err := eventstore.ListRequests(r.Context(), s.deps.Ledger, limit)
	if err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []*eventstore.RequestSummary{}
	}
	s.writeJSON(w, r, http.StatusOK, RequestListResponse{Requests: summaries, Count: len(summaries)})
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ledger == nil {
		s.errs.WriteErrorResponse(w, r, ledgerDisabled())
		return
	}
	id := chi.URLParam(r, "id")
	summary, err := eventstore.GetRequest(r.Context(), s.deps.Ledger, id)
	if err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	if summary == nil {
		s.errs.WriteErrorResponse(w, r, tberrors.NotFound("request", id))
		return
	}
	s.writeJSON(w, r, http.StatusOK, summary)
}

func ledgerDisabled() error {
	return tberrors.New(tberrors.CategoryStorage, tberrors.SeverityInfo, "request history is disabled")
}

// writeJSON encodes into a buffer first so a failed encode never sends a partial body.
// ?pretty=1 indents the output.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if p := r.URL.Query().Get("pretty"); p == "1" || p == "true" {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		s.errs.WriteErrorResponse(w, r, tberrors.InternalError("failed to encode response", err))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.deps.Logger.Error("Failed writing JSON response body", logfields.Error(err))
	}
}
