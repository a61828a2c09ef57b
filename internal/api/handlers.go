package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/SirClappington/wheelsched/internal/domain"
	"github.com/SirClappington/wheelsched/internal/scheduler"
)

// submitJobRequest is the wire form of a submission; runAt is unix millis.
type submitJobRequest struct {
	TenantID    string          `json:"tenantId"`
	Name        string          `json:"name"`
	RunAt       int64           `json:"runAt"`
	Payload     json.RawMessage `json:"payload"`
	MaxAttempts int             `json:"maxAttempts"`
	FailureRate *float64        `json:"failureRate"`
}

func (r submitJobRequest) toScheduler() scheduler.SubmitRequest {
	req := scheduler.SubmitRequest{
		TenantID:    r.TenantID,
		Name:        r.Name,
		Payload:     r.Payload,
		MaxAttempts: r.MaxAttempts,
		FailureRate: r.FailureRate,
	}
	if r.RunAt > 0 {
		req.RunAt = time.UnixMilli(r.RunAt)
	}
	return req
}

type heartbeatRequest struct {
	NodeID string `json:"nodeId"`
}

type seedRequest struct {
	Count int `json:"count"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	now := s.now()
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"uptime": now.Sub(s.startTime).Seconds(),
		"now":    now.UnixMilli(),
	})
}

func (s *Server) handleNodes(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.sched.Nodes())
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	res := s.sched.Heartbeat(req.NodeID)
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"nodeId":   res.NodeID,
		"leaderId": res.LeaderID,
	})
}

func (s *Server) handleShards(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"shards": s.sched.ShardLoad()})
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.TenantID != "" && !s.limiter.Allow(req.TenantID) {
		respondError(w, http.StatusTooManyRequests, "rate limit exceeded for tenant "+req.TenantID)
		return
	}

	job, err := s.sched.SubmitJob(req.toScheduler())
	if err != nil {
		s.respondSchedulerError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.sched.ListJobs(limit))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.sched.GetJob(chi.URLParam(r, "id"))
	if err != nil {
		s.respondSchedulerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.sched.ListExecutions(limit))
}

func (s *Server) handleQueues(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.sched.QueueStats())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.sched.Events(limit))
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	s.sched.Pause()
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "paused": s.sched.Paused()})
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	s.sched.Resume()
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "paused": s.sched.Paused()})
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	var req seedRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	if req.Count < 0 {
		respondError(w, http.StatusBadRequest, "count must not be negative")
		return
	}
	n := s.sched.SeedDemoJobs(req.Count)
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "jobs": n})
}

func (s *Server) respondSchedulerError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		details := make([]string, 0)
		for _, e := range verr.Errors() {
			details = append(details, e.Error())
		}
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":   verr.Error(),
			"details": details,
		})
	case errors.Is(err, domain.ErrJobNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeOptional decodes a JSON body into v, treating an empty body as {}.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	respondError(w, http.StatusBadRequest, "invalid request body")
	return false
}

func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
