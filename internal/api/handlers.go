package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edgarprofiles/engine/internal/aggregator"
)

// APIResponse is the envelope every handler responds with.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: failed to write JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{Success: false, Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// handleGetProfile serves GET /api/v1/profiles/{ticker}, accepting
// either a ticker or a raw CIK (spec §4.H "profiles are read by
// ticker or CIK").
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	cik, err := s.resolver.ResolveCIK(r.Context(), ticker)
	if err != nil {
		cik = ticker // fall back to treating the path segment as a raw CIK
	}

	doc, ok, err := s.profiles.GetProfile(cik)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no profile for "+ticker)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: doc})
}

// handleListProblematic serves GET /api/v1/profiles?max_grade=D,
// mirroring the Batch Controller's "retry all problematic" selection.
func (s *Server) handleListProblematic(w http.ResponseWriter, r *http.Request) {
	maxGrade := r.URL.Query().Get("max_grade")
	if maxGrade == "" {
		maxGrade = "A+"
	}

	docs, err := s.profiles.ListProfilesByQuality(gradeRank(maxGrade), gradeRank)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: docs})
}

func (s *Server) handleGetEdge(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	edge, ok, err := s.profiles.GetEdge(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no edge for "+key)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: edge})
}

func (s *Server) handleGetFailure(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	rec, ok, err := s.failures.GetFailure(ticker)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no failure recorded for "+ticker)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: rec})
}

func (s *Server) handleListFailures(w http.ResponseWriter, r *http.Request) {
	recs, err := s.failures.ListFailures()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: recs})
}

func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	if s.batch == nil {
		writeError(w, http.StatusServiceUnavailable, "batch controller not configured")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.batch.Status()})
}

func (s *Server) handleBatchAddTicker(w http.ResponseWriter, r *http.Request) {
	if s.batch == nil {
		writeError(w, http.StatusServiceUnavailable, "batch controller not configured")
		return
	}
	ticker := chi.URLParam(r, "ticker")
	force, _ := strconv.ParseBool(r.URL.Query().Get("force_refresh"))
	s.batch.AddTicker(ticker, aggregator.Options{ForceRefresh: force})
	writeJSON(w, http.StatusAccepted, APIResponse{Success: true, Data: map[string]string{"ticker": ticker, "status": "queued"}})
}

func (s *Server) handleBatchPause(w http.ResponseWriter, r *http.Request) {
	if s.batch == nil {
		writeError(w, http.StatusServiceUnavailable, "batch controller not configured")
		return
	}
	s.batch.Pause()
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]string{"status": "paused"}})
}

func (s *Server) handleBatchResume(w http.ResponseWriter, r *http.Request) {
	if s.batch == nil {
		writeError(w, http.StatusServiceUnavailable, "batch controller not configured")
		return
	}
	s.batch.Resume()
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]string{"status": "resumed"}})
}

func (s *Server) handleBatchCancel(w http.ResponseWriter, r *http.Request) {
	if s.batch == nil {
		writeError(w, http.StatusServiceUnavailable, "batch controller not configured")
		return
	}
	s.batch.Cancel()
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]string{"status": "cancelled"}})
}

func (s *Server) handleBatchRetryFailed(w http.ResponseWriter, r *http.Request) {
	if s.batch == nil {
		writeError(w, http.StatusServiceUnavailable, "batch controller not configured")
		return
	}
	n, err := s.batch.RetryFailed()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]int{"requeued": n}})
}

func (s *Server) handleBatchRetryProblematic(w http.ResponseWriter, r *http.Request) {
	if s.batch == nil {
		writeError(w, http.StatusServiceUnavailable, "batch controller not configured")
		return
	}
	maxGrade := r.URL.Query().Get("max_grade")
	if maxGrade == "" {
		maxGrade = "D"
	}
	n, err := s.batch.RetryProblematic(maxGrade)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]int{"requeued": n}})
}

// qualityGradeRank orders quality grades worst-to-best, matching
// internal/batch's selection semantics for the problematic-profiles
// query.
var qualityGradeRank = map[string]int{"F": 0, "D": 1, "C": 2, "B": 3, "A": 4, "A+": 5}

func gradeRank(grade string) int {
	if r, ok := qualityGradeRank[grade]; ok {
		return r
	}
	return -1
}
