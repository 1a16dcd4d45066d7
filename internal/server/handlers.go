package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"advisor/internal/logging"
	"advisor/internal/store"
	"advisor/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.ServerError("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, errorResponse{Error: fmt.Sprintf(format, args...)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /analysis?limit=N
func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit %q", raw)
			return
		}
		limit = n
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	analyses, err := s.store.ListAnalyses(s.agentFrom(r), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list analyses")
		return
	}
	if analyses == nil {
		analyses = []*types.Analysis{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"analyses": analyses})
}

// GET /analysis/{id}
func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	analysis, err := s.store.GetAnalysis(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "analysis %s not found", id)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load analysis")
		return
	}

	actions, err := s.store.ListActions(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load actions")
		return
	}
	if actions == nil {
		actions = []*types.Recommendation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"analysis": analysis,
		"actions":  actions,
	})
}

// POST /analysis starts a run and acknowledges immediately; the run persists
// in the background and a failed run simply never produces an analysis.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	agentID := s.agentFrom(r)
	go func() {
		if _, err := s.runner.Run(context.Background(), agentID); err != nil {
			s.logger.Error("analysis run failed", zap.String("agent", agentID), zap.Error(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "processing"})
}

// GET /analysis/{id}/actions
func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetAnalysis(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "analysis %s not found", id)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load analysis")
		return
	}

	actions, err := s.store.ListActions(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load actions")
		return
	}
	if actions == nil {
		actions = []*types.Recommendation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"actions": actions})
}

// GET /action/{id}
func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	action, err := s.store.GetAction(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "action %s not found", id)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load action")
		return
	}
	writeJSON(w, http.StatusOK, action)
}

type decideRequest struct {
	Decisions []types.Decision `json:"decisions"`
}

// POST /actions/decide validates every verdict up front, then applies the
// batch. Decisions that fail internally appear in neither output list.
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Decisions) == 0 {
		writeError(w, http.StatusBadRequest, "decisions is required")
		return
	}
	for _, d := range req.Decisions {
		if d.ActionID == "" {
			writeError(w, http.StatusBadRequest, "actionId is required")
			return
		}
		if !d.Verdict.Valid() {
			writeError(w, http.StatusBadRequest, "invalid decision %q for action %s", d.Verdict, d.ActionID)
			return
		}
	}

	outcome := s.decider.Process(r.Context(), req.Decisions)
	writeJSON(w, http.StatusOK, outcome)
}
