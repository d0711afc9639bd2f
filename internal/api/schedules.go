package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loomworks/loom/internal/loom"
)

type createScheduleRequest struct {
	WorkflowID string         `json:"workflow_id"`
	CronExpr   string         `json:"cron_expr"`
	Input      map[string]any `json:"input"`
	Enabled    *bool          `json:"enabled"`
}

// createSchedule registers a cron schedule for a workflow.
// POST /api/schedules
func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("scheduler not available"))
		return
	}

	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.WorkflowID == "" || req.CronExpr == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("workflow_id and cron_expr are required"))
		return
	}

	// The workflow must exist before scheduling it.
	if _, err := s.workflows.Get(r.Context(), req.WorkflowID); err != nil {
		writeServiceError(w, err)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	rec, err := s.scheduler.Add(r.Context(), req.WorkflowID, req.CronExpr, req.Input, enabled)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// listSchedules returns all schedules.
// GET /api/schedules
func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	recs, err := s.scheduler.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if recs == nil {
		recs = []*loom.ScheduleRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// deleteSchedule removes a schedule.
// DELETE /api/schedules/{id}
func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("scheduler not available"))
		return
	}
	if err := s.scheduler.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
