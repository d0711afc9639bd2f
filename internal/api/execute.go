package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loomworks/loom/internal/loom"
)

type executeRequest struct {
	Input map[string]any `json:"input"`
}

// executeWorkflow runs a stored workflow synchronously. A completed run
// answers 200; a failed or timed-out run answers 422 with the partial
// result so callers can inspect what did complete.
// POST /api/workflows/{id}/execute
func (s *Server) executeWorkflow(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	result, err := s.executions.Execute(r.Context(), chi.URLParam(r, "id"), userID(r), req.Input)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if result.Status != loom.RunCompleted {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

// executeWorkflowStream runs a stored workflow and streams its engine
// events as SSE frames while it executes. Each event frame carries the
// engine event as JSON; a final "done" frame carries the RunResult.
// Closing the connection cancels the run.
// POST /api/workflows/{id}/execute/stream
func (s *Server) executeWorkflowStream(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming not supported"))
		return
	}

	events, result, err := s.executions.ExecuteStream(r.Context(), chi.URLParam(r, "id"), userID(r), req.Input)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for ev := range events {
		writeSSEEvent(w, string(ev.Type), ev)
		flusher.Flush()
	}
	writeSSEEvent(w, "done", <-result)
	flusher.Flush()
}

// writeSSEEvent writes one SSE frame with the payload as JSON data.
func writeSSEEvent(w http.ResponseWriter, event string, payload any) {
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// listHistory returns a workflow's execution log, newest first.
// GET /api/workflows/{id}/history
func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.executions.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []*loom.ExecutionRecord{}
	}
	writeJSON(w, http.StatusOK, entries)
}
