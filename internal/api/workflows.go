package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loomworks/loom/internal/loom"
)

type createWorkflowRequest struct {
	Description string                   `json:"description"`
	Definition  *loom.WorkflowDefinition `json:"definition"`
}

type workflowResponse struct {
	*loom.WorkflowRecord
	Warnings []string `json:"warnings,omitempty"`
}

// createWorkflow stores a workflow document after compiling it.
// POST /api/workflows
func (s *Server) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Definition == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("definition is required"))
		return
	}

	rec, warnings, err := s.workflows.Create(r.Context(), userID(r), req.Description, req.Definition)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, workflowResponse{WorkflowRecord: rec, Warnings: warnings})
}

// listWorkflows returns the caller's workflows.
// GET /api/workflows
func (s *Server) listWorkflows(w http.ResponseWriter, r *http.Request) {
	recs, err := s.workflows.List(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if recs == nil {
		recs = []*loom.WorkflowRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// getWorkflow returns one workflow record.
// GET /api/workflows/{id}
func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	rec, err := s.workflows.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// deleteWorkflow removes a workflow record.
// DELETE /api/workflows/{id}
func (s *Server) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.workflows.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type generateRequest struct {
	Description string `json:"description"`
	Save        bool   `json:"save"`
}

// generateWorkflow turns a natural language description into a workflow
// document, optionally storing it in the same call.
// POST /api/workflows/generate
func (s *Server) generateWorkflow(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("workflow generation not configured"))
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("description is required"))
		return
	}

	wf, err := s.generator.Generate(r.Context(), req.Description)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	if !req.Save {
		writeJSON(w, http.StatusOK, wf)
		return
	}
	rec, warnings, err := s.workflows.Create(r.Context(), userID(r), req.Description, wf)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, workflowResponse{WorkflowRecord: rec, Warnings: warnings})
}

// listTools returns the registered tool catalog.
// GET /api/tools
func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	type toolInfo struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		InputSchema map[string]any `json:"input_schema"`
	}
	list := s.toolReg.List()
	out := make([]toolInfo, len(list))
	for i, t := range list {
		out[i] = toolInfo{Name: t.Name(), Description: t.Description(), InputSchema: t.InputSchema()}
	}
	writeJSON(w, http.StatusOK, out)
}
