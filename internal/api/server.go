// Package api exposes the HTTP surface: workflow CRUD, generation,
// execution, history, schedules, and the tool catalog.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/loomworks/loom/internal/generate"
	"github.com/loomworks/loom/internal/graph"
	"github.com/loomworks/loom/internal/repository"
	"github.com/loomworks/loom/internal/scheduler"
	"github.com/loomworks/loom/internal/services"
	"github.com/loomworks/loom/internal/tools"
)

// defaultUserID is used when the caller does not identify itself.
const defaultUserID = "default"

type Server struct {
	workflows  *services.WorkflowService
	executions *services.ExecutionService
	scheduler  *scheduler.Service
	generator  *generate.Generator
	toolReg    *tools.Registry
}

func NewServer(workflows *services.WorkflowService, executions *services.ExecutionService, sched *scheduler.Service, generator *generate.Generator, toolReg *tools.Registry) *Server {
	return &Server{
		workflows:  workflows,
		executions: executions,
		scheduler:  sched,
		generator:  generator,
		toolReg:    toolReg,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "X-User-ID"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/workflows", func(r chi.Router) {
			r.Post("/", s.createWorkflow)
			r.Get("/", s.listWorkflows)
			r.Post("/generate", s.generateWorkflow)
			r.Get("/{id}", s.getWorkflow)
			r.Delete("/{id}", s.deleteWorkflow)
			r.Post("/{id}/execute", s.executeWorkflow)
			r.Post("/{id}/execute/stream", s.executeWorkflowStream)
			r.Get("/{id}/history", s.listHistory)
		})
		r.Route("/schedules", func(r chi.Router) {
			r.Post("/", s.createSchedule)
			r.Get("/", s.listSchedules)
			r.Delete("/{id}", s.deleteSchedule)
		})
		r.Get("/tools", s.listTools)
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// userID extracts the caller identity. Authentication is out of scope;
// the header is trusted as-is.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return defaultUserID
}

// writeServiceError maps service-layer failures to HTTP statuses:
// missing records to 404, compile rejections to 400, the rest to 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case isCompileError(err):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func isCompileError(err error) bool {
	return errors.Is(err, graph.ErrDuplicateNodeID) ||
		errors.Is(err, graph.ErrDanglingEdge) ||
		errors.Is(err, graph.ErrCycleDetected) ||
		errors.Is(err, graph.ErrNoEntryPoint) ||
		errors.Is(err, graph.ErrNoTerminalReachable)
}
