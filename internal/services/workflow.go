// Package services holds the application layer between the HTTP API and
// the domain packages: workflow lifecycle, execution orchestration, and
// history.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/internal/graph"
	"github.com/loomworks/loom/internal/loom"
	"github.com/loomworks/loom/internal/repository"
)

// WorkflowService manages workflow records and their compiled graphs.
// Documents are validated at save time so execution never sees an
// uncompilable workflow; the compile cache is invalidated on delete.
type WorkflowService struct {
	repo    repository.WorkflowRepository
	cache   *graph.Cache
	catalog graph.ToolChecker
}

func NewWorkflowService(repo repository.WorkflowRepository, cache *graph.Cache, catalog graph.ToolChecker) *WorkflowService {
	return &WorkflowService{repo: repo, cache: cache, catalog: catalog}
}

// Create validates the document by compiling it, then stores a new
// record. Compile warnings (unknown tools) are returned alongside the
// record.
func (s *WorkflowService) Create(ctx context.Context, userID, description string, wf *loom.WorkflowDefinition) (*loom.WorkflowRecord, []string, error) {
	compiled, err := graph.Compile(wf, s.catalog)
	if err != nil {
		return nil, nil, err
	}

	rec := &loom.WorkflowRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		Description: description,
		Definition:  *wf,
		CreatedAt:   time.Now(),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, nil, fmt.Errorf("store workflow: %w", err)
	}
	return rec, compiled.Warnings(), nil
}

func (s *WorkflowService) Get(ctx context.Context, id string) (*loom.WorkflowRecord, error) {
	return s.repo.Get(ctx, id)
}

func (s *WorkflowService) List(ctx context.Context, userID string) ([]*loom.WorkflowRecord, error) {
	return s.repo.List(ctx, userID)
}

func (s *WorkflowService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(id)
	return nil
}

// Compiled returns the cached compiled graph for a stored workflow.
func (s *WorkflowService) Compiled(ctx context.Context, id string) (*loom.WorkflowRecord, *graph.Compiled, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	compiled, err := s.cache.Get(rec.ID, &rec.Definition, s.catalog)
	if err != nil {
		return nil, nil, err
	}
	return rec, compiled, nil
}
