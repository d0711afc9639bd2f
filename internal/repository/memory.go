package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/loomworks/loom/internal/loom"
	memstore "github.com/loomworks/loom/internal/repository/memory"
)

// MemoryWorkflows is a thread-safe in-memory WorkflowRepository.
type MemoryWorkflows struct {
	store *memstore.Store[*loom.WorkflowRecord]
}

func NewMemoryWorkflows() *MemoryWorkflows {
	return &MemoryWorkflows{
		store: memstore.New(func(r *loom.WorkflowRecord) string { return r.ID }),
	}
}

func (r *MemoryWorkflows) Create(ctx context.Context, rec *loom.WorkflowRecord) error {
	return r.store.Set(ctx, rec)
}

func (r *MemoryWorkflows) Get(ctx context.Context, id string) (*loom.WorkflowRecord, error) {
	rec, err := r.store.Get(ctx, id)
	if errors.Is(err, memstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: workflow %s", ErrNotFound, id)
	}
	return rec, err
}

func (r *MemoryWorkflows) List(ctx context.Context, userID string) ([]*loom.WorkflowRecord, error) {
	recs, err := r.store.Filter(ctx, func(rec *loom.WorkflowRecord) bool {
		return rec.UserID == userID
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
	return recs, nil
}

func (r *MemoryWorkflows) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); errors.Is(err, memstore.ErrNotFound) {
		return fmt.Errorf("%w: workflow %s", ErrNotFound, id)
	}
	return nil
}

// MemoryHistory is a thread-safe in-memory HistoryRepository.
type MemoryHistory struct {
	store *memstore.Store[*loom.ExecutionRecord]
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{
		store: memstore.New(func(r *loom.ExecutionRecord) string { return r.ID }),
	}
}

func (r *MemoryHistory) Append(ctx context.Context, rec *loom.ExecutionRecord) error {
	return r.store.Set(ctx, rec)
}

func (r *MemoryHistory) ListByWorkflow(ctx context.Context, workflowID string) ([]*loom.ExecutionRecord, error) {
	recs, err := r.store.Filter(ctx, func(rec *loom.ExecutionRecord) bool {
		return rec.WorkflowID == workflowID
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ExecutedAt.After(recs[j].ExecutedAt) })
	return recs, nil
}

// MemorySchedules is a thread-safe in-memory ScheduleRepository.
type MemorySchedules struct {
	store *memstore.Store[*loom.ScheduleRecord]
}

func NewMemorySchedules() *MemorySchedules {
	return &MemorySchedules{
		store: memstore.New(func(r *loom.ScheduleRecord) string { return r.ID }),
	}
}

func (r *MemorySchedules) Create(ctx context.Context, rec *loom.ScheduleRecord) error {
	return r.store.Set(ctx, rec)
}

func (r *MemorySchedules) List(ctx context.Context) ([]*loom.ScheduleRecord, error) {
	return r.store.All(ctx)
}

func (r *MemorySchedules) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); errors.Is(err, memstore.ErrNotFound) {
		return fmt.Errorf("%w: schedule %s", ErrNotFound, id)
	}
	return nil
}
