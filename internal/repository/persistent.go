package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/loomworks/loom/internal/db"
	"github.com/loomworks/loom/internal/loom"
)

// PersistentWorkflows layers a MemoryWorkflows cache over PostgreSQL.
// Writes go to both stores; a DB failure is logged but non-fatal so the
// server keeps working without durability. Reads try memory first.
type PersistentWorkflows struct {
	mem *MemoryWorkflows
	db  *db.DB
}

func NewPersistentWorkflows(mem *MemoryWorkflows, database *db.DB) *PersistentWorkflows {
	return &PersistentWorkflows{mem: mem, db: database}
}

func (r *PersistentWorkflows) Create(ctx context.Context, rec *loom.WorkflowRecord) error {
	_ = r.mem.Create(ctx, rec)
	if err := r.db.InsertWorkflow(ctx, rec); err != nil {
		slog.Warn("db insert workflow failed, in-memory only", "workflow_id", rec.ID, "err", err)
	}
	return nil
}

func (r *PersistentWorkflows) Get(ctx context.Context, id string) (*loom.WorkflowRecord, error) {
	rec, err := r.mem.Get(ctx, id)
	if err == nil {
		return rec, nil
	}

	dbRec, dbErr := r.db.GetWorkflow(ctx, id)
	if dbErr != nil {
		if errors.Is(dbErr, sql.ErrNoRows) {
			return nil, err
		}
		slog.Warn("db get workflow failed", "workflow_id", id, "err", dbErr)
		return nil, err
	}

	// Warm the cache for future lookups.
	_ = r.mem.Create(ctx, dbRec)
	return dbRec, nil
}

func (r *PersistentWorkflows) List(ctx context.Context, userID string) ([]*loom.WorkflowRecord, error) {
	recs, err := r.db.ListWorkflows(ctx, userID)
	if err == nil {
		return recs, nil
	}
	slog.Warn("db list workflows failed, falling back to in-memory", "err", err)
	return r.mem.List(ctx, userID)
}

func (r *PersistentWorkflows) Delete(ctx context.Context, id string) error {
	memErr := r.mem.Delete(ctx, id)
	dbErr := r.db.DeleteWorkflow(ctx, id)
	if dbErr == nil {
		return nil
	}
	if errors.Is(dbErr, sql.ErrNoRows) {
		return memErr
	}
	slog.Warn("db delete workflow failed", "workflow_id", id, "err", dbErr)
	return memErr
}

// PersistentHistory appends to both memory and PostgreSQL and prefers
// the database for listing.
type PersistentHistory struct {
	mem *MemoryHistory
	db  *db.DB
}

func NewPersistentHistory(mem *MemoryHistory, database *db.DB) *PersistentHistory {
	return &PersistentHistory{mem: mem, db: database}
}

func (r *PersistentHistory) Append(ctx context.Context, rec *loom.ExecutionRecord) error {
	_ = r.mem.Append(ctx, rec)
	if err := r.db.AppendExecution(ctx, rec); err != nil {
		slog.Warn("db append execution failed, in-memory only", "execution_id", rec.ID, "err", err)
	}
	return nil
}

func (r *PersistentHistory) ListByWorkflow(ctx context.Context, workflowID string) ([]*loom.ExecutionRecord, error) {
	recs, err := r.db.ListExecutions(ctx, workflowID)
	if err == nil {
		return recs, nil
	}
	slog.Warn("db list executions failed, falling back to in-memory", "err", err)
	return r.mem.ListByWorkflow(ctx, workflowID)
}

// PersistentSchedules mirrors schedules in memory and PostgreSQL.
type PersistentSchedules struct {
	mem *MemorySchedules
	db  *db.DB
}

func NewPersistentSchedules(mem *MemorySchedules, database *db.DB) *PersistentSchedules {
	return &PersistentSchedules{mem: mem, db: database}
}

func (r *PersistentSchedules) Create(ctx context.Context, rec *loom.ScheduleRecord) error {
	_ = r.mem.Create(ctx, rec)
	if err := r.db.InsertSchedule(ctx, rec); err != nil {
		slog.Warn("db insert schedule failed, in-memory only", "schedule_id", rec.ID, "err", err)
	}
	return nil
}

func (r *PersistentSchedules) List(ctx context.Context) ([]*loom.ScheduleRecord, error) {
	recs, err := r.db.ListSchedules(ctx)
	if err == nil {
		return recs, nil
	}
	slog.Warn("db list schedules failed, falling back to in-memory", "err", err)
	return r.mem.List(ctx)
}

func (r *PersistentSchedules) Delete(ctx context.Context, id string) error {
	memErr := r.mem.Delete(ctx, id)
	dbErr := r.db.DeleteSchedule(ctx, id)
	if dbErr == nil {
		return nil
	}
	if errors.Is(dbErr, sql.ErrNoRows) {
		return memErr
	}
	slog.Warn("db delete schedule failed", "schedule_id", id, "err", dbErr)
	return memErr
}
