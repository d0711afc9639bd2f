// Package repository defines storage interfaces for workflows,
// execution history, and schedules, with in-memory and PostgreSQL-backed
// implementations.
package repository

import (
	"context"
	"errors"

	"github.com/loomworks/loom/internal/loom"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// WorkflowRepository abstracts workflow record persistence.
type WorkflowRepository interface {
	Create(ctx context.Context, rec *loom.WorkflowRecord) error
	Get(ctx context.Context, id string) (*loom.WorkflowRecord, error)
	List(ctx context.Context, userID string) ([]*loom.WorkflowRecord, error)
	Delete(ctx context.Context, id string) error
}

// HistoryRepository is the append-only execution audit log.
type HistoryRepository interface {
	Append(ctx context.Context, rec *loom.ExecutionRecord) error
	ListByWorkflow(ctx context.Context, workflowID string) ([]*loom.ExecutionRecord, error)
}

// ScheduleRepository stores cron schedules.
type ScheduleRepository interface {
	Create(ctx context.Context, rec *loom.ScheduleRecord) error
	List(ctx context.Context) ([]*loom.ScheduleRecord, error)
	Delete(ctx context.Context, id string) error
}
