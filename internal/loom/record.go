package loom

import "time"

// WorkflowRecord is a persisted workflow. Records are immutable: replacing
// a document means creating a new record with a fresh id.
type WorkflowRecord struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
	Description string             `json:"description"`
	Definition  WorkflowDefinition `json:"definition"`
	CreatedAt   time.Time          `json:"created_at"`
}

// ExecutionRecord is one entry in the append-only execution audit log.
type ExecutionRecord struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id"`
	UserID     string         `json:"user_id"`
	Input      map[string]any `json:"input"`
	Output     any            `json:"output,omitempty"`
	Status     RunStatus      `json:"status"`
	Error      string         `json:"error,omitempty"`
	ExecutedAt time.Time      `json:"executed_at"`
}

// ScheduleRecord binds a cron expression to a workflow and the input
// it runs with.
type ScheduleRecord struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id"`
	CronExpr   string         `json:"cron_expr"`
	Input      map[string]any `json:"input"`
	Enabled    bool           `json:"enabled"`
	CreatedAt  time.Time      `json:"created_at"`
}

// RunStatus is the terminal (or in-flight) state of one workflow run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunTimedOut  RunStatus = "timed_out"
)
