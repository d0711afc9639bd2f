package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/loomworks/loom/internal/loom"
)

// ErrNoRows is re-exported so callers can map missing rows without
// importing database/sql.
var ErrNoRows = sql.ErrNoRows

// InsertWorkflow stores a workflow record.
func (d *DB) InsertWorkflow(ctx context.Context, rec *loom.WorkflowRecord) error {
	defJSON, err := json.Marshal(rec.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}

	_, err = d.Pool.ExecContext(ctx,
		`INSERT INTO workflows (id, user_id, description, definition, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.UserID, rec.Description, defJSON, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by id.
func (d *DB) GetWorkflow(ctx context.Context, id string) (*loom.WorkflowRecord, error) {
	var rec loom.WorkflowRecord
	var defJSON []byte

	err := d.Pool.QueryRowContext(ctx,
		`SELECT id, user_id, description, definition, created_at
		 FROM workflows WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.UserID, &rec.Description, &defJSON, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(defJSON, &rec.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return &rec, nil
}

// ListWorkflows returns all workflows for a user, newest first.
func (d *DB) ListWorkflows(ctx context.Context, userID string) ([]*loom.WorkflowRecord, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT id, user_id, description, definition, created_at
		 FROM workflows WHERE user_id = $1 ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var result []*loom.WorkflowRecord
	for rows.Next() {
		var rec loom.WorkflowRecord
		var defJSON []byte
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Description, &defJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		if err := json.Unmarshal(defJSON, &rec.Definition); err != nil {
			return nil, fmt.Errorf("unmarshal definition: %w", err)
		}
		result = append(result, &rec)
	}
	return result, rows.Err()
}

// DeleteWorkflow removes a workflow and, via cascade, its history and
// schedules.
func (d *DB) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := d.Pool.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
