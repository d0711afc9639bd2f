package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loomworks/loom/internal/loom"
)

// AppendExecution stores one execution record.
func (d *DB) AppendExecution(ctx context.Context, rec *loom.ExecutionRecord) error {
	inputJSON, err := json.Marshal(rec.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	outputJSON, err := json.Marshal(rec.Output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}

	_, err = d.Pool.ExecContext(ctx,
		`INSERT INTO execution_history (id, workflow_id, user_id, input, output, status, error, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.WorkflowID, rec.UserID, inputJSON, outputJSON, rec.Status, rec.Error, rec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// ListExecutions returns a workflow's execution history, newest first.
func (d *DB) ListExecutions(ctx context.Context, workflowID string) ([]*loom.ExecutionRecord, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT id, workflow_id, user_id, input, output, status, error, executed_at
		 FROM execution_history WHERE workflow_id = $1 ORDER BY executed_at DESC`, workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var result []*loom.ExecutionRecord
	for rows.Next() {
		var rec loom.ExecutionRecord
		var inputJSON, outputJSON []byte
		if err := rows.Scan(&rec.ID, &rec.WorkflowID, &rec.UserID, &inputJSON, &outputJSON, &rec.Status, &rec.Error, &rec.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if err := json.Unmarshal(inputJSON, &rec.Input); err != nil {
			return nil, fmt.Errorf("unmarshal input: %w", err)
		}
		if err := json.Unmarshal(outputJSON, &rec.Output); err != nil {
			return nil, fmt.Errorf("unmarshal output: %w", err)
		}
		result = append(result, &rec)
	}
	return result, rows.Err()
}
