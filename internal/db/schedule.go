package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/loomworks/loom/internal/loom"
)

// InsertSchedule stores a schedule record.
func (d *DB) InsertSchedule(ctx context.Context, rec *loom.ScheduleRecord) error {
	inputJSON, err := json.Marshal(rec.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}

	_, err = d.Pool.ExecContext(ctx,
		`INSERT INTO schedules (id, workflow_id, cron_expr, input, enabled, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.WorkflowID, rec.CronExpr, inputJSON, rec.Enabled, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// ListSchedules returns all stored schedules.
func (d *DB) ListSchedules(ctx context.Context) ([]*loom.ScheduleRecord, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT id, workflow_id, cron_expr, input, enabled, created_at
		 FROM schedules ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var result []*loom.ScheduleRecord
	for rows.Next() {
		var rec loom.ScheduleRecord
		var inputJSON []byte
		if err := rows.Scan(&rec.ID, &rec.WorkflowID, &rec.CronExpr, &inputJSON, &rec.Enabled, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		if err := json.Unmarshal(inputJSON, &rec.Input); err != nil {
			return nil, fmt.Errorf("unmarshal input: %w", err)
		}
		result = append(result, &rec)
	}
	return result, rows.Err()
}

// DeleteSchedule removes a schedule.
func (d *DB) DeleteSchedule(ctx context.Context, id string) error {
	res, err := d.Pool.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
