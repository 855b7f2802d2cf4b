package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kintai/internal/models"
)

// AppendExecutionLog inserts one audit row. Rows are never updated or
// deleted; the log is the authoritative record of everything the agent did.
func (d *DB) AppendExecutionLog(ctx context.Context, entry *models.ExecutionLogEntry) error {
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now()
	}

	var errMsg sql.NullString
	if entry.ErrorMessage != "" {
		errMsg = sql.NullString{String: entry.ErrorMessage, Valid: true}
	}
	var duration sql.NullInt64
	if entry.DurationMS > 0 {
		duration = sql.NullInt64{Int64: entry.DurationMS, Valid: true}
	}

	res, err := d.db.ExecContext(ctx,
		`INSERT INTO execution_log (action_type, scheduled_time, executed_at, status, trigger_kind, error_message, duration_ms)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(entry.ActionType), entry.ScheduledTime, entry.ExecutedAt,
		string(entry.Status), string(entry.Trigger), errMsg, duration)
	if err != nil {
		return fmt.Errorf("append execution log: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// ListExecutionLog returns log rows in [from, to), newest first.
func (d *DB) ListExecutionLog(ctx context.Context, from, to time.Time, limit int) ([]*models.ExecutionLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, action_type, COALESCE(scheduled_time, ''), executed_at, status, trigger_kind,
                COALESCE(error_message, ''), COALESCE(duration_ms, 0)
         FROM execution_log
         WHERE executed_at >= ? AND executed_at < ?
         ORDER BY executed_at DESC LIMIT ?`,
		from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("list execution log: %w", err)
	}
	defer rows.Close()

	var entries []*models.ExecutionLogEntry
	for rows.Next() {
		var entry models.ExecutionLogEntry
		var action, status, trigger string
		if err := rows.Scan(&entry.ID, &action, &entry.ScheduledTime, &entry.ExecutedAt,
			&status, &trigger, &entry.ErrorMessage, &entry.DurationMS); err != nil {
			return nil, fmt.Errorf("scan execution log: %w", err)
		}
		entry.ActionType = models.ActionType(action)
		entry.Status = models.ExecutionStatus(status)
		entry.Trigger = models.ExecutionTrigger(trigger)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
