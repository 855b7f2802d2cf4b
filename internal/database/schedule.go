package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kintai/internal/models"
)

// GetScheduleEntry returns the entry for (date, action), or nil when none
// has been resolved yet.
func (d *DB) GetScheduleEntry(ctx context.Context, date string, action models.ActionType) (*models.ScheduleEntry, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, date, action_type, resolved_time, executed, created_at
         FROM schedule_entries WHERE date = ? AND action_type = ?`,
		date, string(action))

	entry, err := scanScheduleEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule entry: %w", err)
	}
	return entry, nil
}

// UpsertScheduleEntry creates or replaces the entry for (date, action).
// The UNIQUE constraint keeps exactly one entry per pair.
func (d *DB) UpsertScheduleEntry(ctx context.Context, entry *models.ScheduleEntry) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO schedule_entries (date, action_type, resolved_time, executed)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(date, action_type)
         DO UPDATE SET resolved_time = excluded.resolved_time, executed = excluded.executed`,
		entry.Date, string(entry.ActionType), entry.ResolvedTime, entry.Executed)
	if err != nil {
		return fmt.Errorf("upsert schedule entry: %w", err)
	}
	return nil
}

// MarkScheduleExecuted flips the executed flag; the entry is immutable after.
func (d *DB) MarkScheduleExecuted(ctx context.Context, date string, action models.ActionType) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE schedule_entries SET executed = 1 WHERE date = ? AND action_type = ?`,
		date, string(action))
	if err != nil {
		return fmt.Errorf("mark schedule executed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		d.logger.Warn().Str("date", date).Str("action", string(action)).Msg("mark executed: no schedule entry")
	}
	return nil
}

// ListScheduleEntries returns all entries for a date ordered by time.
func (d *DB) ListScheduleEntries(ctx context.Context, date string) ([]*models.ScheduleEntry, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, date, action_type, resolved_time, executed, created_at
         FROM schedule_entries WHERE date = ? ORDER BY resolved_time`,
		date)
	if err != nil {
		return nil, fmt.Errorf("list schedule entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.ScheduleEntry
	for rows.Next() {
		entry, err := scanScheduleEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScheduleEntry(row rowScanner) (*models.ScheduleEntry, error) {
	var entry models.ScheduleEntry
	var action string
	if err := row.Scan(&entry.ID, &entry.Date, &action, &entry.ResolvedTime, &entry.Executed, &entry.CreatedAt); err != nil {
		return nil, err
	}
	entry.ActionType = models.ActionType(action)
	return &entry, nil
}
