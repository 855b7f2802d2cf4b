package models

import "time"

// ScheduleEntry is the resolved punch time for one (date, action) pair.
// Exactly one entry exists per pair per day; it is superseded at rollover
// and immutable once executed.
type ScheduleEntry struct {
	ID           int64      `json:"id"`
	Date         string     `json:"date"` // YYYY-MM-DD in the configured zone
	ActionType   ActionType `json:"action_type"`
	ResolvedTime string     `json:"resolved_time"` // HH:MM
	Executed     bool       `json:"executed"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ResolvedAt combines the entry's date and HH:MM time in loc.
func (e *ScheduleEntry) ResolvedAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04", e.Date+" "+e.ResolvedTime, loc)
}

// ExecutionStatus classifies the outcome of one attempted action.
type ExecutionStatus string

const (
	ExecSuccess ExecutionStatus = "success"
	ExecFailure ExecutionStatus = "failure"
	ExecSkipped ExecutionStatus = "skipped"
)

// ExecutionTrigger records what caused an action to run.
type ExecutionTrigger string

const (
	TriggerScheduled ExecutionTrigger = "scheduled"
	TriggerManual    ExecutionTrigger = "manual"
	TriggerImmediate ExecutionTrigger = "immediate"
	TriggerBatch     ExecutionTrigger = "batch"
)

// ExecutionLogEntry is one row of the append-only audit trail.
type ExecutionLogEntry struct {
	ID            int64            `json:"id"`
	ActionType    ActionType       `json:"action_type"`
	ScheduledTime string           `json:"scheduled_time,omitempty"`
	ExecutedAt    time.Time        `json:"executed_at"`
	Status        ExecutionStatus  `json:"status"`
	Trigger       ExecutionTrigger `json:"trigger"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	DurationMS    int64            `json:"duration_ms,omitempty"`
}
