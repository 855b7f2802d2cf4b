package models

import "time"

// TaskStatus is the lifecycle state of an async batch task.
type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// EntryResult is the per-date outcome inside a batch result set.
// A batch is never all-or-nothing; every date reports individually.
type EntryResult struct {
	Date    string        `json:"date"`
	Success bool          `json:"success"`
	Method  WriteStrategy `json:"method,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// AsyncTask lets a long-running batch be polled instead of blocking the
// caller. Records are garbage-collected after a fixed TTL.
type AsyncTask struct {
	ID        string        `json:"id"`
	Status    TaskStatus    `json:"status"`
	Results   []EntryResult `json:"results,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	DoneAt    *time.Time    `json:"done_at,omitempty"`
}
