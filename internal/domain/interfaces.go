package domain

import (
	"context"
	"encoding/json"
	"time"

	"kintai/internal/models"
)

// Clock abstracts "time in the configured zone" so the scheduler and planner
// can be tested with a fake clock.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// APIClient is the narrow contract over the OAuth-token-bearing HR platform
// client. Request failures carry the typed taxonomy from errors.go.
type APIClient interface {
	EnsureValidToken(ctx context.Context) (string, error)
	Request(ctx context.Context, method, path string, body any) (json.RawMessage, error)
}

// HRClient is the attendance-level view of the platform API used by the
// write pipeline and the state probe.
type HRClient interface {
	// AvailableClockTypes returns which punch types the platform currently
	// accepts; the set encodes the account's live attendance state.
	AvailableClockTypes(ctx context.Context) ([]models.ActionType, error)
	// PostTimeClock records a real-time punch.
	PostTimeClock(ctx context.Context, action models.ActionType, at time.Time) error
	// TodayPunches lists punches already recorded for the given date.
	TodayPunches(ctx context.Context, date time.Time) ([]models.Punch, error)
	// UpdateWorkRecord sets the attendance record for a date directly.
	UpdateWorkRecord(ctx context.Context, entry *models.CorrectionEntry) error
	// FindApprovalRoute discovers a usable approval route, preferring one
	// scoped to attendance over a generic system route.
	FindApprovalRoute(ctx context.Context) (int64, error)
	// SubmitWorkTimeApproval files the correction through the approval
	// workflow on the given route.
	SubmitWorkTimeApproval(ctx context.Context, entry *models.CorrectionEntry, routeID int64) error
	// SubmitLeaveApproval files a leave request through the approval
	// workflow on the given route.
	SubmitLeaveApproval(ctx context.Context, leave *models.LeaveEntry, routeID int64) error
}

// SubmitResult is the outcome of a form submission through the browser.
// Rejection by the form is an expected, recoverable outcome, so it is a
// value rather than an error.
type SubmitResult struct {
	Success bool
	Error   string
}

// Session is one logged-in UI automation session. All methods are blocking;
// the session manager guarantees no two sessions interleave.
type Session interface {
	Login(ctx context.Context) error
	DetectState(ctx context.Context) (models.AttendanceState, error)
	ExecuteAction(ctx context.Context, action models.ActionType) error
	SubmitCorrection(ctx context.Context, entry *models.CorrectionEntry) (*SubmitResult, error)
	SubmitLeaveRequest(ctx context.Context, leaveType string, date time.Time, reason string) (*SubmitResult, error)
	WithdrawRequest(ctx context.Context, requestKind string, id int64) error
}

// SessionManager serializes all UI automation: at most one session is open
// system-wide, waiters are served in FIFO order, and the session is always
// torn down when fn returns.
type SessionManager interface {
	WithSession(ctx context.Context, fn func(Session) error) error
}

// StateProber reports the account's current attendance state through
// whichever backend is configured.
type StateProber interface {
	Probe(ctx context.Context) (models.AttendanceState, error)
	Backend() string
}

// AttendanceBackend couples state probing with punch execution. One variant
// (mock, live API, or browser automation) is selected at startup and
// injected; callers never branch on a mode flag.
type AttendanceBackend interface {
	StateProber
	ExecutePunch(ctx context.Context, action models.ActionType) error
}

// StrategyStore is the (month, operation) strategy cache.
type StrategyStore interface {
	Get(ctx context.Context, month string, op models.OperationType) (*models.StrategyCacheEntry, error)
	Set(ctx context.Context, entry *models.StrategyCacheEntry) error
}

// Store is the persistence layer for schedule entries and the audit log.
type Store interface {
	GetScheduleEntry(ctx context.Context, date string, action models.ActionType) (*models.ScheduleEntry, error)
	UpsertScheduleEntry(ctx context.Context, entry *models.ScheduleEntry) error
	MarkScheduleExecuted(ctx context.Context, date string, action models.ActionType) error
	ListScheduleEntries(ctx context.Context, date string) ([]*models.ScheduleEntry, error)
	AppendExecutionLog(ctx context.Context, entry *models.ExecutionLogEntry) error
	ListExecutionLog(ctx context.Context, from, to time.Time, limit int) ([]*models.ExecutionLogEntry, error)
}

// Notifier delivers human-readable status messages to the account owner.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// EventPublisher is the in-process event bus seen by producers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
