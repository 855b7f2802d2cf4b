package models

import "time"

// AttendanceState is the account state as observed on the HR platform.
// Transitions happen on the platform side; we only observe and react.
type AttendanceState string

const (
	StateNotCheckedIn AttendanceState = "not_checked_in"
	StateWorking      AttendanceState = "working"
	StateOnBreak      AttendanceState = "on_break"
	StateCheckedOut   AttendanceState = "checked_out"
	StateUnknown      AttendanceState = "unknown"
)

// ActionType identifies one of the four daily punch actions.
type ActionType string

const (
	ActionCheckin    ActionType = "checkin"
	ActionCheckout   ActionType = "checkout"
	ActionBreakStart ActionType = "break_start"
	ActionBreakEnd   ActionType = "break_end"
)

// ActionCorrection and ActionLeave appear only in the execution log,
// marking rows written by the write pipeline rather than by a punch.
const (
	ActionCorrection ActionType = "correction"
	ActionLeave      ActionType = "leave"
)

// AllActions lists the punch actions in their canonical evaluation order.
// The planner iterates this slice so tie-breaks between actions are fixed.
var AllActions = []ActionType{ActionCheckin, ActionBreakStart, ActionBreakEnd, ActionCheckout}

// Valid reports whether t is one of the four known actions.
func (t ActionType) Valid() bool {
	switch t {
	case ActionCheckin, ActionCheckout, ActionBreakStart, ActionBreakEnd:
		return true
	}
	return false
}

// Punch is a single punch record already present on the platform for a day.
type Punch struct {
	Type ActionType `json:"type"`
	At   time.Time  `json:"at"`
}

// BreakRecord is one break interval inside a correction.
type BreakRecord struct {
	ClockInAt  time.Time `json:"clock_in_at"`
	ClockOutAt time.Time `json:"clock_out_at"`
}

// CorrectionEntry is a request-scoped description of the attendance record
// for one date as it should end up on the platform. Never persisted; only
// the outcome of writing it is logged.
type CorrectionEntry struct {
	Date         time.Time     `json:"date"`
	ClockInAt    *time.Time    `json:"clock_in_at,omitempty"`
	ClockOutAt   *time.Time    `json:"clock_out_at,omitempty"`
	BreakRecords []BreakRecord `json:"break_records,omitempty"`
	IsEditable   bool          `json:"is_editable"`
	Reason       string        `json:"reason,omitempty"`
}

// DateKey formats the entry date the way the platform expects it.
func (c *CorrectionEntry) DateKey() string {
	return c.Date.Format("2006-01-02")
}

// LeaveEntry is a request-scoped leave filing for one date. Like
// CorrectionEntry it is never persisted; only the write outcome is logged.
type LeaveEntry struct {
	Date      time.Time `json:"date"`
	LeaveType string    `json:"leave_type"`
	Reason    string    `json:"reason,omitempty"`
}

func (l *LeaveEntry) DateKey() string {
	return l.Date.Format("2006-01-02")
}
