package models

import "time"

// WriteStrategy is one rung of the fallback ladder, cheapest first.
type WriteStrategy string

const (
	StrategyDirect    WriteStrategy = "direct"
	StrategyApproval  WriteStrategy = "approval"
	StrategyTimeClock WriteStrategy = "time_clock"
	StrategyWeb       WriteStrategy = "web"
)

// StrategyOrder lists strategies from cheapest to most expensive.
var StrategyOrder = []WriteStrategy{StrategyDirect, StrategyApproval, StrategyTimeClock, StrategyWeb}

// OperationType scopes a strategy cache entry alongside the calendar month.
type OperationType string

const (
	OpCorrection OperationType = "correction"
	OpLeave      OperationType = "leave"
)

// StrategyCacheEntry records which write paths worked for (month, operation).
// A fresh calendar month starts with no entry, forcing a re-probe: company
// policy can change between months.
type StrategyCacheEntry struct {
	Month        string        `json:"month"` // YYYY-MM
	Operation    OperationType `json:"operation"`
	DirectOK     bool          `json:"direct_ok"`
	ApprovalOK   bool          `json:"approval_ok"`
	TimeClockOK  bool          `json:"time_clock_ok"`
	BestStrategy WriteStrategy `json:"best_strategy"`
	DetectedAt   time.Time     `json:"detected_at"`
}

// Best derives the cheapest working strategy from the capability flags.
// Web is the residual answer when no API path works.
func (e *StrategyCacheEntry) Best() WriteStrategy {
	switch {
	case e.DirectOK:
		return StrategyDirect
	case e.ApprovalOK:
		return StrategyApproval
	case e.TimeClockOK:
		return StrategyTimeClock
	}
	return StrategyWeb
}

// MonthKey returns the YYYY-MM cache scope for t.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}
