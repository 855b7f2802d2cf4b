package planner

import (
	"fmt"
	"time"

	"kintai/internal/models"
)

// Input is everything the planner may look at. Plan is a pure function of
// this value, which keeps the decision logic testable without timers.
type Input struct {
	State    models.AttendanceState
	Schedule map[models.ActionType]*models.ScheduleEntry
	Punches  []models.Punch
	Now      time.Time
	Location *time.Location
}

// Planned is an action the scheduler should run at At.
type Planned struct {
	Action models.ActionType `json:"action"`
	At     time.Time         `json:"at"`
}

// Skipped is an action deliberately not run, with the reason recorded for
// the audit trail and the dashboard.
type Skipped struct {
	Action models.ActionType `json:"action"`
	Reason string            `json:"reason"`
}

// Result partitions today's actions. Immediate actions must run now rather
// than on a timer.
type Result struct {
	Execute   []Planned `json:"execute"`
	Immediate []Planned `json:"immediate"`
	Skip      []Skipped `json:"skip"`
	Reason    string    `json:"reason"`
}

// Plan decides, for each scheduled action independently, whether to run it,
// run it immediately, or skip it. The four actions are evaluated in the
// fixed order of models.AllActions; evaluating them independently instead
// of through one rigid state machine tolerates punch histories (such as a
// checkout followed by a same-day re-checkin) that desynchronize the state
// signal from what already happened today.
func Plan(in Input) Result {
	if in.Location == nil {
		in.Location = in.Now.Location()
	}

	// Inconclusive state: never guess. Everything waits for a later probe.
	if in.State == models.StateUnknown {
		result := Result{Reason: "attendance state unknown; skipping all actions until a probe succeeds"}
		for _, action := range models.AllActions {
			if in.Schedule[action] != nil {
				result.Skip = append(result.Skip, Skipped{Action: action, Reason: "state unknown"})
			}
		}
		return result
	}

	p := &evaluation{in: in}
	p.evalCheckin()
	p.evalBreaks()
	p.evalCheckout()

	p.result.Reason = fmt.Sprintf("state=%s: %d to execute, %d immediate, %d skipped",
		in.State, len(p.result.Execute), len(p.result.Immediate), len(p.result.Skip))
	return p.result
}

type evaluation struct {
	in     Input
	result Result
}

func (p *evaluation) entry(action models.ActionType) *models.ScheduleEntry {
	return p.in.Schedule[action]
}

func (p *evaluation) resolvedAt(entry *models.ScheduleEntry) time.Time {
	at, err := entry.ResolvedAt(p.in.Location)
	if err != nil {
		return time.Time{}
	}
	return at
}

func (p *evaluation) punched(action models.ActionType) *models.Punch {
	// Last punch of the type wins; re-checkins happen.
	var last *models.Punch
	for i := range p.in.Punches {
		if p.in.Punches[i].Type == action {
			last = &p.in.Punches[i]
		}
	}
	return last
}

func (p *evaluation) execute(action models.ActionType, at time.Time) {
	p.result.Execute = append(p.result.Execute, Planned{Action: action, At: at})
}

func (p *evaluation) immediate(action models.ActionType) {
	p.result.Immediate = append(p.result.Immediate, Planned{Action: action, At: p.in.Now})
}

func (p *evaluation) skip(action models.ActionType, reason string) {
	p.result.Skip = append(p.result.Skip, Skipped{Action: action, Reason: reason})
}

func (p *evaluation) evalCheckin() {
	entry := p.entry(models.ActionCheckin)
	if entry == nil {
		return
	}
	if entry.Executed || p.punched(models.ActionCheckin) != nil {
		p.skip(models.ActionCheckin, "already checked in today")
		return
	}
	if p.in.State != models.StateNotCheckedIn {
		p.skip(models.ActionCheckin, fmt.Sprintf("state is %s, not %s", p.in.State, models.StateNotCheckedIn))
		return
	}

	at := p.resolvedAt(entry)
	if p.in.Now.After(at.Add(models.LateCheckinGrace)) {
		p.skip(models.ActionCheckin, "scheduled time passed more than 5 minutes ago; not creating a late record")
		return
	}
	p.execute(models.ActionCheckin, at)
}

// checkinEffective returns whether a checkin happened or will happen, and
// the effective checkin time used for the expected-duration computation:
// the last real checkin punch when present, the scheduled time otherwise.
func (p *evaluation) checkinEffective() (bool, time.Time) {
	if punch := p.punched(models.ActionCheckin); punch != nil {
		return true, punch.At
	}

	entry := p.entry(models.ActionCheckin)
	var scheduled time.Time
	if entry != nil {
		scheduled = p.resolvedAt(entry)
	}

	switch p.in.State {
	case models.StateWorking, models.StateOnBreak:
		if !scheduled.IsZero() {
			return true, scheduled
		}
		return true, p.in.Now
	}

	for _, planned := range p.result.Execute {
		if planned.Action == models.ActionCheckin {
			return true, planned.At
		}
	}
	return false, time.Time{}
}

func (p *evaluation) evalBreaks() {
	startEntry := p.entry(models.ActionBreakStart)
	endEntry := p.entry(models.ActionBreakEnd)
	if startEntry == nil && endEntry == nil {
		return
	}

	willCheckin, effectiveCheckin := p.checkinEffective()
	if !willCheckin {
		p.skipBreaks(startEntry, endEntry, "no checkin today")
		return
	}

	checkoutEntry := p.entry(models.ActionCheckout)
	if checkoutEntry == nil {
		p.skipBreaks(startEntry, endEntry, "no checkout scheduled; expected duration unknown")
		return
	}

	expected := p.resolvedAt(checkoutEntry).Sub(effectiveCheckin)
	if !breakNeeded(expected) {
		reason := fmt.Sprintf("expected work duration %s is under the break threshold", expected.Round(time.Minute))
		p.skipBreaks(startEntry, endEntry, reason)
		return
	}

	breakDone := p.punched(models.ActionBreakEnd) != nil

	if startEntry != nil {
		switch {
		case startEntry.Executed || p.punched(models.ActionBreakStart) != nil:
			p.skip(models.ActionBreakStart, "break already started today")
		case breakDone:
			p.skip(models.ActionBreakStart, "break already completed today")
		case p.in.State == models.StateOnBreak:
			p.skip(models.ActionBreakStart, "already on break")
		case p.in.State == models.StateCheckedOut:
			p.skip(models.ActionBreakStart, "already checked out")
		default:
			p.execute(models.ActionBreakStart, p.resolvedAt(startEntry))
		}
	}

	if endEntry != nil {
		switch {
		case endEntry.Executed || breakDone:
			p.skip(models.ActionBreakEnd, "break already ended today")
		case p.in.State == models.StateOnBreak && p.breakOverrun():
			// The legal break cap is already blown; ending it on a timer
			// would only make the overrun worse.
			p.immediate(models.ActionBreakEnd)
		case p.in.State == models.StateCheckedOut:
			p.skip(models.ActionBreakEnd, "already checked out")
		default:
			p.execute(models.ActionBreakEnd, p.resolvedAt(endEntry))
		}
	}
}

// breakOverrun reports whether the running break has exceeded the cap.
func (p *evaluation) breakOverrun() bool {
	punch := p.punched(models.ActionBreakStart)
	if punch == nil {
		return false
	}
	return p.in.Now.Sub(punch.At) > models.MaxBreakMinutes*time.Minute
}

func (p *evaluation) skipBreaks(start, end *models.ScheduleEntry, reason string) {
	if start != nil {
		p.skip(models.ActionBreakStart, reason)
	}
	if end != nil {
		p.skip(models.ActionBreakEnd, reason)
	}
}

func (p *evaluation) evalCheckout() {
	entry := p.entry(models.ActionCheckout)
	if entry == nil {
		return
	}
	if entry.Executed {
		p.skip(models.ActionCheckout, "checkout already executed today")
		return
	}
	if p.in.State == models.StateCheckedOut {
		p.skip(models.ActionCheckout, "already checked out")
		return
	}
	if willCheckin, _ := p.checkinEffective(); !willCheckin {
		p.skip(models.ActionCheckout, "no checkin today")
		return
	}
	p.execute(models.ActionCheckout, p.resolvedAt(entry))
}

// breakNeeded implements the 6h labor rule: a break is required when the
// expected work duration reaches 361 minutes.
func breakNeeded(expected time.Duration) bool {
	return expected >= models.BreakRequiredMinutes*time.Minute
}
