package planner

import (
	"testing"
	"time"

	"kintai/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokyo = mustLoadLocation("Asia/Tokyo")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func day(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2026, 9, 1, 0, 0, 0, 0, tokyo)
}

func at(t *testing.T, hhmm string) time.Time {
	t.Helper()
	parsed, err := time.ParseInLocation("2006-01-02 15:04", "2026-09-01 "+hhmm, tokyo)
	require.NoError(t, err)
	return parsed
}

func schedule(entries map[models.ActionType]string) map[models.ActionType]*models.ScheduleEntry {
	out := make(map[models.ActionType]*models.ScheduleEntry, len(entries))
	for action, hhmm := range entries {
		out[action] = &models.ScheduleEntry{
			Date:         "2026-09-01",
			ActionType:   action,
			ResolvedTime: hhmm,
		}
	}
	return out
}

func fullDay() map[models.ActionType]*models.ScheduleEntry {
	return schedule(map[models.ActionType]string{
		models.ActionCheckin:    "09:00",
		models.ActionBreakStart: "12:00",
		models.ActionBreakEnd:   "13:00",
		models.ActionCheckout:   "18:00",
	})
}

func plannedActions(planned []Planned) []models.ActionType {
	out := make([]models.ActionType, 0, len(planned))
	for _, p := range planned {
		out = append(out, p.Action)
	}
	return out
}

func skippedActions(skipped []Skipped) []models.ActionType {
	out := make([]models.ActionType, 0, len(skipped))
	for _, s := range skipped {
		out = append(out, s.Action)
	}
	return out
}

func TestPlanUnknownStateSkipsEverything(t *testing.T) {
	result := Plan(Input{
		State:    models.StateUnknown,
		Schedule: fullDay(),
		Now:      at(t, "08:00"),
		Location: tokyo,
	})

	assert.Empty(t, result.Execute)
	assert.Empty(t, result.Immediate)
	assert.Len(t, result.Skip, 4)
	for _, s := range result.Skip {
		assert.Equal(t, "state unknown", s.Reason)
	}
}

func TestPlanFreshMorning(t *testing.T) {
	result := Plan(Input{
		State:    models.StateNotCheckedIn,
		Schedule: fullDay(),
		Now:      at(t, "08:00"),
		Location: tokyo,
	})

	assert.Empty(t, result.Immediate)
	assert.Empty(t, result.Skip)
	require.Len(t, result.Execute, 4)
	assert.Equal(t, models.AllActions, plannedActions(result.Execute))
	assert.Equal(t, at(t, "09:00"), result.Execute[0].At)
	assert.Equal(t, at(t, "18:00"), result.Execute[3].At)
}

func TestPlanLateCheckin(t *testing.T) {
	t.Run("WithinGrace", func(t *testing.T) {
		result := Plan(Input{
			State:    models.StateNotCheckedIn,
			Schedule: fullDay(),
			Now:      at(t, "09:04"),
			Location: tokyo,
		})
		assert.Contains(t, plannedActions(result.Execute), models.ActionCheckin)
	})

	t.Run("PastGrace", func(t *testing.T) {
		result := Plan(Input{
			State:    models.StateNotCheckedIn,
			Schedule: fullDay(),
			Now:      at(t, "09:06"),
			Location: tokyo,
		})
		assert.NotContains(t, plannedActions(result.Execute), models.ActionCheckin)
		assert.Contains(t, skippedActions(result.Skip), models.ActionCheckin)
		// Without a checkin nothing else can run either.
		assert.Contains(t, skippedActions(result.Skip), models.ActionCheckout)
		assert.Contains(t, skippedActions(result.Skip), models.ActionBreakStart)
	})
}

func TestPlanBreakThreshold(t *testing.T) {
	// Expected duration is checkout minus effective checkin. 09:00 to 15:00
	// is 360 minutes, one under the threshold; 09:00 to 15:01 is 361.
	t.Run("JustUnder", func(t *testing.T) {
		sched := schedule(map[models.ActionType]string{
			models.ActionCheckin:    "09:00",
			models.ActionBreakStart: "12:00",
			models.ActionBreakEnd:   "13:00",
			models.ActionCheckout:   "15:00",
		})
		result := Plan(Input{
			State:    models.StateNotCheckedIn,
			Schedule: sched,
			Now:      at(t, "08:00"),
			Location: tokyo,
		})
		assert.Equal(t, []models.ActionType{models.ActionCheckin, models.ActionCheckout}, plannedActions(result.Execute))
		assert.ElementsMatch(t, []models.ActionType{models.ActionBreakStart, models.ActionBreakEnd}, skippedActions(result.Skip))
	})

	t.Run("AtThreshold", func(t *testing.T) {
		sched := schedule(map[models.ActionType]string{
			models.ActionCheckin:    "09:00",
			models.ActionBreakStart: "12:00",
			models.ActionBreakEnd:   "13:00",
			models.ActionCheckout:   "15:01",
		})
		result := Plan(Input{
			State:    models.StateNotCheckedIn,
			Schedule: sched,
			Now:      at(t, "08:00"),
			Location: tokyo,
		})
		assert.Len(t, result.Execute, 4)
		assert.Empty(t, result.Skip)
	})
}

func TestPlanMidDayWorking(t *testing.T) {
	// Agent restarted mid-day: platform says working, checkin punch exists.
	result := Plan(Input{
		State:    models.StateWorking,
		Schedule: fullDay(),
		Punches:  []models.Punch{{Type: models.ActionCheckin, At: at(t, "09:01")}},
		Now:      at(t, "10:30"),
		Location: tokyo,
	})

	assert.Contains(t, skippedActions(result.Skip), models.ActionCheckin)
	assert.Equal(t, []models.ActionType{models.ActionBreakStart, models.ActionBreakEnd, models.ActionCheckout},
		plannedActions(result.Execute))
}

func TestPlanWorkingWithoutPunchHistory(t *testing.T) {
	// Working state but the punch list is empty (browser backend cannot list
	// punches). The scheduled checkin time anchors the duration estimate.
	result := Plan(Input{
		State:    models.StateWorking,
		Schedule: fullDay(),
		Now:      at(t, "10:30"),
		Location: tokyo,
	})

	assert.Contains(t, skippedActions(result.Skip), models.ActionCheckin)
	assert.Contains(t, plannedActions(result.Execute), models.ActionCheckout)
	assert.Contains(t, plannedActions(result.Execute), models.ActionBreakStart)
}

func TestPlanOnBreakOverrun(t *testing.T) {
	t.Run("OverCap", func(t *testing.T) {
		result := Plan(Input{
			State:    models.StateOnBreak,
			Schedule: fullDay(),
			Punches: []models.Punch{
				{Type: models.ActionCheckin, At: at(t, "09:00")},
				{Type: models.ActionBreakStart, At: at(t, "12:00")},
			},
			Now:      at(t, "13:05"),
			Location: tokyo,
		})

		require.Len(t, result.Immediate, 1)
		assert.Equal(t, models.ActionBreakEnd, result.Immediate[0].Action)
		assert.Contains(t, skippedActions(result.Skip), models.ActionBreakStart)
	})

	t.Run("WithinCap", func(t *testing.T) {
		result := Plan(Input{
			State:    models.StateOnBreak,
			Schedule: fullDay(),
			Punches: []models.Punch{
				{Type: models.ActionCheckin, At: at(t, "09:00")},
				{Type: models.ActionBreakStart, At: at(t, "12:10")},
			},
			Now:      at(t, "12:40"),
			Location: tokyo,
		})

		assert.Empty(t, result.Immediate)
		assert.Equal(t, []models.ActionType{models.ActionBreakEnd, models.ActionCheckout},
			plannedActions(result.Execute))
	})
}

func TestPlanBreakAlreadyCompleted(t *testing.T) {
	result := Plan(Input{
		State:    models.StateWorking,
		Schedule: fullDay(),
		Punches: []models.Punch{
			{Type: models.ActionCheckin, At: at(t, "09:00")},
			{Type: models.ActionBreakStart, At: at(t, "12:00")},
			{Type: models.ActionBreakEnd, At: at(t, "12:45")},
		},
		Now:      at(t, "14:00"),
		Location: tokyo,
	})

	assert.Equal(t, []models.ActionType{models.ActionCheckout}, plannedActions(result.Execute))
	assert.ElementsMatch(t,
		[]models.ActionType{models.ActionCheckin, models.ActionBreakStart, models.ActionBreakEnd},
		skippedActions(result.Skip))
}

func TestPlanCheckedOut(t *testing.T) {
	result := Plan(Input{
		State:    models.StateCheckedOut,
		Schedule: fullDay(),
		Punches: []models.Punch{
			{Type: models.ActionCheckin, At: at(t, "09:00")},
			{Type: models.ActionCheckout, At: at(t, "17:30")},
		},
		Now:      at(t, "17:45"),
		Location: tokyo,
	})

	assert.Empty(t, result.Execute)
	assert.Empty(t, result.Immediate)
	assert.Contains(t, skippedActions(result.Skip), models.ActionCheckout)
}

func TestPlanExecutedEntriesAreNotRerun(t *testing.T) {
	sched := fullDay()
	sched[models.ActionCheckin].Executed = true

	result := Plan(Input{
		State:    models.StateWorking,
		Schedule: sched,
		Now:      at(t, "10:00"),
		Location: tokyo,
	})

	assert.NotContains(t, plannedActions(result.Execute), models.ActionCheckin)
	assert.Contains(t, skippedActions(result.Skip), models.ActionCheckin)
}

func TestPlanNoCheckoutScheduled(t *testing.T) {
	sched := schedule(map[models.ActionType]string{
		models.ActionCheckin:    "09:00",
		models.ActionBreakStart: "12:00",
		models.ActionBreakEnd:   "13:00",
	})
	result := Plan(Input{
		State:    models.StateNotCheckedIn,
		Schedule: sched,
		Now:      at(t, "08:00"),
		Location: tokyo,
	})

	assert.Equal(t, []models.ActionType{models.ActionCheckin}, plannedActions(result.Execute))
	assert.ElementsMatch(t, []models.ActionType{models.ActionBreakStart, models.ActionBreakEnd},
		skippedActions(result.Skip))
}

func TestPlanRecheckinAfterCheckout(t *testing.T) {
	// Checked out at lunch, came back. Last checkin punch wins for the
	// duration anchor; checkout is planned again.
	result := Plan(Input{
		State:    models.StateWorking,
		Schedule: fullDay(),
		Punches: []models.Punch{
			{Type: models.ActionCheckin, At: at(t, "09:00")},
			{Type: models.ActionCheckout, At: at(t, "12:00")},
			{Type: models.ActionCheckin, At: at(t, "13:00")},
		},
		Now:      at(t, "14:00"),
		Location: tokyo,
	})

	assert.Contains(t, plannedActions(result.Execute), models.ActionCheckout)
	assert.Contains(t, skippedActions(result.Skip), models.ActionCheckin)
}
