package scheduler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"kintai/internal/models"
)

// resolveSchedule produces today's schedule entries: one per enabled
// action, reusing an existing unexecuted entry (restart safety) and
// computing a fresh time otherwise.
func (s *Scheduler) resolveSchedule(ctx context.Context, now time.Time) (map[models.ActionType]*models.ScheduleEntry, error) {
	date := now.Format("2006-01-02")
	schedule := make(map[models.ActionType]*models.ScheduleEntry)

	for _, action := range models.AllActions {
		actionCfg, ok := s.cfg.Actions[action]
		if !ok || !actionCfg.Enabled {
			continue
		}

		existing, err := s.store.GetScheduleEntry(ctx, date, action)
		if err != nil {
			return nil, fmt.Errorf("load schedule entry: %w", err)
		}
		if existing != nil {
			// Already-executed entries stay as-is for the planner's
			// completed-today checks; unexecuted ones keep their time.
			schedule[action] = existing
			continue
		}

		resolved, err := s.resolveTime(action, schedule)
		if err != nil {
			return nil, err
		}

		entry := &models.ScheduleEntry{
			Date:         date,
			ActionType:   action,
			ResolvedTime: resolved,
		}
		if err := s.store.UpsertScheduleEntry(ctx, entry); err != nil {
			return nil, fmt.Errorf("persist schedule entry: %w", err)
		}
		schedule[action] = entry
	}

	return schedule, nil
}

// loadSchedule reads today's persisted entries without re-resolving.
func (s *Scheduler) loadSchedule(ctx context.Context, now time.Time) (map[models.ActionType]*models.ScheduleEntry, error) {
	entries, err := s.store.ListScheduleEntries(ctx, now.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	schedule := make(map[models.ActionType]*models.ScheduleEntry, len(entries))
	for _, entry := range entries {
		schedule[entry.ActionType] = entry
	}
	return schedule, nil
}

// resolveTime computes the HH:MM for one action, fixed or uniformly random
// inside the configured window. break_end is clamped so the break never
// exceeds the legal cap.
func (s *Scheduler) resolveTime(action models.ActionType, resolved map[models.ActionType]*models.ScheduleEntry) (string, error) {
	actionCfg := s.cfg.Actions[action]

	var minutes int
	switch actionCfg.Mode {
	case "fixed":
		t, err := time.Parse("15:04", actionCfg.FixedTime)
		if err != nil {
			return "", fmt.Errorf("action %s: invalid fixed_time: %w", action, err)
		}
		minutes = t.Hour()*60 + t.Minute()
	case "random":
		start, err := time.Parse("15:04", actionCfg.WindowStart)
		if err != nil {
			return "", fmt.Errorf("action %s: invalid window_start: %w", action, err)
		}
		end, err := time.Parse("15:04", actionCfg.WindowEnd)
		if err != nil {
			return "", fmt.Errorf("action %s: invalid window_end: %w", action, err)
		}
		startMin := start.Hour()*60 + start.Minute()
		endMin := end.Hour()*60 + end.Minute()
		if endMin <= startMin {
			return "", fmt.Errorf("action %s: empty random window", action)
		}
		minutes = startMin + rand.IntN(endMin-startMin+1)
	default:
		return "", fmt.Errorf("action %s: unknown mode %q", action, actionCfg.Mode)
	}

	if action == models.ActionBreakEnd {
		if startEntry := resolved[models.ActionBreakStart]; startEntry != nil {
			if t, err := time.Parse("15:04", startEntry.ResolvedTime); err == nil {
				latest := t.Hour()*60 + t.Minute() + models.MaxBreakMinutes
				if minutes > latest {
					minutes = latest
				}
			}
		}
	}

	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60), nil
}
