// Package scheduler owns the daily automation loop: at every rollover it
// resolves today's punch times, probes the live account state, asks the
// planner what to do, and arms one-shot timers for the survivors. After
// every successful execution it re-probes and re-plans so timers for
// now-invalid actions are cancelled instead of firing uselessly later.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kintai/internal/config"
	"kintai/internal/domain"
	"kintai/internal/events"
	"kintai/internal/metrics"
	"kintai/internal/models"
	"kintai/internal/planner"

	"github.com/rs/zerolog"
)

// PunchSource reports the punches already recorded today. The live API
// client and the mock backend both satisfy it; the browser backend has no
// cheap punch history and uses Empty.
type PunchSource interface {
	TodayPunches(ctx context.Context, date time.Time) ([]models.Punch, error)
}

// EmptyPunchSource always reports no punches.
type EmptyPunchSource struct{}

func (EmptyPunchSource) TodayPunches(context.Context, time.Time) ([]models.Punch, error) {
	return nil, nil
}

// StartupAnalysis is the "what will happen today" snapshot served to the
// dashboard.
type StartupAnalysis struct {
	State        models.AttendanceState `json:"state"`
	Reason       string                 `json:"reason"`
	Execute      []planner.Planned      `json:"execute"`
	Immediate    []planner.Planned      `json:"immediate"`
	Skip         []planner.Skipped      `json:"skip"`
	Retrying     bool                   `json:"retrying,omitempty"`
	FallbackTime *time.Time             `json:"fallback_time,omitempty"`
	PlannedAt    time.Time              `json:"planned_at"`
}

type Scheduler struct {
	cfg     config.ScheduleConfig
	store   domain.Store
	backend domain.AttendanceBackend
	punches PunchSource
	clock   domain.Clock
	bus     domain.EventPublisher
	logger  zerolog.Logger

	runCtx        context.Context
	retryInterval time.Duration

	mu         sync.Mutex
	timers     map[models.ActionType]*time.Timer
	retryTimer *time.Timer
	analysis   *StartupAnalysis
	replanning bool
}

func New(cfg config.ScheduleConfig, store domain.Store, backend domain.AttendanceBackend,
	punches PunchSource, clk domain.Clock, bus domain.EventPublisher, logger *zerolog.Logger) *Scheduler {
	if punches == nil {
		punches = EmptyPunchSource{}
	}
	return &Scheduler{
		cfg:           cfg,
		store:         store,
		backend:       backend,
		punches:       punches,
		clock:         clk,
		bus:           bus,
		logger:        logger.With().Str("component", "scheduler").Logger(),
		timers:        make(map[models.ActionType]*time.Timer),
		retryInterval: models.ProbeRetryInterval,
	}
}

// Run plans the current day immediately, then re-plans at every rollover
// until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.runCtx = ctx
	s.logger.Info().Str("rollover", s.cfg.RolloverTime).Str("backend", s.backend.Backend()).Msg("scheduler started")
	defer s.logger.Info().Msg("scheduler stopped")

	s.PlanDay(ctx)

	for {
		wait := s.untilNextRollover()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.cancelAllTimers()
			return
		case <-timer.C:
			s.PlanDay(ctx)
		}
	}
}

func (s *Scheduler) untilNextRollover() time.Duration {
	now := s.clock.Now()
	rollover, err := time.Parse("15:04", s.cfg.RolloverTime)
	if err != nil {
		rollover, _ = time.Parse("15:04", models.DefaultRolloverTime)
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), rollover.Hour(), rollover.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

// PlanDay performs one full resolve/probe/decide/arm cycle.
func (s *Scheduler) PlanDay(ctx context.Context) {
	now := s.clock.Now()
	schedule, err := s.resolveSchedule(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("schedule resolution failed")
		return
	}
	if len(schedule) == 0 {
		s.logger.Info().Msg("no actions enabled today")
		return
	}

	state := s.probeWithRetry(ctx)
	if state == models.StateUnknown {
		s.armLastChanceProbe(ctx, schedule)
		return
	}

	s.applyPlan(ctx, state, schedule, models.TriggerScheduled)
}

// probeWithRetry is tier 1 of the retry policy: a transient outage at
// rollover must not silently cancel the whole day, so a failed probe gets
// three rapid retries (four attempts in all) before tier 2 takes over.
func (s *Scheduler) probeWithRetry(ctx context.Context) models.AttendanceState {
	for attempt := 1; ; attempt++ {
		state, err := s.backend.Probe(ctx)
		if err == nil && state != models.StateUnknown {
			return state
		}
		if attempt > models.ProbeRetryCount {
			s.logger.Warn().Int("attempts", attempt).Msg("state probe still unknown after rapid retries")
			return models.StateUnknown
		}
		s.logger.Warn().Err(err).Int("attempt", attempt).Msg("state probe inconclusive, retrying")

		select {
		case <-ctx.Done():
			return models.StateUnknown
		case <-time.After(s.retryInterval):
		}
	}
}

// armLastChanceProbe is tier 2: exactly one more probe shortly before the
// day's checkin time, the last moment automation can still be useful. A
// checkin time already passed means we re-plan immediately with whatever
// the probe says.
func (s *Scheduler) armLastChanceProbe(ctx context.Context, schedule map[models.ActionType]*models.ScheduleEntry) {
	var fallback time.Time
	if entry := schedule[models.ActionCheckin]; entry != nil {
		if at, err := entry.ResolvedAt(s.clock.Location()); err == nil {
			fallback = at.Add(-models.ProbeLastChanceLead)
		}
	}

	now := s.clock.Now()
	s.setAnalysis(&StartupAnalysis{
		State:     models.StateUnknown,
		Reason:    "state probe failed; retry scheduled before checkin",
		Retrying:  true,
		PlannedAt: now,
	})

	replan := func() {
		state, err := s.backend.Probe(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("last-chance probe failed; planning with unknown state")
			state = models.StateUnknown
		}
		s.applyPlan(ctx, state, schedule, models.TriggerScheduled)
	}

	if fallback.IsZero() || !fallback.After(now) {
		s.logger.Warn().Msg("checkin window reached; proceeding with immediate last-chance probe")
		replan()
		return
	}

	s.mu.Lock()
	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}
	s.retryTimer = time.AfterFunc(fallback.Sub(now), replan)
	s.mu.Unlock()

	s.mu.Lock()
	if s.analysis != nil {
		s.analysis.FallbackTime = &fallback
	}
	s.mu.Unlock()

	s.logger.Info().Time("fallback", fallback).Msg("last-chance probe armed")
}

// applyPlan runs the planner and arms/cancels timers accordingly.
func (s *Scheduler) applyPlan(ctx context.Context, state models.AttendanceState,
	schedule map[models.ActionType]*models.ScheduleEntry, trigger models.ExecutionTrigger) {

	now := s.clock.Now()
	punches, err := s.punches.TodayPunches(ctx, now)
	if err != nil {
		s.logger.Warn().Err(err).Msg("punch history unavailable; planning without it")
		punches = nil
	}

	result := planner.Plan(planner.Input{
		State:    state,
		Schedule: schedule,
		Punches:  punches,
		Now:      now,
		Location: s.clock.Location(),
	})

	s.setAnalysis(&StartupAnalysis{
		State:     state,
		Reason:    result.Reason,
		Execute:   result.Execute,
		Immediate: result.Immediate,
		Skip:      result.Skip,
		PlannedAt: now,
	})
	_ = s.bus.PublishJSON(events.EventPlanRefreshed, s.Analysis())

	s.logger.Info().Str("state", string(state)).Str("reason", result.Reason).Msg("plan applied")

	// A full re-plan supersedes every armed timer; survivors are re-armed
	// below so no two timers for the same action-date coexist.
	s.cancelAllTimers()

	for _, skipped := range result.Skip {
		s.logger.Info().Str("action", string(skipped.Action)).Str("reason", skipped.Reason).Msg("action skipped")
	}

	for _, planned := range result.Immediate {
		s.execute(ctx, planned.Action, models.TriggerImmediate)
	}

	for _, planned := range result.Execute {
		delay := planned.At.Sub(s.clock.Now())
		if delay <= 0 {
			// Overdue but inside the planner's tolerance: run now.
			s.execute(ctx, planned.Action, trigger)
			continue
		}
		s.armTimer(planned.Action, delay, trigger)
	}
}

func (s *Scheduler) armTimer(action models.ActionType, delay time.Duration, trigger models.ExecutionTrigger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[action]; ok {
		existing.Stop()
	}
	s.timers[action] = time.AfterFunc(delay, func() {
		ctx := s.runCtx
		if ctx == nil {
			ctx = context.Background()
		}
		s.execute(ctx, action, trigger)
	})
	s.logger.Info().Str("action", string(action)).Dur("in", delay).Msg("timer armed")
}

func (s *Scheduler) cancelAllTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for action, timer := range s.timers {
		timer.Stop()
		delete(s.timers, action)
	}
}

// execute runs one action through the backend, writes the audit row, and on
// success refreshes the plan so stale timers die immediately.
func (s *Scheduler) execute(ctx context.Context, action models.ActionType, trigger models.ExecutionTrigger) {
	now := s.clock.Now()
	date := now.Format("2006-01-02")
	started := time.Now()

	scheduled := ""
	if entry, err := s.store.GetScheduleEntry(ctx, date, action); err == nil && entry != nil {
		scheduled = entry.ResolvedTime
	}

	execErr := s.backend.ExecutePunch(ctx, action)
	duration := time.Since(started)

	logEntry := &models.ExecutionLogEntry{
		ActionType:    action,
		ScheduledTime: scheduled,
		ExecutedAt:    s.clock.Now(),
		Trigger:       trigger,
		DurationMS:    duration.Milliseconds(),
	}

	if execErr != nil {
		logEntry.Status = models.ExecFailure
		logEntry.ErrorMessage = execErr.Error()
	} else {
		logEntry.Status = models.ExecSuccess
	}

	// Audit first; the log must be authoritative even if everything after
	// this point fails.
	if err := s.store.AppendExecutionLog(ctx, logEntry); err != nil {
		s.logger.Error().Err(err).Msg("audit log write failed")
	}
	metrics.IncPunch(string(action), string(logEntry.Status))

	event := events.PunchEvent{
		Action:    string(action),
		Status:    string(logEntry.Status),
		Trigger:   string(trigger),
		Timestamp: logEntry.ExecutedAt,
	}
	if execErr != nil {
		event.Error = execErr.Error()
		_ = s.bus.PublishJSON(events.EventPunchFailed, event)
		s.logger.Error().Err(execErr).Str("action", string(action)).Msg("punch failed")
		return
	}
	_ = s.bus.PublishJSON(events.EventPunchExecuted, event)
	s.logger.Info().Str("action", string(action)).Str("trigger", string(trigger)).Msg("punch executed")

	if err := s.store.MarkScheduleExecuted(ctx, date, action); err != nil {
		s.logger.Warn().Err(err).Msg("mark schedule executed failed")
	}

	s.refreshPlan(ctx)
}

// refreshPlan re-probes and re-plans after an execution. An unexpected
// state (say a manual checkout) invalidates armed break timers; this is
// where they get cancelled. Non-reentrant: an immediate action fired
// from the refreshed plan runs without triggering another refresh, so a
// backend whose probed state never moves cannot recurse through
// execute/applyPlan forever.
func (s *Scheduler) refreshPlan(ctx context.Context) {
	s.mu.Lock()
	if s.replanning {
		s.mu.Unlock()
		return
	}
	s.replanning = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.replanning = false
		s.mu.Unlock()
	}()

	now := s.clock.Now()
	schedule, err := s.loadSchedule(ctx, now)
	if err != nil {
		s.logger.Warn().Err(err).Msg("refresh: schedule load failed")
		return
	}

	state, err := s.backend.Probe(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("refresh: probe failed; keeping current timers")
		return
	}

	s.applyPlan(ctx, state, schedule, models.TriggerScheduled)
}

// RunManual executes one action immediately on behalf of an API caller.
func (s *Scheduler) RunManual(ctx context.Context, action models.ActionType) error {
	if !action.Valid() {
		return fmt.Errorf("unknown action %q", action)
	}
	s.execute(ctx, action, models.TriggerManual)
	return nil
}

// Analysis returns the latest plan snapshot.
func (s *Scheduler) Analysis() *StartupAnalysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.analysis == nil {
		return nil
	}
	cp := *s.analysis
	return &cp
}

func (s *Scheduler) setAnalysis(a *StartupAnalysis) {
	s.mu.Lock()
	s.analysis = a
	s.mu.Unlock()
}
