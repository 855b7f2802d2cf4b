// Package pipeline writes attendance corrections and leave requests
// through a ladder of
// progressively more expensive methods: direct record write, approval
// workflow, simulated time-clock punches, and finally the browser. Which
// rung works is company policy, changes month to month, and is only
// discoverable by trying; the strategy ledger remembers the answer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kintai/internal/domain"
	"kintai/internal/metrics"
	"kintai/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// companyBlocks carries policy blocks learned during one batch so entry 1's
// failures spare entries 2..N the same doomed calls.
type companyBlocks struct {
	directDisabled  bool
	approvalBlocked bool
	approvalRouteID int64
}

// WritePipeline executes corrections through the fallback ladder.
type WritePipeline struct {
	hr        domain.HRClient
	sessions  domain.SessionManager
	ledger    domain.StrategyStore
	store     domain.Store
	clock     domain.Clock
	limiter   *rate.Limiter
	webUsable bool
	logger    zerolog.Logger
}

func New(hr domain.HRClient, sessions domain.SessionManager, ledger domain.StrategyStore,
	store domain.Store, clk domain.Clock, webUsable bool, logger *zerolog.Logger) *WritePipeline {
	return &WritePipeline{
		hr:       hr,
		sessions: sessions,
		ledger:   ledger,
		store:    store,
		clock:    clk,
		// Sequential pacing between platform calls; bursts trip the
		// platform's implicit rate limits and cascade into failures.
		limiter:   rate.NewLimiter(rate.Every(models.BatchCallInterval), 1),
		webUsable: webUsable,
		logger:    logger.With().Str("component", "write-pipeline").Logger(),
	}
}

// SubmitCorrection writes a single entry, consulting the ledger first.
func (p *WritePipeline) SubmitCorrection(ctx context.Context, entry *models.CorrectionEntry) models.EntryResult {
	blocks := &companyBlocks{}
	return p.submitEntry(ctx, entry, models.OpCorrection, blocks)
}

func (p *WritePipeline) submitEntry(ctx context.Context, entry *models.CorrectionEntry,
	op models.OperationType, blocks *companyBlocks) models.EntryResult {

	result := models.EntryResult{Date: entry.DateKey()}
	started := p.clock.Now()

	strategy, err := p.runLadder(ctx, models.MonthKey(entry.Date), entry.DateKey(), op,
		func(s models.WriteStrategy) bool { return p.tierEligible(s, blocks) },
		func(ctx context.Context, s models.WriteStrategy) error { return p.runTier(ctx, s, entry, blocks) })
	result.Method = strategy
	if err != nil {
		result.Error = err.Error()
	} else {
		result.Success = true
	}

	// The audit row goes in before anyone sees the result; the log stays
	// authoritative even if the HTTP response is lost.
	p.audit(ctx, models.ActionCorrection, result, started)
	return result
}

// SubmitLeave files one leave request through the ladder rungs that can
// carry it. A leave day has no punches to write or replay, so only the
// approval workflow and the browser form are eligible; the ledger still
// caches the answer per month under its own operation key.
func (p *WritePipeline) SubmitLeave(ctx context.Context, leave *models.LeaveEntry) models.EntryResult {
	blocks := &companyBlocks{}
	result := models.EntryResult{Date: leave.DateKey()}
	started := p.clock.Now()

	strategy, err := p.runLadder(ctx, models.MonthKey(leave.Date), leave.DateKey(), models.OpLeave,
		func(s models.WriteStrategy) bool { return p.leaveTierEligible(s, blocks) },
		func(ctx context.Context, s models.WriteStrategy) error { return p.runLeaveTier(ctx, s, leave, blocks) })
	result.Method = strategy
	if err != nil {
		result.Error = err.Error()
	} else {
		result.Success = true
	}

	p.audit(ctx, models.ActionLeave, result, started)
	return result
}

// WithdrawRequest pulls back a pending correction or leave request through
// the browser; the platform offers no API for withdrawal.
func (p *WritePipeline) WithdrawRequest(ctx context.Context, requestKind string, id int64) error {
	return p.sessions.WithSession(ctx, func(s domain.Session) error {
		return s.WithdrawRequest(ctx, requestKind, id)
	})
}

// runLadder attempts strategies in cost order. A cached best strategy
// short-circuits straight to the known-good rung; cheaper rungs that have
// already failed this month are not retried speculatively.
func (p *WritePipeline) runLadder(ctx context.Context, month, dateKey string, op models.OperationType,
	eligible func(models.WriteStrategy) bool,
	run func(context.Context, models.WriteStrategy) error) (models.WriteStrategy, error) {

	cached, err := p.ledger.Get(ctx, month, op)
	if err != nil {
		p.logger.Warn().Err(err).Msg("strategy ledger read failed, probing from the top")
		cached = nil
	}

	// Start the ladder at the cached best strategy: every cheaper rung
	// already failed for this month, re-trying it is a wasted call.
	start := 0
	if cached != nil && cached.BestStrategy != "" {
		start = strategyIndex(cached.BestStrategy)
	}

	var lastErr error
	var lastStrategy models.WriteStrategy
	for _, strategy := range models.StrategyOrder[start:] {
		if !eligible(strategy) {
			continue
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return lastStrategy, err
		}

		tierErr := run(ctx, strategy)
		if tierErr == nil {
			metrics.IncStrategy(string(strategy), "success")
			p.recordSuccess(ctx, month, op, strategy, cached)
			return strategy, nil
		}

		metrics.IncStrategy(string(strategy), "failure")
		p.logger.Warn().Err(tierErr).Str("strategy", string(strategy)).Str("date", dateKey).
			Msg("write tier failed, falling back")
		lastErr = tierErr
		lastStrategy = strategy
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no write strategy available")
	}
	return lastStrategy, lastErr
}

func strategyIndex(strategy models.WriteStrategy) int {
	for i, s := range models.StrategyOrder {
		if s == strategy {
			return i
		}
	}
	return 0
}

// tierEligible applies company-level blocks learned during this batch.
func (p *WritePipeline) tierEligible(strategy models.WriteStrategy, blocks *companyBlocks) bool {
	switch strategy {
	case models.StrategyDirect:
		return !blocks.directDisabled
	case models.StrategyApproval:
		return !blocks.approvalBlocked
	case models.StrategyWeb:
		return p.webUsable
	}
	return true
}

// leaveTierEligible restricts the ladder to the rungs that can express a
// leave request. Direct record writes and time-clock replays carry punches,
// not leave.
func (p *WritePipeline) leaveTierEligible(strategy models.WriteStrategy, blocks *companyBlocks) bool {
	switch strategy {
	case models.StrategyApproval:
		return !blocks.approvalBlocked
	case models.StrategyWeb:
		return p.webUsable
	}
	return false
}

func (p *WritePipeline) runLeaveTier(ctx context.Context, strategy models.WriteStrategy,
	leave *models.LeaveEntry, blocks *companyBlocks) error {

	switch strategy {
	case models.StrategyApproval:
		return p.tryLeaveApproval(ctx, leave, blocks)
	case models.StrategyWeb:
		return p.tryLeaveWeb(ctx, leave)
	}
	return fmt.Errorf("strategy %q cannot carry leave", strategy)
}

func (p *WritePipeline) runTier(ctx context.Context, strategy models.WriteStrategy,
	entry *models.CorrectionEntry, blocks *companyBlocks) error {

	switch strategy {
	case models.StrategyDirect:
		return p.tryDirect(ctx, entry, blocks)
	case models.StrategyApproval:
		return p.tryApproval(ctx, entry, blocks)
	case models.StrategyTimeClock:
		return p.tryTimeClock(ctx, entry)
	case models.StrategyWeb:
		return p.tryWeb(ctx, entry)
	}
	return fmt.Errorf("unknown strategy %q", strategy)
}

// tryDirect is one API call. A permission error means the feature is
// disabled account-wide, not just for this date.
func (p *WritePipeline) tryDirect(ctx context.Context, entry *models.CorrectionEntry, blocks *companyBlocks) error {
	err := p.hr.UpdateWorkRecord(ctx, entry)
	if errors.Is(err, domain.ErrPermissionDenied) {
		blocks.directDisabled = true
	}
	return err
}

// tryApproval discovers a route once per batch, then submits through it.
func (p *WritePipeline) tryApproval(ctx context.Context, entry *models.CorrectionEntry, blocks *companyBlocks) error {
	if blocks.approvalRouteID == 0 {
		routeID, err := p.hr.FindApprovalRoute(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrRouteUnsupported) {
				blocks.approvalBlocked = true
			}
			return err
		}
		blocks.approvalRouteID = routeID
	}

	err := p.hr.SubmitWorkTimeApproval(ctx, entry, blocks.approvalRouteID)
	if errors.Is(err, domain.ErrRouteUnsupported) {
		blocks.approvalBlocked = true
	}
	return err
}

// tryTimeClock replays the day as sequential punches. No true backdating,
// but often permitted when the two cheaper paths are not.
func (p *WritePipeline) tryTimeClock(ctx context.Context, entry *models.CorrectionEntry) error {
	type punch struct {
		action models.ActionType
		at     *time.Time
	}

	var punches []punch
	punches = append(punches, punch{models.ActionCheckin, entry.ClockInAt})
	for i := range entry.BreakRecords {
		br := &entry.BreakRecords[i]
		punches = append(punches, punch{models.ActionBreakStart, &br.ClockInAt})
		punches = append(punches, punch{models.ActionBreakEnd, &br.ClockOutAt})
	}
	punches = append(punches, punch{models.ActionCheckout, entry.ClockOutAt})

	for _, pn := range punches {
		if pn.at == nil {
			continue
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := p.hr.PostTimeClock(ctx, pn.action, *pn.at); err != nil {
			return fmt.Errorf("time clock %s: %w", pn.action, err)
		}
	}
	return nil
}

// tryLeaveApproval mirrors tryApproval for the leave workflow, sharing the
// per-batch route discovery and its blocks.
func (p *WritePipeline) tryLeaveApproval(ctx context.Context, leave *models.LeaveEntry, blocks *companyBlocks) error {
	if blocks.approvalRouteID == 0 {
		routeID, err := p.hr.FindApprovalRoute(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrRouteUnsupported) {
				blocks.approvalBlocked = true
			}
			return err
		}
		blocks.approvalRouteID = routeID
	}

	err := p.hr.SubmitLeaveApproval(ctx, leave, blocks.approvalRouteID)
	if errors.Is(err, domain.ErrRouteUnsupported) {
		blocks.approvalBlocked = true
	}
	return err
}

// tryWeb is the last resort: the native form through the automation session.
func (p *WritePipeline) tryWeb(ctx context.Context, entry *models.CorrectionEntry) error {
	return p.sessions.WithSession(ctx, func(s domain.Session) error {
		result, err := s.SubmitCorrection(ctx, entry)
		if err != nil {
			return err
		}
		if !result.Success {
			return &domain.FormValidationError{Message: result.Error}
		}
		return nil
	})
}

func (p *WritePipeline) tryLeaveWeb(ctx context.Context, leave *models.LeaveEntry) error {
	return p.sessions.WithSession(ctx, func(s domain.Session) error {
		result, err := s.SubmitLeaveRequest(ctx, leave.LeaveType, leave.Date, leave.Reason)
		if err != nil {
			return err
		}
		if !result.Success {
			return &domain.FormValidationError{Message: result.Error}
		}
		return nil
	})
}

// recordSuccess updates the ledger. The best strategy only moves to a more
// expensive rung when a cheaper one was observed failing, never
// speculatively; succeeding via a cheaper rung upgrades it.
func (p *WritePipeline) recordSuccess(ctx context.Context, month string,
	op models.OperationType, strategy models.WriteStrategy, cached *models.StrategyCacheEntry) {

	entry := cached
	if entry == nil {
		entry = &models.StrategyCacheEntry{Month: month, Operation: op}
	}

	switch strategy {
	case models.StrategyDirect:
		entry.DirectOK = true
	case models.StrategyApproval:
		entry.ApprovalOK = true
	case models.StrategyTimeClock:
		entry.TimeClockOK = true
	}
	// Setting best to the rung that just worked is safe in both
	// directions: the ladder only reaches an expensive rung after the
	// cheaper ones failed (an observed downgrade), and succeeding via a
	// cheaper rung is an upgrade.
	entry.BestStrategy = strategy
	entry.DetectedAt = p.clock.Now()

	if err := p.ledger.Set(ctx, entry); err != nil {
		p.logger.Warn().Err(err).Msg("strategy ledger write failed")
	}
}

func (p *WritePipeline) audit(ctx context.Context, action models.ActionType,
	result models.EntryResult, started time.Time) {

	status := models.ExecSuccess
	if !result.Success {
		status = models.ExecFailure
	}
	logEntry := &models.ExecutionLogEntry{
		ActionType:    action,
		ScheduledTime: result.Date,
		ExecutedAt:    p.clock.Now(),
		Status:        status,
		Trigger:       models.TriggerBatch,
		ErrorMessage:  result.Error,
		DurationMS:    p.clock.Now().Sub(started).Milliseconds(),
	}
	if err := p.store.AppendExecutionLog(ctx, logEntry); err != nil {
		p.logger.Error().Err(err).Msg("audit log write failed")
	}
}
