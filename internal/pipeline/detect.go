package pipeline

import (
	"context"
	"errors"

	"kintai/internal/domain"
	"kintai/internal/models"
)

// DetectStrategy probes which write paths the company currently permits and
// records the result for the month. sample must describe a date whose
// record can be rewritten with its existing values, so the direct probe is
// an idempotent write rather than a visible change.
func (p *WritePipeline) DetectStrategy(ctx context.Context, sample *models.CorrectionEntry,
	op models.OperationType) (*models.StrategyCacheEntry, error) {

	month := models.MonthKey(sample.Date)
	entry := &models.StrategyCacheEntry{Month: month, Operation: op}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	directErr := p.hr.UpdateWorkRecord(ctx, sample)
	entry.DirectOK = directErr == nil
	if directErr != nil && !isPolicyBlock(directErr) {
		// Transient failure, not a policy answer; report it instead of
		// caching a wrong capability for the whole month.
		return nil, directErr
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	_, routeErr := p.hr.FindApprovalRoute(ctx)
	entry.ApprovalOK = routeErr == nil
	if routeErr != nil && !isPolicyBlock(routeErr) {
		return nil, routeErr
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	_, clockErr := p.hr.AvailableClockTypes(ctx)
	entry.TimeClockOK = clockErr == nil

	entry.BestStrategy = entry.Best()
	entry.DetectedAt = p.clock.Now()

	if err := p.ledger.Set(ctx, entry); err != nil {
		p.logger.Warn().Err(err).Msg("strategy ledger write failed after detect")
	}

	p.logger.Info().Str("month", month).Str("best", string(entry.BestStrategy)).
		Bool("direct", entry.DirectOK).Bool("approval", entry.ApprovalOK).
		Bool("time_clock", entry.TimeClockOK).Msg("strategy detected")
	return entry, nil
}

// isPolicyBlock distinguishes "the company forbids this path" from a
// transient failure.
func isPolicyBlock(err error) bool {
	return errors.Is(err, domain.ErrPermissionDenied) ||
		errors.Is(err, domain.ErrRouteUnsupported)
}
