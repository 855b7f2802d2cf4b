package pipeline

import (
	"context"

	"kintai/internal/models"
)

// RunBatch processes entries strictly in order, one at a time. Sequential
// processing trades latency for correctness: concurrent writes against the
// platform trip its rate limits and can interleave punches. Company-level
// blocks learned from an early entry apply to every later entry in the same
// batch. Every entry reports its own outcome; a batch is never
// all-or-nothing.
func (p *WritePipeline) RunBatch(ctx context.Context, entries []*models.CorrectionEntry,
	op models.OperationType) []models.EntryResult {

	blocks := &companyBlocks{}
	results := make([]models.EntryResult, 0, len(entries))

	for _, entry := range entries {
		if ctx.Err() != nil {
			results = append(results, models.EntryResult{
				Date:  entry.DateKey(),
				Error: ctx.Err().Error(),
			})
			continue
		}
		results = append(results, p.submitEntry(ctx, entry, op, blocks))
	}

	p.logger.Info().Int("entries", len(entries)).
		Bool("direct_disabled", blocks.directDisabled).
		Bool("approval_blocked", blocks.approvalBlocked).
		Msg("batch finished")
	return results
}
