package ledger

import (
	"context"
	"sync/atomic"
	"time"

	"kintai/internal/domain"
	"kintai/internal/models"

	"github.com/rs/zerolog"
)

// FailoverStrategyStore serves the strategy cache from redis while it is
// healthy and falls back to the in-memory store otherwise. The cache is an
// optimization; losing it only costs a re-probe, never correctness.
type FailoverStrategyStore struct {
	primary   domain.StrategyStore
	fallback  domain.StrategyStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64 // unix nanos of the last failed primary attempt
}

func NewFailoverStrategyStore(primary, fallback domain.StrategyStore, logger *zerolog.Logger) *FailoverStrategyStore {
	return &FailoverStrategyStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (s *FailoverStrategyStore) markDown(err error) {
	s.logger.Error().Err(err).Msg("primary strategy store failed, falling back to memory")
	s.isDown.Store(true)
	s.lastCheck.Store(time.Now().UnixNano())
}

func (s *FailoverStrategyStore) shouldRetryPrimary() bool {
	// Try to recover after a minute of serving from memory.
	return s.isDown.Load() && time.Since(time.Unix(0, s.lastCheck.Load())) > time.Minute
}

func (s *FailoverStrategyStore) Get(ctx context.Context, month string, op models.OperationType) (*models.StrategyCacheEntry, error) {
	if !s.isDown.Load() {
		entry, err := s.primary.Get(ctx, month, op)
		if err == nil {
			return entry, nil
		}
		s.markDown(err)
	} else if s.shouldRetryPrimary() {
		entry, err := s.primary.Get(ctx, month, op)
		if err == nil {
			s.isDown.Store(false)
			return entry, nil
		}
		s.lastCheck.Store(time.Now().UnixNano())
	}

	return s.fallback.Get(ctx, month, op)
}

func (s *FailoverStrategyStore) Set(ctx context.Context, entry *models.StrategyCacheEntry) error {
	// Always mirror into memory so a redis outage cannot lose knowledge
	// gained in this process.
	if err := s.fallback.Set(ctx, entry); err != nil {
		return err
	}

	if !s.isDown.Load() {
		if err := s.primary.Set(ctx, entry); err != nil {
			s.markDown(err)
		}
	}
	return nil
}
