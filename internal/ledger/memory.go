package ledger

import (
	"context"
	"sync"

	"kintai/internal/models"
)

// MemoryStrategyStore keeps strategy cache entries in-process. Entries are
// keyed by (month, operation); stale months are simply never read again, so
// a periodic sweep drops everything outside the current month.
type MemoryStrategyStore struct {
	mu      sync.RWMutex
	entries map[string]*models.StrategyCacheEntry
}

func NewMemoryStrategyStore() *MemoryStrategyStore {
	return &MemoryStrategyStore{entries: make(map[string]*models.StrategyCacheEntry)}
}

func key(month string, op models.OperationType) string {
	return month + ":" + string(op)
}

func (s *MemoryStrategyStore) Get(ctx context.Context, month string, op models.OperationType) (*models.StrategyCacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key(month, op)]
	if !ok {
		return nil, nil
	}
	cp := *entry
	return &cp, nil
}

func (s *MemoryStrategyStore) Set(ctx context.Context, entry *models.StrategyCacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	s.entries[key(entry.Month, entry.Operation)] = &cp
	return nil
}

// Prune drops entries for months other than keep.
func (s *MemoryStrategyStore) Prune(keep string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, entry := range s.entries {
		if entry.Month != keep {
			delete(s.entries, k)
		}
	}
}
