// Package tasks tracks long-running batch operations so HTTP callers can
// poll for results instead of holding a connection open across a
// multi-minute browser batch.
package tasks

import (
	"context"
	"sync"
	"time"

	"kintai/internal/domain"
	"kintai/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Store struct {
	clock  domain.Clock
	logger *zerolog.Logger

	mu    sync.RWMutex
	tasks map[string]*models.AsyncTask
}

func NewStore(clk domain.Clock, logger *zerolog.Logger) *Store {
	return &Store{
		clock:  clk,
		logger: logger,
		tasks:  make(map[string]*models.AsyncTask),
	}
}

// Create registers a new running task and returns its handle.
func (s *Store) Create() *models.AsyncTask {
	task := &models.AsyncTask{
		ID:        uuid.NewString(),
		Status:    models.TaskRunning,
		CreatedAt: s.clock.Now(),
	}

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()
	return task
}

// Get returns a snapshot of the task, or nil when unknown or expired.
func (s *Store) Get(id string) *models.AsyncTask {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil
	}
	cp := *task
	cp.Results = append([]models.EntryResult(nil), task.Results...)
	return &cp
}

// Complete marks the task done with its per-entry results.
func (s *Store) Complete(id string, results []models.EntryResult) {
	s.finish(id, models.TaskCompleted, results, "")
}

// Fail marks the task failed before any per-entry results existed.
func (s *Store) Fail(id string, errMsg string) {
	s.finish(id, models.TaskFailed, nil, errMsg)
}

func (s *Store) finish(id string, status models.TaskStatus, results []models.EntryResult, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return
	}
	now := s.clock.Now()
	task.Status = status
	task.Results = results
	task.Error = errMsg
	task.DoneAt = &now
}

// StartGC sweeps expired tasks until ctx is done.
func (s *Store) StartGC(ctx context.Context) {
	ticker := time.NewTicker(models.TaskGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	cutoff := s.clock.Now().Add(-models.TaskTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, task := range s.tasks {
		if task.CreatedAt.Before(cutoff) {
			delete(s.tasks, id)
		}
	}
}

// Len reports how many task records are live.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
