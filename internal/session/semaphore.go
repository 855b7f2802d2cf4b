package session

import (
	"context"
	"sync"
)

// Semaphore is a single-owner lock with a FIFO wait queue. Driving two
// browser sessions against the same account risks corrupted UI state and
// duplicate punches, so all UI automation funnels through one of these.
// Unlike sync.Mutex it is context-aware and queues fairly: a caller that
// arrived first is released first.
type Semaphore struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

func NewSemaphore() *Semaphore {
	return &Semaphore{}
}

// Acquire blocks until the semaphore is free or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if !s.held {
		s.held = true
		s.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	s.waiters = append(s.waiters, ready)
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		s.abandon(ready)
		return ctx.Err()
	}
}

// abandon removes a cancelled waiter, or passes ownership on if the waiter
// was released concurrently with the cancellation.
func (s *Semaphore) abandon(ready chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, w := range s.waiters {
		if w == ready {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}

	// Not in the queue: Release already handed us the lock. Pass it on.
	s.releaseLocked()
}

// Release hands the semaphore to the oldest waiter, or frees it.
func (s *Semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

func (s *Semaphore) releaseLocked() {
	if len(s.waiters) == 0 {
		s.held = false
		return
	}
	next := s.waiters[0]
	s.waiters = s.waiters[1:]
	close(next)
}

// InUse reports whether the semaphore is currently held.
func (s *Semaphore) InUse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held
}
