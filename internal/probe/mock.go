package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kintai/internal/domain"
	"kintai/internal/models"

	"github.com/rs/zerolog"
)

// MockBackend is an offline backend for demos and development. It keeps an
// explicit state-transition table and resets to not_checked_in at the first
// touch of each new day.
type MockBackend struct {
	clock  domain.Clock
	logger *zerolog.Logger

	mu      sync.Mutex
	state   models.AttendanceState
	day     time.Time
	punches []models.Punch
}

func NewMockBackend(clk domain.Clock, logger *zerolog.Logger) *MockBackend {
	return &MockBackend{
		clock:  clk,
		logger: logger,
		state:  models.StateNotCheckedIn,
	}
}

func (b *MockBackend) Backend() string { return "mock" }

// transitions maps (state, action) -> next state. Absent pairs are illegal,
// matching how the real platform refuses out-of-order punches.
var transitions = map[models.AttendanceState]map[models.ActionType]models.AttendanceState{
	models.StateNotCheckedIn: {
		models.ActionCheckin: models.StateWorking,
	},
	models.StateWorking: {
		models.ActionBreakStart: models.StateOnBreak,
		models.ActionCheckout:   models.StateCheckedOut,
	},
	models.StateOnBreak: {
		models.ActionBreakEnd: models.StateWorking,
	},
	models.StateCheckedOut: {
		models.ActionCheckin: models.StateWorking,
	},
}

func (b *MockBackend) Probe(ctx context.Context) (models.AttendanceState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()
	return b.state, nil
}

func (b *MockBackend) ExecutePunch(ctx context.Context, action models.ActionType) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()

	next, ok := transitions[b.state][action]
	if !ok {
		return fmt.Errorf("mock backend: %s is not valid in state %s", action, b.state)
	}

	now := b.clock.Now()
	b.punches = append(b.punches, models.Punch{Type: action, At: now})
	b.logger.Info().Str("action", string(action)).Str("from", string(b.state)).Str("to", string(next)).Msg("mock punch")
	b.state = next
	return nil
}

// TodayPunches mirrors the live client's punch listing so the mock backend
// can serve as the scheduler's punch source.
func (b *MockBackend) TodayPunches(ctx context.Context, date time.Time) ([]models.Punch, error) {
	return b.Punches(), nil
}

// Punches returns the punches recorded today.
func (b *MockBackend) Punches() []models.Punch {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()
	return append([]models.Punch(nil), b.punches...)
}

func (b *MockBackend) rolloverLocked() {
	now := b.clock.Now()
	if !sameDay(b.day, now) {
		b.day = now
		b.state = models.StateNotCheckedIn
		b.punches = nil
	}
}
