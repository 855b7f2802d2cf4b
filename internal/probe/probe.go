// Package probe answers "what is the account's attendance state right now"
// through whichever backend is configured, and executes individual punches
// through the same backend. A probe is a pure read; it never mutates
// platform state.
package probe

import (
	"context"
	"fmt"
	"time"

	"kintai/internal/domain"
	"kintai/internal/metrics"
	"kintai/internal/models"

	"github.com/rs/zerolog"
)

// APIBackend derives the state from which clock types the platform
// currently accepts.
type APIBackend struct {
	client domain.HRClient
	clock  domain.Clock
	logger *zerolog.Logger
}

func NewAPIBackend(client domain.HRClient, clk domain.Clock, logger *zerolog.Logger) *APIBackend {
	return &APIBackend{client: client, clock: clk, logger: logger}
}

func (b *APIBackend) Backend() string { return "api" }

func (b *APIBackend) Probe(ctx context.Context) (models.AttendanceState, error) {
	available, err := b.client.AvailableClockTypes(ctx)
	if err != nil {
		metrics.IncProbeFailure()
		return models.StateUnknown, fmt.Errorf("%w: %v", domain.ErrUnknownState, err)
	}
	return stateFromClockTypes(available), nil
}

func (b *APIBackend) ExecutePunch(ctx context.Context, action models.ActionType) error {
	return b.client.PostTimeClock(ctx, action, b.clock.Now())
}

// stateFromClockTypes maps the accepted-punch set onto an attendance state.
// The platform only offers punches that are legal transitions from the
// current state, which makes the set an exact state encoding.
func stateFromClockTypes(available []models.ActionType) models.AttendanceState {
	has := make(map[models.ActionType]bool, len(available))
	for _, a := range available {
		has[a] = true
	}

	switch {
	case has[models.ActionCheckin]:
		return models.StateNotCheckedIn
	case has[models.ActionBreakEnd]:
		return models.StateOnBreak
	case has[models.ActionCheckout] || has[models.ActionBreakStart]:
		return models.StateWorking
	case len(available) == 0:
		return models.StateCheckedOut
	}
	return models.StateUnknown
}

// BrowserBackend probes and punches through the single-flight automation
// session. Expensive; configured only when the account has no API access.
type BrowserBackend struct {
	sessions domain.SessionManager
	logger   *zerolog.Logger
}

func NewBrowserBackend(sessions domain.SessionManager, logger *zerolog.Logger) *BrowserBackend {
	return &BrowserBackend{sessions: sessions, logger: logger}
}

func (b *BrowserBackend) Backend() string { return "browser" }

func (b *BrowserBackend) Probe(ctx context.Context) (models.AttendanceState, error) {
	state := models.StateUnknown
	err := b.sessions.WithSession(ctx, func(s domain.Session) error {
		detected, err := s.DetectState(ctx)
		if err != nil {
			return err
		}
		state = detected
		return nil
	})
	if err != nil {
		metrics.IncProbeFailure()
		return models.StateUnknown, fmt.Errorf("%w: %v", domain.ErrUnknownState, err)
	}
	return state, nil
}

func (b *BrowserBackend) ExecutePunch(ctx context.Context, action models.ActionType) error {
	return b.sessions.WithSession(ctx, func(s domain.Session) error {
		return s.ExecuteAction(ctx, action)
	})
}

var (
	_ domain.AttendanceBackend = (*APIBackend)(nil)
	_ domain.AttendanceBackend = (*BrowserBackend)(nil)
	_ domain.AttendanceBackend = (*MockBackend)(nil)
)

// timeOfDay is shared by the mock backend's per-day reset.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
