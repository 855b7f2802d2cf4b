package probe

import (
	"context"
	"io"
	"testing"
	"time"

	"kintai/internal/domain"
	"kintai/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestStateFromClockTypes(t *testing.T) {
	cases := []struct {
		name      string
		available []models.ActionType
		want      models.AttendanceState
	}{
		{"FreshMorning", []models.ActionType{models.ActionCheckin}, models.StateNotCheckedIn},
		{"OnBreak", []models.ActionType{models.ActionBreakEnd}, models.StateOnBreak},
		{"WorkingWithBreakLeft", []models.ActionType{models.ActionCheckout, models.ActionBreakStart}, models.StateWorking},
		{"WorkingCheckoutOnly", []models.ActionType{models.ActionCheckout}, models.StateWorking},
		{"CheckedOut", nil, models.StateCheckedOut},
		// The platform offers re-checkin after checkout; checkin dominates.
		{"RecheckinOffered", []models.ActionType{models.ActionCheckin, models.ActionCheckout}, models.StateNotCheckedIn},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, stateFromClockTypes(tc.available))
		})
	}
}

type mockHRClient struct {
	mock.Mock
}

func (m *mockHRClient) AvailableClockTypes(ctx context.Context) ([]models.ActionType, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ActionType), args.Error(1)
}

func (m *mockHRClient) PostTimeClock(ctx context.Context, action models.ActionType, at time.Time) error {
	args := m.Called(ctx, action, at)
	return args.Error(0)
}

func (m *mockHRClient) TodayPunches(ctx context.Context, date time.Time) ([]models.Punch, error) {
	args := m.Called(ctx, date)
	return nil, args.Error(1)
}

func (m *mockHRClient) UpdateWorkRecord(ctx context.Context, entry *models.CorrectionEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockHRClient) FindApprovalRoute(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockHRClient) SubmitWorkTimeApproval(ctx context.Context, entry *models.CorrectionEntry, routeID int64) error {
	args := m.Called(ctx, entry, routeID)
	return args.Error(0)
}

func (m *mockHRClient) SubmitLeaveApproval(ctx context.Context, leave *models.LeaveEntry, routeID int64) error {
	args := m.Called(ctx, leave, routeID)
	return args.Error(0)
}

func TestAPIBackendProbe(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ctx := context.Background()

	t.Run("MapsClockTypes", func(t *testing.T) {
		hr := new(mockHRClient)
		hr.On("AvailableClockTypes", ctx).Return([]models.ActionType{models.ActionBreakEnd}, nil).Once()

		backend := NewAPIBackend(hr, fakeClock{}, &logger)
		state, err := backend.Probe(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.StateOnBreak, state)
	})

	t.Run("ErrorBecomesUnknown", func(t *testing.T) {
		hr := new(mockHRClient)
		hr.On("AvailableClockTypes", ctx).Return(nil, assert.AnError).Once()

		backend := NewAPIBackend(hr, fakeClock{}, &logger)
		state, err := backend.Probe(ctx)
		assert.ErrorIs(t, err, domain.ErrUnknownState)
		assert.Equal(t, models.StateUnknown, state)
	})
}

type fakeClock struct{}

func (fakeClock) Now() time.Time           { return time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC) }
func (fakeClock) Location() *time.Location { return time.UTC }

func TestAPIBackendExecutePunch(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ctx := context.Background()

	hr := new(mockHRClient)
	hr.On("PostTimeClock", ctx, models.ActionCheckin, fakeClock{}.Now()).Return(nil).Once()

	backend := NewAPIBackend(hr, fakeClock{}, &logger)
	require.NoError(t, backend.ExecutePunch(ctx, models.ActionCheckin))
	hr.AssertExpectations(t)
}

type settableClock struct {
	now time.Time
}

func (c *settableClock) Now() time.Time           { return c.now }
func (c *settableClock) Location() *time.Location { return c.now.Location() }

func TestMockBackend(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ctx := context.Background()
	clk := &settableClock{now: time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)}
	backend := NewMockBackend(clk, &logger)

	t.Run("StartsFresh", func(t *testing.T) {
		state, err := backend.Probe(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.StateNotCheckedIn, state)
	})

	t.Run("FollowsTransitions", func(t *testing.T) {
		require.NoError(t, backend.ExecutePunch(ctx, models.ActionCheckin))
		require.NoError(t, backend.ExecutePunch(ctx, models.ActionBreakStart))
		require.NoError(t, backend.ExecutePunch(ctx, models.ActionBreakEnd))
		require.NoError(t, backend.ExecutePunch(ctx, models.ActionCheckout))

		state, err := backend.Probe(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.StateCheckedOut, state)
		assert.Len(t, backend.Punches(), 4)
	})

	t.Run("RejectsIllegalTransition", func(t *testing.T) {
		assert.Error(t, backend.ExecutePunch(ctx, models.ActionBreakEnd))
	})

	t.Run("AllowsRecheckin", func(t *testing.T) {
		require.NoError(t, backend.ExecutePunch(ctx, models.ActionCheckin))
		state, err := backend.Probe(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.StateWorking, state)
	})

	t.Run("ResetsAtNewDay", func(t *testing.T) {
		clk.now = clk.now.Add(24 * time.Hour)
		state, err := backend.Probe(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.StateNotCheckedIn, state)
		assert.Empty(t, backend.Punches())
	})
}
