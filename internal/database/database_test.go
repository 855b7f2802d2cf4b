package database

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"kintai/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "agent.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestScheduleEntries(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	t.Run("GetMissingReturnsNil", func(t *testing.T) {
		entry, err := db.GetScheduleEntry(ctx, "2026-09-01", models.ActionCheckin)
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("UpsertAndGet", func(t *testing.T) {
		require.NoError(t, db.UpsertScheduleEntry(ctx, &models.ScheduleEntry{
			Date:         "2026-09-01",
			ActionType:   models.ActionCheckin,
			ResolvedTime: "09:03",
		}))

		entry, err := db.GetScheduleEntry(ctx, "2026-09-01", models.ActionCheckin)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, "09:03", entry.ResolvedTime)
		assert.False(t, entry.Executed)
	})

	t.Run("UpsertReplacesTime", func(t *testing.T) {
		require.NoError(t, db.UpsertScheduleEntry(ctx, &models.ScheduleEntry{
			Date:         "2026-09-01",
			ActionType:   models.ActionCheckin,
			ResolvedTime: "09:11",
		}))

		entry, err := db.GetScheduleEntry(ctx, "2026-09-01", models.ActionCheckin)
		require.NoError(t, err)
		assert.Equal(t, "09:11", entry.ResolvedTime)

		// One row per (date, action) regardless of how often we resolve.
		entries, err := db.ListScheduleEntries(ctx, "2026-09-01")
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("MarkExecuted", func(t *testing.T) {
		require.NoError(t, db.MarkScheduleExecuted(ctx, "2026-09-01", models.ActionCheckin))

		entry, err := db.GetScheduleEntry(ctx, "2026-09-01", models.ActionCheckin)
		require.NoError(t, err)
		assert.True(t, entry.Executed)
	})

	t.Run("MarkExecutedMissingIsNotAnError", func(t *testing.T) {
		assert.NoError(t, db.MarkScheduleExecuted(ctx, "2026-09-02", models.ActionCheckout))
	})

	t.Run("ListOrderedByTime", func(t *testing.T) {
		for _, e := range []struct {
			action models.ActionType
			at     string
		}{
			{models.ActionCheckout, "18:00"},
			{models.ActionBreakStart, "12:05"},
			{models.ActionBreakEnd, "13:01"},
		} {
			require.NoError(t, db.UpsertScheduleEntry(ctx, &models.ScheduleEntry{
				Date: "2026-09-01", ActionType: e.action, ResolvedTime: e.at,
			}))
		}

		entries, err := db.ListScheduleEntries(ctx, "2026-09-01")
		require.NoError(t, err)
		require.Len(t, entries, 4)
		assert.Equal(t, models.ActionCheckin, entries[0].ActionType)
		assert.Equal(t, models.ActionCheckout, entries[3].ActionType)
	})
}

func TestExecutionLog(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

	for i, status := range []models.ExecutionStatus{models.ExecSuccess, models.ExecFailure, models.ExecSkipped} {
		entry := &models.ExecutionLogEntry{
			ActionType:    models.ActionCheckin,
			ScheduledTime: "09:00",
			ExecutedAt:    base.Add(time.Duration(i) * time.Hour),
			Status:        status,
			Trigger:       models.TriggerScheduled,
			DurationMS:    int64(100 * (i + 1)),
		}
		if status == models.ExecFailure {
			entry.ErrorMessage = "probe failed"
		}
		require.NoError(t, db.AppendExecutionLog(ctx, entry))
		assert.NotZero(t, entry.ID)
	}

	t.Run("NewestFirst", func(t *testing.T) {
		entries, err := db.ListExecutionLog(ctx, base.Add(-time.Hour), base.Add(24*time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, models.ExecSkipped, entries[0].Status)
		assert.Equal(t, models.ExecSuccess, entries[2].Status)
		assert.Equal(t, "probe failed", entries[1].ErrorMessage)
	})

	t.Run("RangeIsHalfOpen", func(t *testing.T) {
		entries, err := db.ListExecutionLog(ctx, base, base.Add(time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, models.ExecSuccess, entries[0].Status)
	})

	t.Run("LimitApplies", func(t *testing.T) {
		entries, err := db.ListExecutionLog(ctx, base.Add(-time.Hour), base.Add(24*time.Hour), 2)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})
}
