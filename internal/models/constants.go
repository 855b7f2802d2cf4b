package models

import "time"

const (
	// BreakRequiredMinutes is the expected-work-duration threshold at which a
	// break must be scheduled (labor-law 6h rule; 6h01m needs a break, 6h00m
	// does not).
	BreakRequiredMinutes = 361

	// MaxBreakMinutes caps a scheduled or running break.
	MaxBreakMinutes = 60

	// LateCheckinGrace is how far past the scheduled checkin time we still
	// punch; beyond it the checkin is skipped to avoid creating a late record.
	LateCheckinGrace = 5 * time.Minute

	// Tier-1 probe retries at daily resolution.
	ProbeRetryCount    = 3
	ProbeRetryInterval = 30 * time.Second

	// Tier-2: one last probe this long before checkin time.
	ProbeLastChanceLead = 15 * time.Minute

	// TokenRefreshMargin refreshes the access token this long before expiry.
	TokenRefreshMargin = 5 * time.Minute

	// BatchCallInterval paces sequential API calls inside a batch.
	BatchCallInterval = 300 * time.Millisecond

	// Async task records live this long after creation.
	TaskTTL        = time.Hour
	TaskGCInterval = 10 * time.Minute

	// DefaultRolloverTime is when the scheduler resets for a new day.
	DefaultRolloverTime = "00:05"
)
