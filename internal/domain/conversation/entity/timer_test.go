package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyRemainingBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		remaining time.Duration
		want      TimerState
	}{
		{"negative", -time.Second, TimerExpired},
		{"zero", 0, TimerExpired},
		{"one ms", time.Millisecond, TimerFinal},
		{"exactly one minute", time.Minute, TimerFinal},
		{"just over one minute", time.Minute + time.Millisecond, TimerCritical},
		{"exactly five minutes", 5 * time.Minute, TimerCritical},
		{"just over five minutes", 5*time.Minute + time.Millisecond, TimerUrgency},
		{"exactly ten minutes", 10 * time.Minute, TimerUrgency},
		{"just over ten minutes", 10*time.Minute + time.Millisecond, TimerAttention},
		{"exactly twenty minutes", 20 * time.Minute, TimerAttention},
		{"just over twenty minutes", 20*time.Minute + time.Millisecond, TimerActive},
		{"eleven minutes", 11 * time.Minute, TimerAttention},
		{"hours left", 3 * time.Hour, TimerActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyRemaining(tt.remaining))
		})
	}
}

func TestClassifyForPairUnlimited(t *testing.T) {
	assert.Equal(t, TimerUnlimited, ClassifyForPair(0, true, true))
	assert.Equal(t, TimerUnlimited, ClassifyForPair(3*time.Hour, true, true))

	// A single Prime side still classifies normally.
	assert.Equal(t, TimerExpired, ClassifyForPair(0, true, false))
	assert.Equal(t, TimerFinal, ClassifyForPair(30*time.Second, false, true))
}

func TestNudgeForFreeViewer(t *testing.T) {
	tests := []struct {
		name      string
		remaining time.Duration
		want      NudgePhase
	}{
		{"expired", 0, NudgeExpired},
		{"final minute", time.Minute, NudgeCritical},
		{"five minutes", 5 * time.Minute, NudgeHigh},
		{"ten minutes", 10 * time.Minute, NudgeMedium},
		{"eleven minutes", 11 * time.Minute, NudgeMedium},
		{"plenty left", time.Hour, NudgeNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NudgeFor(tt.remaining, false))
		})
	}
}

func TestNudgeNeverActivatesForPrimeViewer(t *testing.T) {
	for _, remaining := range []time.Duration{-time.Minute, 0, time.Second, time.Minute, 5 * time.Minute, time.Hour} {
		assert.Equal(t, NudgeNone, NudgeFor(remaining, true), "remaining=%v", remaining)
	}
}

func TestDisplaySuppressedForPrimeViewer(t *testing.T) {
	for _, state := range []TimerState{TimerActive, TimerAttention, TimerUrgency, TimerCritical, TimerFinal, TimerExpired} {
		d := DisplayFor(state, true)
		assert.False(t, d.Show, "state=%s", state)
	}

	assert.False(t, DisplayFor(TimerUnlimited, false).Show)
}

func TestDisplayEscalation(t *testing.T) {
	attention := DisplayFor(TimerAttention, false)
	critical := DisplayFor(TimerCritical, false)
	final := DisplayFor(TimerFinal, false)

	assert.True(t, attention.Show)
	assert.Greater(t, critical.Pulse, attention.Pulse, "critical must pulse harder than attention")
	assert.Greater(t, final.Pulse, attention.Pulse, "final must pulse harder than attention")
}

func TestDisplayDefinedForEveryState(t *testing.T) {
	for _, state := range []TimerState{TimerActive, TimerAttention, TimerUrgency, TimerCritical, TimerFinal, TimerExpired} {
		d := DisplayFor(state, false)
		assert.True(t, d.Show, "state=%s", state)
		assert.NotEmpty(t, d.Label, "state=%s", state)
		assert.NotEmpty(t, d.IconClass, "state=%s", state)
	}
}

func TestOverlayForTierCombinations(t *testing.T) {
	assert.Equal(t, OverlayNone, OverlayFor(true, true))
	assert.Equal(t, OverlayReopen, OverlayFor(true, false))
	assert.Equal(t, OverlayWaiting, OverlayFor(false, true))
	assert.Equal(t, OverlayUpsell, OverlayFor(false, false))
}
