package metaclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// After failure_threshold consecutive failures the breaker trips OPEN and
// fails every subsequent call fast, per spec.md §4.8 and scenario S6.
func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Hour})

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Allow())
		b.Failure()
	}

	assert.Equal(t, StateOpen, b.State())
	err := b.Allow()
	assert.ErrorIs(t, err, ErrOpen)
}

// After recovery_timeout elapses, exactly one probe is permitted; success
// restores CLOSED and resets the failure counter.
func TestBreakerHalfOpenProbeSucceeds(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond})

	require.NoError(t, b.Allow())
	b.Failure()
	assert.Equal(t, StateOpen, b.State())

	time.Sleep(15 * time.Millisecond)

	require.NoError(t, b.Allow(), "first call after recovery timeout should probe")
	err := b.Allow()
	assert.ErrorIs(t, err, ErrOpen, "a second concurrent call must not get its own probe")

	b.Success()
	assert.Equal(t, StateClosed, b.State())

	require.NoError(t, b.Allow())
}

// A failed HALF_OPEN probe re-trips to OPEN immediately, resetting the
// recovery timer.
func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond})

	require.NoError(t, b.Allow())
	b.Failure()
	time.Sleep(15 * time.Millisecond)

	require.NoError(t, b.Allow())
	b.Failure()

	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrOpen)
}

// A success before the threshold is reached resets the failure counter,
// so unrelated transient blips don't accumulate toward tripping.
func TestBreakerSuccessResetsFailureCounter(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Hour})

	require.NoError(t, b.Allow())
	b.Failure()
	require.NoError(t, b.Allow())
	b.Failure()
	require.NoError(t, b.Allow())
	b.Success()

	require.NoError(t, b.Allow())
	b.Failure()
	assert.Equal(t, StateClosed, b.State(), "counter should have been reset by the intervening success")
}
