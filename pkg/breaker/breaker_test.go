package breaker

import (
	"testing"
	"time"

	"github.com/sentineld/sentineld/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerLifecycle(t *testing.T) {
	r := New(Config{Threshold: 3, CooldownMs: 50})

	for i := 0; i < 3; i++ {
		r.RecordFailure("x")
	}
	require.False(t, r.CanExecute("x"))

	time.Sleep(60 * time.Millisecond)
	require.True(t, r.CanExecute("x"))

	states := r.GetState()
	require.Len(t, states, 1)
	assert.Equal(t, types.BreakerHalfOpen, states[0].State)

	r.RecordSuccess("x")
	states = r.GetState()
	assert.Equal(t, types.BreakerClosed, states[0].State)
	assert.Equal(t, 0, states[0].FailureCount)
}

func TestUnknownOperationIsImplicitlyClosed(t *testing.T) {
	r := New(DefaultConfig())
	assert.True(t, r.CanExecute("never-seen"))
}

func TestHalfOpenFailureReopens(t *testing.T) {
	r := New(Config{Threshold: 1, CooldownMs: 10})
	r.RecordFailure("y")
	require.False(t, r.CanExecute("y"))

	time.Sleep(15 * time.Millisecond)
	require.True(t, r.CanExecute("y"))

	r.RecordFailure("y")
	require.False(t, r.CanExecute("y"))
}

func TestResetReturnsClosedAndZero(t *testing.T) {
	r := New(Config{Threshold: 2, CooldownMs: 1000})
	r.RecordFailure("z")
	r.RecordFailure("z")
	require.False(t, r.CanExecute("z"))

	r.Reset("z")
	states := r.GetState()
	require.Len(t, states, 1)
	assert.Equal(t, types.BreakerClosed, states[0].State)
	assert.Equal(t, 0, states[0].FailureCount)
}

func TestEvaluatePromotesElapsedOpenBreakers(t *testing.T) {
	r := New(Config{Threshold: 1, CooldownMs: 10})
	r.RecordFailure("w")
	time.Sleep(15 * time.Millisecond)

	changed := r.Evaluate()
	assert.Contains(t, changed, "w")

	states := r.GetState()
	assert.Equal(t, types.BreakerHalfOpen, states[0].State)
}

func TestFailureCountNeverExceedsThresholdWhileClosed(t *testing.T) {
	r := New(Config{Threshold: 3, CooldownMs: 1000})
	r.RecordFailure("v")
	r.RecordFailure("v")
	states := r.GetState()
	require.Len(t, states, 1)
	assert.LessOrEqual(t, states[0].FailureCount, 3)
	assert.Equal(t, types.BreakerClosed, states[0].State)
}
