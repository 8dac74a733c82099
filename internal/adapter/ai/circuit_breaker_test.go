package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker("gpt-4o-mini")
	assert.Equal(t, CircuitClosed, cb.GetState())
	assert.True(t, cb.ShouldAttempt())
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("gpt-4o-mini")
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.GetState(), "below threshold stays closed")
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.GetState())
	assert.False(t, cb.ShouldAttempt())
}

func TestCircuitBreaker_SuccessResetsStreak(t *testing.T) {
	cb := NewCircuitBreaker("gpt-4o-mini")
	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.GetState(), "streak should reset on success")
}

func TestCircuitBreaker_HalfOpenProbeAfterRecoveryTimeout(t *testing.T) {
	cb := NewCircuitBreaker("gpt-4o-mini")
	cb.recoveryTimeout = 10 * time.Millisecond
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	assert.False(t, cb.ShouldAttempt())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, cb.ShouldAttempt(), "recovery timeout should admit a probe")
	assert.Equal(t, CircuitHalfOpen, cb.GetState())

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.GetState())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker("gpt-4o-mini")
	cb.recoveryTimeout = 10 * time.Millisecond
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(20 * time.Millisecond)
	assert.True(t, cb.ShouldAttempt())
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.GetState())
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}
