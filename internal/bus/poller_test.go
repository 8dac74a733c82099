package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAdaptivePoller_SuccessAndFailureIntervals(t *testing.T) {
	base := 2 * time.Second
	p := newAdaptivePoller(base)

	iv := p.nextInterval()
	assert.GreaterOrEqual(t, iv, p.minInterval)
	assert.LessOrEqual(t, iv, p.maxInterval)

	for i := 0; i < 3; i++ {
		p.recordSuccess()
	}
	iv = p.nextInterval()
	assert.GreaterOrEqual(t, iv, p.minInterval)
	assert.LessOrEqual(t, iv, base)
	assert.True(t, p.healthy)

	for i := 0; i < 5; i++ {
		p.recordFailure()
	}
	iv = p.nextInterval()
	assert.Greater(t, iv, base)
	assert.LessOrEqual(t, iv, p.maxInterval)

	for i := 0; i < 10; i++ {
		p.recordFailure()
	}
	iv = p.nextInterval()
	assert.Equal(t, p.maxInterval, iv)
	assert.False(t, p.healthy)
}

func TestAdaptivePoller_RecoversAfterSuccess(t *testing.T) {
	p := newAdaptivePoller(time.Second)
	for i := 0; i < 12; i++ {
		p.recordFailure()
	}
	assert.False(t, p.healthy)

	p.recordSuccess()
	assert.True(t, p.healthy)
	assert.Equal(t, 0, p.consecutiveFailure)
}
