// Package observability wraps outbound dependency calls (Tika, the LLM
// vendor) with adaptive timeouts, tracing spans and Prometheus metrics, and
// carries the request-scoped logger through context.
package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AdaptiveTimeoutManager tunes an operation's timeout between a floor and a
// ceiling based on observed outcomes: fast successes shrink it, failures and
// timeouts grow it.
type AdaptiveTimeoutManager struct {
	mu sync.RWMutex

	baseTimeout time.Duration
	minTimeout  time.Duration
	maxTimeout  time.Duration

	successCount int64
	failureCount int64
	timeoutCount int64

	currentTimeout time.Duration
	lastUpdate     time.Time
}

// Adjustment factors: shrink 5% on a fast success, grow 5% on failure, 10%
// on timeout.
const (
	successFactor = 0.95
	failureFactor = 1.05
	timeoutFactor = 1.10
)

// NewAdaptiveTimeoutManager creates a manager starting at baseTimeout,
// clamped to [minTimeout, maxTimeout].
func NewAdaptiveTimeoutManager(baseTimeout, minTimeout, maxTimeout time.Duration) *AdaptiveTimeoutManager {
	return &AdaptiveTimeoutManager{
		baseTimeout:    baseTimeout,
		minTimeout:     minTimeout,
		maxTimeout:     maxTimeout,
		currentTimeout: baseTimeout,
	}
}

// GetTimeout returns the current adaptive timeout.
func (atm *AdaptiveTimeoutManager) GetTimeout() time.Duration {
	atm.mu.RLock()
	defer atm.mu.RUnlock()
	return atm.currentTimeout
}

// RecordSuccess shrinks the timeout when the operation finished in under
// half the current allowance.
func (atm *AdaptiveTimeoutManager) RecordSuccess(duration time.Duration) {
	atm.mu.Lock()
	defer atm.mu.Unlock()

	atm.successCount++
	if duration < atm.currentTimeout/2 {
		if next := time.Duration(float64(atm.currentTimeout) * successFactor); next >= atm.minTimeout {
			atm.currentTimeout = next
		}
	}
	atm.lastUpdate = time.Now()
}

// RecordFailure grows the timeout after a non-timeout failure.
func (atm *AdaptiveTimeoutManager) RecordFailure(err error) {
	atm.mu.Lock()
	defer atm.mu.Unlock()

	atm.failureCount++
	if next := time.Duration(float64(atm.currentTimeout) * failureFactor); next <= atm.maxTimeout {
		atm.currentTimeout = next
		slog.Debug("adaptive timeout increased after failure",
			slog.Duration("new_timeout", atm.currentTimeout),
			slog.Any("error", err))
	}
	atm.lastUpdate = time.Now()
}

// RecordTimeout grows the timeout after a deadline exceedance.
func (atm *AdaptiveTimeoutManager) RecordTimeout() {
	atm.mu.Lock()
	defer atm.mu.Unlock()

	atm.timeoutCount++
	if next := time.Duration(float64(atm.currentTimeout) * timeoutFactor); next <= atm.maxTimeout {
		atm.currentTimeout = next
	}
	atm.lastUpdate = time.Now()
}

// WithTimeout derives a context bounded by the current adaptive timeout.
func (atm *AdaptiveTimeoutManager) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, atm.GetTimeout())
}

// SuccessRate returns the fraction of recorded operations that succeeded,
// or 1 when nothing has been recorded yet.
func (atm *AdaptiveTimeoutManager) SuccessRate() float64 {
	atm.mu.RLock()
	defer atm.mu.RUnlock()

	total := atm.successCount + atm.failureCount + atm.timeoutCount
	if total == 0 {
		return 1
	}
	return float64(atm.successCount) / float64(total)
}

// Reset restores the base timeout and clears counters.
func (atm *AdaptiveTimeoutManager) Reset() {
	atm.mu.Lock()
	defer atm.mu.Unlock()

	atm.currentTimeout = atm.baseTimeout
	atm.successCount = 0
	atm.failureCount = 0
	atm.timeoutCount = 0
	atm.lastUpdate = time.Now()
}
