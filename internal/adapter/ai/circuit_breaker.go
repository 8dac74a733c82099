package ai

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/observability"
)

// CircuitState is the breaker's current disposition toward new requests.
type CircuitState int

const (
	// CircuitClosed allows requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen blocks requests until the recovery timeout elapses.
	CircuitOpen
	// CircuitHalfOpen lets a probe request test whether the vendor recovered.
	CircuitHalfOpen
)

// String returns the state's metric/log label.
func (cs CircuitState) String() string {
	switch cs {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker guards the single configured LLM vendor endpoint. The
// pipeline calls one model per deployment, so one breaker per process is
// enough; consecutive failures open it and a timed probe closes it again.
type CircuitBreaker struct {
	mu               sync.Mutex
	model            string
	failureThreshold int
	recoveryTimeout  time.Duration
	state            CircuitState
	failureCount     int
	lastFailureTime  time.Time
}

// NewCircuitBreaker creates a breaker for the configured vendor model:
// opens after 3 consecutive failures, probes recovery after 30 seconds.
func NewCircuitBreaker(model string) *CircuitBreaker {
	return &CircuitBreaker{
		model:            model,
		failureThreshold: 3,
		recoveryTimeout:  30 * time.Second,
		state:            CircuitClosed,
	}
}

// ShouldAttempt reports whether a request may proceed. When the recovery
// timeout has elapsed on an open circuit, the breaker moves to half-open;
// every request is admitted while the breaker stays half-open.
func (cb *CircuitBreaker) ShouldAttempt() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		if time.Since(cb.lastFailureTime) > cb.recoveryTimeout {
			cb.setState(CircuitHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess resets the failure streak and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	if cb.state != CircuitClosed {
		cb.setState(CircuitClosed)
		slog.Info("ai circuit breaker closed after successful recovery",
			slog.String("model", cb.model))
	}
}

// RecordFailure extends the failure streak, opening the circuit at the
// threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = time.Now()

	if cb.failureCount >= cb.failureThreshold && cb.state != CircuitOpen {
		cb.setState(CircuitOpen)
		slog.Warn("ai circuit breaker opened",
			slog.String("model", cb.model),
			slog.Int("failure_count", cb.failureCount),
			slog.Int("threshold", cb.failureThreshold))
	}
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// setState transitions the breaker and exports the state gauge. Caller must
// hold cb.mu.
func (cb *CircuitBreaker) setState(s CircuitState) {
	cb.state = s
	observability.RecordCircuitBreakerStatus("llm", cb.model, int(s))
}
