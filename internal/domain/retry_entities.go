// Package domain defines retry and DLQ entities used by the bus runtime to
// decide between redelivery and dead-lettering.
package domain

import (
	"math/rand"
	"strings"
	"time"
)

// DeliveryStatus represents the redelivery state of one envelope.
type DeliveryStatus string

const (
	DeliveryStatusNone      DeliveryStatus = "none"
	DeliveryStatusRetrying  DeliveryStatus = "retrying"
	DeliveryStatusExhausted DeliveryStatus = "exhausted"
	DeliveryStatusDLQ       DeliveryStatus = "dlq"
)

// RetryConfig defines the bus's in-process redelivery behavior for a
// subscription. The bus has no native redelivery timer (Kafka offsets are
// commit-based); the attempt count travels in Envelope.Attempt, and this
// config decides between routing to the DLQ and republishing for redelivery.
type RetryConfig struct {
	MaxDeliveries      int
	InitialDelay       time.Duration
	MaxDelay           time.Duration
	Multiplier         float64
	Jitter             bool
	RetryableErrors    []string
	NonRetryableErrors []string
}

// DefaultRetryConfig matches the pipeline's stated defaults: base=2s,
// max=60s, maxDeliveries=5.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxDeliveries: 5,
		InitialDelay:  2 * time.Second,
		MaxDelay:      60 * time.Second,
		Multiplier:    2.0,
		Jitter:        true,
		RetryableErrors: []string{
			"context deadline exceeded",
			"connection refused",
			"timeout",
			"temporary failure",
			"rate limited",
			"upstream timeout",
			"upstream rate limit",
		},
		NonRetryableErrors: []string{
			"invalid argument",
			"not found",
			"conflict",
			"schema invalid",
			"checksum mismatch",
			"authentication failed",
			"authorization failed",
		},
	}
}

// DeliveryInfo tracks redelivery attempts for one in-flight envelope.
type DeliveryInfo struct {
	MessageID     string
	Subject       string
	AttemptCount  int
	LastAttemptAt time.Time
	NextRetryAt   time.Time
	Status        DeliveryStatus
	LastError     string
	ErrorHistory  []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ShouldRetry decides whether a redelivered envelope should be retried again
// given the classified error and the subscription's RetryConfig.
func (di *DeliveryInfo) ShouldRetry(err error, cfg RetryConfig) bool {
	if di.AttemptCount >= cfg.MaxDeliveries {
		return false
	}
	if di.Status == DeliveryStatusDLQ {
		return false
	}

	errStr := err.Error()
	for _, s := range cfg.RetryableErrors {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	for _, s := range cfg.NonRetryableErrors {
		if strings.Contains(errStr, s) {
			return false
		}
	}
	// Unclassified errors are retried for the first two attempts and
	// dead-lettered on the third.
	return di.AttemptCount < 3
}

// NextDelay computes the exponential backoff (with optional jitter) before
// the next redelivery attempt.
func (di *DeliveryInfo) NextDelay(cfg RetryConfig) time.Duration {
	delay := time.Duration(float64(cfg.InitialDelay) * pow(cfg.Multiplier, float64(di.AttemptCount)))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter {
		delay += time.Duration(rand.Float64() * float64(delay) * 0.1) //nolint:gosec // non-cryptographic backoff jitter
	}
	return delay
}

// RecordAttempt appends one delivery attempt to the history.
func (di *DeliveryInfo) RecordAttempt(err error) {
	di.AttemptCount++
	di.LastAttemptAt = time.Now()
	di.UpdatedAt = time.Now()
	if err != nil {
		di.LastError = err.Error()
		di.ErrorHistory = append(di.ErrorHistory, err.Error())
	}
}

func (di *DeliveryInfo) MarkExhausted() { di.Status = DeliveryStatusExhausted; di.UpdatedAt = time.Now() }
func (di *DeliveryInfo) MarkDLQ()       { di.Status = DeliveryStatusDLQ; di.UpdatedAt = time.Now() }
func (di *DeliveryInfo) MarkRetrying()  { di.Status = DeliveryStatusRetrying; di.UpdatedAt = time.Now() }

// DLQRecord describes an exhausted or permanently-failed envelope together
// with its delivery history. The bus does not publish it: dlq.<subject>
// receives a DLQEnvelope.
type DLQRecord struct {
	Envelope         Envelope
	DeliveryInfo     DeliveryInfo
	FailureReason    string
	MovedToDLQAt     time.Time
	CanBeReprocessed bool
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}
