package config

import (
	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

// BusRetryConfig maps the RETRY_* and MAX_DELIVERIES environment into the
// bus's redelivery configuration, starting from the pipeline defaults
// (base=2s, max=60s, maxDeliveries=5) so unset overrides keep them.
func (c Config) BusRetryConfig() domain.RetryConfig {
	rc := domain.DefaultRetryConfig()
	if c.MaxDeliveries > 0 {
		rc.MaxDeliveries = c.MaxDeliveries
	}
	if c.RetryInitialDelay > 0 {
		rc.InitialDelay = c.RetryInitialDelay
	}
	if c.RetryMaxDelay > 0 {
		rc.MaxDelay = c.RetryMaxDelay
	}
	if c.RetryMultiplier > 0 {
		rc.Multiplier = c.RetryMultiplier
	}
	rc.Jitter = c.RetryJitter
	return rc
}
