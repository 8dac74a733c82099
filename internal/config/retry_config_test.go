package config

import (
	"testing"
	"time"
)

func TestConfig_BusRetryConfig_MapsOverrides(t *testing.T) {
	cfg := Config{
		MaxDeliveries:     7,
		RetryInitialDelay: 3 * time.Second,
		RetryMaxDelay:     45 * time.Second,
		RetryMultiplier:   3.5,
		RetryJitter:       false,
	}

	rc := cfg.BusRetryConfig()

	if rc.MaxDeliveries != 7 {
		t.Fatalf("MaxDeliveries = %d, want 7", rc.MaxDeliveries)
	}
	if rc.InitialDelay != 3*time.Second {
		t.Fatalf("InitialDelay = %v", rc.InitialDelay)
	}
	if rc.MaxDelay != 45*time.Second {
		t.Fatalf("MaxDelay = %v", rc.MaxDelay)
	}
	if rc.Multiplier != 3.5 {
		t.Fatalf("Multiplier = %v", rc.Multiplier)
	}
	if rc.Jitter {
		t.Fatalf("Jitter should be off")
	}
}

func TestConfig_BusRetryConfig_KeepsDefaultsWhenUnset(t *testing.T) {
	rc := Config{RetryJitter: true}.BusRetryConfig()

	if rc.MaxDeliveries != 5 {
		t.Fatalf("MaxDeliveries = %d, want pipeline default 5", rc.MaxDeliveries)
	}
	if rc.InitialDelay != 2*time.Second || rc.MaxDelay != 60*time.Second {
		t.Fatalf("backoff defaults lost: %v/%v", rc.InitialDelay, rc.MaxDelay)
	}
	if len(rc.RetryableErrors) == 0 || len(rc.NonRetryableErrors) == 0 {
		t.Fatalf("error classification lists should carry over")
	}
}

func TestConfig_GetAIBackoffConfig_ProdEnv(t *testing.T) {
	cfg := Config{AppEnv: "prod"}
	cfg.AIBackoffMaxElapsedTime = 99 * time.Second
	cfg.AIBackoffInitialInterval = 10 * time.Second
	cfg.AIBackoffMaxInterval = 20 * time.Second
	cfg.AIBackoffMultiplier = 1.1

	maxElapsed, initial, maxInterval, mult := cfg.GetAIBackoffConfig()
	if maxElapsed != 99*time.Second || initial != 10*time.Second || maxInterval != 20*time.Second || mult != 1.1 {
		t.Fatalf("prod env should keep configured backoff: %v %v %v %v", maxElapsed, initial, maxInterval, mult)
	}
}
