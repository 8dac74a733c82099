package observability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestClient() *IntegratedObservableClient {
	return NewIntegratedObservableClient(
		ConnectionTypeTika, OperationTypeExtract,
		"http://tika:9998", "textextractor",
		100*time.Millisecond, 10*time.Millisecond, 1*time.Second)
}

func TestExecuteWithMetrics_Success(t *testing.T) {
	c := newTestClient()
	err := c.ExecuteWithMetrics(context.Background(), "extract", func(context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.IsHealthy() {
		t.Fatalf("client should be healthy after a success")
	}
}

func TestExecuteWithMetrics_PropagatesError(t *testing.T) {
	c := newTestClient()
	want := errors.New("boom")
	err := c.ExecuteWithMetrics(context.Background(), "extract", func(context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("error not propagated: %v", err)
	}
}

func TestExecuteWithMetrics_TimeoutGrowsAllowance(t *testing.T) {
	c := newTestClient()
	before := c.AdaptiveTimeout.GetTimeout()
	err := c.ExecuteWithMetrics(context.Background(), "extract", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err == nil {
		t.Fatalf("expected deadline error")
	}
	if got := c.AdaptiveTimeout.GetTimeout(); got <= before {
		t.Fatalf("timeout should grow after deadline exceedance: %v <= %v", got, before)
	}
}

func TestIsHealthy_DegradesUnderFailures(t *testing.T) {
	c := newTestClient()
	for i := 0; i < 10; i++ {
		_ = c.ExecuteWithMetrics(context.Background(), "extract", func(context.Context) error {
			return errors.New("boom")
		})
	}
	if c.IsHealthy() {
		t.Fatalf("client should be unhealthy after consistent failures")
	}
}
