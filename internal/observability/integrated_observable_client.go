package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/observability"
)

// ConnectionType identifies the outbound dependency being wrapped.
type ConnectionType string

// Outbound dependencies the pipeline calls.
const (
	ConnectionTypeTika ConnectionType = "tika"
	ConnectionTypeAI   ConnectionType = "ai"
	ConnectionTypeHTTP ConnectionType = "http"
)

// OperationType identifies the wrapped operation kind.
type OperationType string

// Operation kinds tracked per dependency.
const (
	OperationTypeExtract OperationType = "extract"
	OperationTypeChat    OperationType = "chat"
	OperationTypeRequest OperationType = "request"
)

// IntegratedObservableClient wraps an outbound call with an OpenTelemetry
// span, an adaptive timeout, and Prometheus metrics.
type IntegratedObservableClient struct {
	AdaptiveTimeout *AdaptiveTimeoutManager

	ConnectionType ConnectionType
	OperationType  OperationType
	Endpoint       string
	ServiceName    string

	tracer trace.Tracer
}

// NewIntegratedObservableClient creates an observable wrapper for one
// dependency endpoint.
func NewIntegratedObservableClient(
	connectionType ConnectionType,
	operationType OperationType,
	endpoint string,
	serviceName string,
	baseTimeout time.Duration,
	minTimeout time.Duration,
	maxTimeout time.Duration,
) *IntegratedObservableClient {
	return &IntegratedObservableClient{
		AdaptiveTimeout: NewAdaptiveTimeoutManager(baseTimeout, minTimeout, maxTimeout),
		ConnectionType:  connectionType,
		OperationType:   operationType,
		Endpoint:        endpoint,
		ServiceName:     serviceName,
		tracer:          otel.Tracer("recruiter-pipeline"),
	}
}

// ExecuteWithMetrics runs fn under the adaptive timeout, recording span
// status, timeout adjustments, and Prometheus metrics.
func (c *IntegratedObservableClient) ExecuteWithMetrics(
	ctx context.Context,
	operation string,
	fn func(ctx context.Context) error,
) error {
	spanCtx, span := c.tracer.Start(ctx, fmt.Sprintf("%s.%s", c.ServiceName, operation))
	defer span.End()

	span.SetAttributes(
		attribute.String("connection.type", string(c.ConnectionType)),
		attribute.String("operation.type", string(c.OperationType)),
		attribute.String("endpoint", c.Endpoint),
		attribute.String("operation.name", operation),
	)

	timeoutCtx, cancel := c.AdaptiveTimeout.WithTimeout(spanCtx)
	defer cancel()
	span.SetAttributes(attribute.Float64("timeout.seconds", c.AdaptiveTimeout.GetTimeout().Seconds()))

	start := time.Now()
	err := fn(timeoutCtx)
	duration := time.Since(start)

	status := "success"
	switch {
	case err == nil:
		c.AdaptiveTimeout.RecordSuccess(duration)
		span.SetStatus(codes.Ok, "success")
	case errors.Is(timeoutCtx.Err(), context.DeadlineExceeded):
		status = "timeout"
		c.AdaptiveTimeout.RecordTimeout()
		span.SetStatus(codes.Error, "timeout")
	default:
		status = "error"
		c.AdaptiveTimeout.RecordFailure(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.Float64("duration.seconds", duration.Seconds()),
		attribute.Bool("success", err == nil),
	)

	c.recordPrometheusMetrics(operation, duration, status)

	slog.Debug("outbound call executed",
		slog.String("connection_type", string(c.ConnectionType)),
		slog.String("endpoint", c.Endpoint),
		slog.String("operation", operation),
		slog.Duration("duration", duration),
		slog.String("status", status))

	return err
}

func (c *IntegratedObservableClient) recordPrometheusMetrics(operation string, duration time.Duration, status string) {
	switch c.ConnectionType {
	case ConnectionTypeAI:
		observability.AIRequestsTotal.WithLabelValues(c.Endpoint, operation, status).Inc()
		observability.AIRequestDuration.WithLabelValues(c.Endpoint, operation).Observe(duration.Seconds())
	default:
		observability.HTTPRequestsTotal.WithLabelValues(c.Endpoint, operation, status).Inc()
		observability.HTTPRequestDuration.WithLabelValues(c.Endpoint, operation).Observe(duration.Seconds())
	}
}

// IsHealthy reports whether the dependency's recent success rate is
// acceptable.
func (c *IntegratedObservableClient) IsHealthy() bool {
	return c.AdaptiveTimeout.SuccessRate() > 0.8
}
