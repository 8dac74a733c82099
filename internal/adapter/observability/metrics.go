// Package observability provides logging, metrics, and tracing for the
// pipeline workers and the admission layer.
package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts admission requests by route, method, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration records admission request durations.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// BusPublishedTotal counts envelopes produced per subject.
	BusPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_published_total",
			Help: "Total envelopes published per subject",
		},
		[]string{"subject"},
	)
	// BusConsumedTotal counts handled deliveries per subject, group, and
	// outcome (ok, redelivered, dlq).
	BusConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_consumed_total",
			Help: "Total envelope deliveries per subject, group, and outcome",
		},
		[]string{"subject", "group", "outcome"},
	)
	// BusHandlerDuration records handler runtime per subject and group.
	BusHandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bus_handler_duration_seconds",
			Help:    "Envelope handler duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 90},
		},
		[]string{"subject", "group"},
	)
	// BusRedeliveriesTotal counts redelivery republishes per subject.
	BusRedeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_redeliveries_total",
			Help: "Total redelivery republishes per subject",
		},
		[]string{"subject"},
	)
	// BusDLQTotal counts envelopes routed to a dead-letter subject.
	BusDLQTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_dlq_total",
			Help: "Total envelopes dead-lettered per origin subject",
		},
		[]string{"subject"},
	)

	// AIRequestsTotal counts LLM vendor requests by provider, operation, and status.
	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider, operation, and status",
		},
		[]string{"provider", "operation", "status"},
	)
	// AIRequestDuration records durations of LLM vendor requests.
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"provider", "operation"},
	)
	// AITokenUsage tracks LLM token consumption by provider, type, and model.
	AITokenUsage = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Total AI tokens used",
		},
		[]string{"provider", "type", "model"},
	)

	// MatchScoreHistogram is the distribution of overall match scores [0,100]
	// labeled by recommendation band.
	MatchScoreHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "match_overall_score",
			Help:    "Distribution of overall match scores",
			Buckets: []float64{0, 10, 20, 30, 40, 45, 50, 60, 65, 70, 80, 90, 100},
		},
		[]string{"recommendation"},
	)

	// ScoreDriftGauge tracks detected drift of a score component against its
	// rolling baseline, labeled by component and extraction model version.
	ScoreDriftGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "match_score_drift",
			Help: "Detected score drift from baseline",
		},
		[]string{"component", "model_version"},
	)

	// CircuitBreakerStatus tracks breaker state (0=closed, 1=open, 2=half-open).
	CircuitBreakerStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_status",
			Help: "Circuit breaker status (0=closed, 1=open, 2=half-open)",
		},
		[]string{"service", "operation"},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(BusPublishedTotal)
	prometheus.MustRegister(BusConsumedTotal)
	prometheus.MustRegister(BusHandlerDuration)
	prometheus.MustRegister(BusRedeliveriesTotal)
	prometheus.MustRegister(BusDLQTotal)
	prometheus.MustRegister(AIRequestsTotal)
	prometheus.MustRegister(AIRequestDuration)
	prometheus.MustRegister(AITokenUsage)
	prometheus.MustRegister(MatchScoreHistogram)
	prometheus.MustRegister(ScoreDriftGauge)
	prometheus.MustRegister(CircuitBreakerStatus)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// RecordPublish counts one acknowledged publish.
func RecordPublish(subject string) {
	BusPublishedTotal.WithLabelValues(subject).Inc()
}

// RecordConsume counts one completed delivery with its outcome.
func RecordConsume(subject, group, outcome string) {
	BusConsumedTotal.WithLabelValues(subject, group, outcome).Inc()
}

// ObserveHandlerDuration records one handler invocation's runtime.
func ObserveHandlerDuration(subject, group string, d time.Duration) {
	BusHandlerDuration.WithLabelValues(subject, group).Observe(d.Seconds())
}

// RecordRedelivery counts one redelivery republish.
func RecordRedelivery(subject string) {
	BusRedeliveriesTotal.WithLabelValues(subject).Inc()
}

// RecordDLQ counts one dead-lettered envelope.
func RecordDLQ(subject string) {
	BusDLQTotal.WithLabelValues(subject).Inc()
}

// ObserveMatchScore records a completed match's overall score.
func ObserveMatchScore(recommendation string, overall float64) {
	if overall >= 0 && overall <= 100 {
		MatchScoreHistogram.WithLabelValues(recommendation).Observe(overall)
	}
}

// RecordAITokenUsage records LLM token consumption.
func RecordAITokenUsage(provider, tokenType, model string, tokens int) {
	AITokenUsage.WithLabelValues(provider, tokenType, model).Add(float64(tokens))
}

// RecordScoreDrift sets the drift gauge for a score component.
func RecordScoreDrift(component, modelVersion string, drift float64) {
	ScoreDriftGauge.WithLabelValues(component, modelVersion).Set(drift)
}

// RecordCircuitBreakerStatus records breaker state.
func RecordCircuitBreakerStatus(service, operation string, status int) {
	CircuitBreakerStatus.WithLabelValues(service, operation).Set(float64(status))
}
