package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// It is passed explicitly to every component that records metrics; a nil
// *Metrics is valid everywhere and records nothing.
type Metrics struct {
	// Horizon metrics
	horizonCallsTotal   *prometheus.CounterVec
	horizonCallDuration *prometheus.HistogramVec

	// Wallet bridge metrics
	walletCallsTotal   *prometheus.CounterVec
	walletCallDuration *prometheus.HistogramVec

	// Session metrics
	connectsTotal         *prometheus.CounterVec
	balanceRefreshesTotal *prometheus.CounterVec

	// Payment metrics
	paymentAttemptsTotal     *prometheus.CounterVec
	paymentAttemptDuration   *prometheus.HistogramVec
	paymentValidationRejects *prometheus.CounterVec
	paymentStaleResults      prometheus.Counter

	// Database metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge
	sseEventsSent        *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		horizonCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horizon_calls_total",
				Help: "Total number of Horizon calls by method and status",
			},
			[]string{"method", "status"},
		),
		horizonCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "horizon_call_duration_seconds",
				Help:    "Duration of Horizon calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),

		walletCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_calls_total",
				Help: "Total number of wallet bridge calls by capability and outcome",
			},
			[]string{"capability", "outcome"},
		),
		walletCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "wallet_call_duration_seconds",
				Help: "Duration of wallet bridge calls in seconds, including time spent waiting on the user",
				// Signing waits on a human, so the tail is long.
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"capability"},
		),

		connectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_connects_total",
				Help: "Total number of wallet connect attempts by outcome",
			},
			[]string{"outcome"},
		),
		balanceRefreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_balance_refreshes_total",
				Help: "Total number of balance refreshes by outcome",
			},
			[]string{"outcome"},
		),

		paymentAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_attempts_total",
				Help: "Total number of payment attempts that reached a terminal status",
			},
			[]string{"status", "cause"},
		),
		paymentAttemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payment_attempt_duration_seconds",
				Help:    "Duration of payment attempts from Building to a terminal status",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		paymentValidationRejects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_validation_rejections_total",
				Help: "Total number of send requests rejected before any network call",
			},
			[]string{"rule"},
		),
		paymentStaleResults: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "payment_stale_results_total",
				Help: "Results from superseded attempts that were discarded",
			},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"event_type"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"stream", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"stream"},
		),
	}
}

// Horizon metric helpers

// RecordHorizonCall records a Horizon call with duration.
func (m *Metrics) RecordHorizonCall(method string, err error, duration float64) {
	if m == nil {
		return
	}
	m.horizonCallsTotal.WithLabelValues(method, errStatus(err)).Inc()
	m.horizonCallDuration.WithLabelValues(method).Observe(duration)
}

// Wallet metric helpers

// RecordWalletCall records a wallet bridge call. Outcome is one of
// "ok", "rejected" (the wallet answered with an error) or "error" (transport).
func (m *Metrics) RecordWalletCall(capability, outcome string, duration float64) {
	if m == nil {
		return
	}
	m.walletCallsTotal.WithLabelValues(capability, outcome).Inc()
	m.walletCallDuration.WithLabelValues(capability).Observe(duration)
}

// Session metric helpers

// RecordConnect records the outcome of a connect call.
func (m *Metrics) RecordConnect(outcome string) {
	if m == nil {
		return
	}
	m.connectsTotal.WithLabelValues(outcome).Inc()
}

// RecordBalanceRefresh records the outcome of a balance refresh.
func (m *Metrics) RecordBalanceRefresh(outcome string) {
	if m == nil {
		return
	}
	m.balanceRefreshesTotal.WithLabelValues(outcome).Inc()
}

// Payment metric helpers

// RecordAttempt records a payment attempt reaching a terminal status.
// Cause is empty for successful attempts.
func (m *Metrics) RecordAttempt(status, cause string, duration float64) {
	if m == nil {
		return
	}
	m.paymentAttemptsTotal.WithLabelValues(status, cause).Inc()
	m.paymentAttemptDuration.WithLabelValues(status).Observe(duration)
}

// RecordValidationReject records a send request rejected by a validation rule.
func (m *Metrics) RecordValidationReject(rule string) {
	if m == nil {
		return
	}
	m.paymentValidationRejects.WithLabelValues(rule).Inc()
}

// RecordStaleResult records a result dropped because a newer attempt superseded it.
func (m *Metrics) RecordStaleResult() {
	if m == nil {
		return
	}
	m.paymentStaleResults.Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, errStatus(err)).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(delta float64) {
	if m == nil {
		return
	}
	m.sseActiveConnections.Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(eventType string) {
	if m == nil {
		return
	}
	m.sseEventsSent.WithLabelValues(eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(stream string, err error, duration float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(stream, errStatus(err)).Inc()
	m.natsPublishDuration.WithLabelValues(stream).Observe(duration)
}

// Helper functions

func errStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
