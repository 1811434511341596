package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// RPC Metrics
	rpcCallsTotal        *prometheus.CounterVec
	rpcCallDuration      *prometheus.HistogramVec
	rpcRateLimitHits     *prometheus.CounterVec
	rpcSignaturesPerCall *prometheus.HistogramVec

	// Scan Metrics
	scanPagesTotal      *prometheus.CounterVec
	scanSignaturesTotal *prometheus.CounterVec
	scanRunsTotal       *prometheus.CounterVec
	scanActiveRuns      prometheus.Gauge

	// Detail Metrics
	detailFetchesTotal  *prometheus.CounterVec
	detailBatchDuration prometheus.Histogram

	// Validator Metrics
	validatorsMatched *prometheus.GaugeVec

	// Workflow Metrics
	backfillStarts   *prometheus.CounterVec
	activityDuration *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections *prometheus.GaugeVec
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
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
		// RPC Metrics
		rpcCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_calls_total",
				Help: "Total number of upstream RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		rpcCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rpc_call_duration_seconds",
				Help:    "Duration of upstream RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		rpcRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_rate_limit_hits_total",
				Help: "Total number of upstream RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		rpcSignaturesPerCall: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rpc_signatures_per_call",
				Help:    "Number of signatures fetched per getSignaturesForAddress call",
				Buckets: []float64{0, 1, 10, 100, 250, 500, 999, 1000},
			},
			[]string{"endpoint"},
		),

		// Scan Metrics
		scanPagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scan_pages_total",
				Help: "Total number of signature pages recorded by the scanner",
			},
			[]string{"vote_address"},
		),
		scanSignaturesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scan_signatures_total",
				Help: "Total number of signatures recorded by the scanner",
			},
			[]string{"vote_address"},
		),
		scanRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scan_runs_total",
				Help: "Total number of scan runs by outcome (cached, done, error, canceled)",
			},
			[]string{"outcome"},
		),
		scanActiveRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scan_active_runs",
				Help: "Number of scans currently walking history",
			},
		),

		// Detail Metrics
		detailFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "detail_fetches_total",
				Help: "Total number of transaction detail fetches",
			},
			[]string{"status"},
		),
		detailBatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "detail_batch_duration_seconds",
				Help:    "Duration of one detail batch in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),

		// Validator Metrics
		validatorsMatched: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "validators_enriched",
				Help: "Validators in the last listing by how their metadata was matched",
			},
			[]string{"match"},
		),

		// Workflow Metrics
		backfillStarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backfill_starts_total",
				Help: "Total number of backfill workflow start requests",
			},
			[]string{"status"},
		),
		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "activity_duration_seconds",
				Help:    "Duration of workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"activity", "status"},
		),

		// Database Metrics
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

		// HTTP Metrics
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
		sseActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
			[]string{"vote_address"},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"vote_address", "event_type"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// RPC metric helpers

// RecordRPCCall records an upstream RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.rpcCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.rpcCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.rpcRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCSignaturesPerCall records the number of signatures fetched.
func (m *Metrics) RecordRPCSignaturesPerCall(endpoint string, count float64) {
	m.rpcSignaturesPerCall.WithLabelValues(endpoint).Observe(count)
}

// Scan metric helpers

// RecordScanPage records one recorded page of signatures.
func (m *Metrics) RecordScanPage(voteAddress string, signatures int) {
	m.scanPagesTotal.WithLabelValues(voteAddress).Inc()
	m.scanSignaturesTotal.WithLabelValues(voteAddress).Add(float64(signatures))
}

// RecordScanRun records how a scan run ended.
func (m *Metrics) RecordScanRun(outcome string) {
	m.scanRunsTotal.WithLabelValues(outcome).Inc()
}

// RecordActiveScanChange adjusts the number of in-flight scans.
func (m *Metrics) RecordActiveScanChange(delta float64) {
	m.scanActiveRuns.Add(delta)
}

// Detail metric helpers

// RecordDetailFetch records a single transaction detail fetch.
func (m *Metrics) RecordDetailFetch(status string) {
	m.detailFetchesTotal.WithLabelValues(status).Inc()
}

// RecordDetailBatch records the duration of one detail batch.
func (m *Metrics) RecordDetailBatch(duration float64) {
	m.detailBatchDuration.Observe(duration)
}

// Validator metric helpers

// RecordValidatorMatches records how many validators matched by each source.
func (m *Metrics) RecordValidatorMatches(counts map[string]int) {
	for match, n := range counts {
		m.validatorsMatched.WithLabelValues(match).Set(float64(n))
	}
}

// Workflow metric helpers

// RecordBackfillStart records a backfill workflow start request.
func (m *Metrics) RecordBackfillStart(status string) {
	m.backfillStarts.WithLabelValues(status).Inc()
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity, status string, duration float64) {
	m.activityDuration.WithLabelValues(activity, status).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(voteAddress string, delta float64) {
	m.sseActiveConnections.WithLabelValues(voteAddress).Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(voteAddress, eventType string) {
	m.sseEventsSent.WithLabelValues(voteAddress, eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
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
