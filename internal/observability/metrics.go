// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Execution metrics
	SwapsSettled     prometheus.Counter
	SwapsAborted     *prometheus.CounterVec
	SwapVolumeIn     prometheus.Counter
	SwapVolumeOut    prometheus.Counter
	SwapsInFlight    prometheus.Gauge
	ExecutionLatency prometheus.Histogram

	// Venue metrics
	QuotesServed     *prometheus.CounterVec
	VenueCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Stream metrics
	StreamSubscribers       prometheus.Gauge
	StreamMessagesPublished prometheus.Counter

	// Health metrics
	LastSettlement prometheus.Gauge
	UptimeSeconds  prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_swap_guard"
	}

	return &Metrics{
		// Execution metrics
		SwapsSettled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "swaps_settled_total",
			Help:      "Total number of swaps settled",
		}),
		SwapsAborted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "swaps_aborted_total",
			Help:      "Total number of aborted swap invocations by reason",
		}, []string{"reason"}),
		SwapVolumeIn: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "volume_in_total",
			Help:      "Total input amount across settled swaps",
		}),
		SwapVolumeOut: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "volume_out_total",
			Help:      "Total output amount across settled swaps",
		}),
		SwapsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "swaps_in_flight",
			Help:      "Number of swap invocations currently executing",
		}),
		ExecutionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "execution_latency_seconds",
			Help:      "End-to-end swap execution latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Venue metrics
		QuotesServed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "venue",
			Name:      "quotes_served_total",
			Help:      "Total number of quotes served by status",
		}, []string{"status"}),
		VenueCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "venue",
			Name:      "call_latency_seconds",
			Help:      "Venue call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Stream metrics
		StreamSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Number of connected settlement stream subscribers",
		}),
		StreamMessagesPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_published_total",
			Help:      "Total number of settlement messages published",
		}),

		// Health metrics
		LastSettlement: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_settlement_timestamp",
			Help:      "Unix timestamp of last settled swap",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSwapSettled records one settled swap.
func RecordSwapSettled(amountIn, amountOut uint64, seconds float64) {
	DefaultMetrics.SwapsSettled.Inc()
	DefaultMetrics.SwapVolumeIn.Add(float64(amountIn))
	DefaultMetrics.SwapVolumeOut.Add(float64(amountOut))
	DefaultMetrics.ExecutionLatency.Observe(seconds)
}

// RecordSwapAborted records one aborted invocation by failure reason.
func RecordSwapAborted(reason string, seconds float64) {
	DefaultMetrics.SwapsAborted.WithLabelValues(reason).Inc()
	DefaultMetrics.ExecutionLatency.Observe(seconds)
}

// RecordQuote records a quote by status ("ok" or "error").
func RecordQuote(status string) {
	DefaultMetrics.QuotesServed.WithLabelValues(status).Inc()
}

// RecordVenueLatency records venue call latency.
func RecordVenueLatency(method string, seconds float64) {
	DefaultMetrics.VenueCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// UpdateStreamSubscribers sets the subscriber gauge.
func UpdateStreamSubscribers(n int) {
	DefaultMetrics.StreamSubscribers.Set(float64(n))
}

// RecordStreamPublish increments the published messages counter.
func RecordStreamPublish() {
	DefaultMetrics.StreamMessagesPublished.Inc()
}

// UpdateLastSettlement sets the last settlement timestamp.
func UpdateLastSettlement(unixSeconds int64) {
	DefaultMetrics.LastSettlement.Set(float64(unixSeconds))
}
