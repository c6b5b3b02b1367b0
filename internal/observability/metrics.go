// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Transaction metrics
	PlansBuilt        *prometheus.CounterVec
	Submissions       *prometheus.CounterVec
	OutcomeRequeries  prometheus.Counter
	ValidationErrors  *prometheus.CounterVec
	SubmissionLatency prometheus.Histogram

	// Bid reconciliation metrics
	BidsReconciled      prometheus.Counter
	BidMergeDuplicates  prometheus.Counter
	OffchainDegradation prometheus.Counter

	// Auction metrics
	AuctionsFinalized *prometheus.CounterVec
	SweepDuration     prometheus.Histogram
	SweepBacklog      prometheus.Gauge

	// Ledger client metrics
	LedgerCallLatency *prometheus.HistogramVec
	StreamReconnects  prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulSweep prometheus.Gauge
	UptimeSeconds       prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "stellar_nft_market"
	}

	return &Metrics{
		// Transaction metrics
		PlansBuilt: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "plans_built_total",
			Help:      "Total number of operation plans built by intent kind",
		}, []string{"intent"}),
		Submissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "submissions_total",
			Help:      "Total number of transaction submissions by outcome",
		}, []string{"outcome"}),
		OutcomeRequeries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "outcome_requeries_total",
			Help:      "Total number of post-timeout transaction outcome re-queries",
		}),
		ValidationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "validation_errors_total",
			Help:      "Total number of rejected inputs by reason",
		}, []string{"reason"}),
		SubmissionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "submission_latency_seconds",
			Help:      "Transaction submission latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Bid reconciliation metrics
		BidsReconciled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bids",
			Name:      "reconciled_total",
			Help:      "Total number of bid reconciliation runs",
		}),
		BidMergeDuplicates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bids",
			Name:      "merge_duplicates_total",
			Help:      "Total number of off-chain records collapsed into order-book entries",
		}),
		OffchainDegradation: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bids",
			Name:      "offchain_degradations_total",
			Help:      "Total number of reconciliations that ran without the off-chain store",
		}),

		// Auction metrics
		AuctionsFinalized: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auction",
			Name:      "finalized_total",
			Help:      "Total number of auctions finalized by terminal status",
		}, []string{"status"}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "auction",
			Name:      "sweep_duration_seconds",
			Help:      "Expired-auction sweep duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		SweepBacklog: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "auction",
			Name:      "sweep_backlog",
			Help:      "Number of expired auctions found by the last sweep",
		}),

		// Ledger client metrics
		LedgerCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "call_latency_seconds",
			Help:      "Ledger API call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		StreamReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "stream_reconnects_total",
			Help:      "Total number of trade stream reconnects",
		}),

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

		// Health metrics
		LastSuccessfulSweep: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sweep_timestamp",
			Help:      "Unix timestamp of last successful auction sweep",
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

// RecordPlanBuilt increments the plans-built counter for an intent kind.
func RecordPlanBuilt(intent string) {
	DefaultMetrics.PlansBuilt.WithLabelValues(intent).Inc()
}

// RecordSubmission increments the submissions counter for an outcome.
func RecordSubmission(outcome string) {
	DefaultMetrics.Submissions.WithLabelValues(outcome).Inc()
}

// RecordFinalized increments the finalized counter for a terminal status.
func RecordFinalized(status string) {
	DefaultMetrics.AuctionsFinalized.WithLabelValues(status).Inc()
}

// RecordReconciliation increments the reconciliation counters.
func RecordReconciliation(degraded bool) {
	DefaultMetrics.BidsReconciled.Inc()
	if degraded {
		DefaultMetrics.OffchainDegradation.Inc()
	}
}

// RecordValidationError increments the validation-errors counter for a
// reason code. An empty reason is ignored.
func RecordValidationError(reason string) {
	if reason == "" {
		return
	}
	DefaultMetrics.ValidationErrors.WithLabelValues(reason).Inc()
}

// ObserveLedgerCall records a ledger API call's latency.
func ObserveLedgerCall(method string, start time.Time) {
	DefaultMetrics.LedgerCallLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// ObserveDBQuery records a database query's duration and outcome.
func ObserveDBQuery(database, operation string, start time.Time, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
