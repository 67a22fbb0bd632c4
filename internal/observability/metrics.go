// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the safety engine.
type Metrics struct {
	// Detector metrics
	DetectorRuns     *prometheus.CounterVec
	DetectorDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Provider metrics
	ProviderCallLatency *prometheus.HistogramVec
	ProviderCallErrors  *prometheus.CounterVec

	// Verdict metrics
	VerdictsByRisk     *prometheus.CounterVec
	HoneypotsDetected  prometheus.Counter
	CompositeAnalyses  prometheus.Counter
	BatchAnalysesTotal prometheus.Counter

	// Feed metrics
	FeedTokensObserved prometheus.Counter
	FeedReconnects     prometheus.Counter

	// Storage metrics
	StoreErrors *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "safety_engine"
	}

	return &Metrics{
		DetectorRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "runs_total",
			Help:      "Total detector runs by detector and status",
		}, []string{"detector", "status"}),
		DetectorDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "duration_seconds",
			Help:      "Detector run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"detector"}),

		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total verdict cache hits by detector",
		}, []string{"detector"}),
		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total verdict cache misses by detector",
		}, []string{"detector"}),

		ProviderCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_latency_seconds",
			Help:      "Chain data provider call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		ProviderCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_errors_total",
			Help:      "Total chain data provider call errors by method",
		}, []string{"method"}),

		VerdictsByRisk: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verdict",
			Name:      "by_risk_total",
			Help:      "Total composite verdicts by overall risk level",
		}, []string{"risk"}),
		HoneypotsDetected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verdict",
			Name:      "honeypots_detected_total",
			Help:      "Total tokens classified as honeypots",
		}),
		CompositeAnalyses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verdict",
			Name:      "composite_analyses_total",
			Help:      "Total full composite analyses performed",
		}),
		BatchAnalysesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verdict",
			Name:      "batch_analyses_total",
			Help:      "Total batch analyses performed",
		}),

		FeedTokensObserved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "tokens_observed_total",
			Help:      "Total fresh tokens observed on the feed",
		}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Total feed reconnect attempts",
		}),

		StoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Total storage errors by store and operation",
		}, []string{"store", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordDetectorRun records one detector run.
func RecordDetectorRun(detector, status string, seconds float64) {
	DefaultMetrics.DetectorRuns.WithLabelValues(detector, status).Inc()
	DefaultMetrics.DetectorDuration.WithLabelValues(detector).Observe(seconds)
}

// RecordCacheHit increments the cache hit counter for a detector.
func RecordCacheHit(detector string) {
	DefaultMetrics.CacheHits.WithLabelValues(detector).Inc()
}

// RecordCacheMiss increments the cache miss counter for a detector.
func RecordCacheMiss(detector string) {
	DefaultMetrics.CacheMisses.WithLabelValues(detector).Inc()
}

// RecordProviderCall records provider call latency and errors.
func RecordProviderCall(method string, seconds float64, err error) {
	DefaultMetrics.ProviderCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.ProviderCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordCompositeVerdict records one finished composite analysis.
func RecordCompositeVerdict(risk string, isHoneypot bool) {
	DefaultMetrics.CompositeAnalyses.Inc()
	DefaultMetrics.VerdictsByRisk.WithLabelValues(risk).Inc()
	if isHoneypot {
		DefaultMetrics.HoneypotsDetected.Inc()
	}
}

// RecordBatchAnalysis increments the batch counter.
func RecordBatchAnalysis() {
	DefaultMetrics.BatchAnalysesTotal.Inc()
}

// RecordFeedToken increments the observed-token counter.
func RecordFeedToken() {
	DefaultMetrics.FeedTokensObserved.Inc()
}

// RecordFeedReconnect increments the feed reconnect counter.
func RecordFeedReconnect() {
	DefaultMetrics.FeedReconnects.Inc()
}

// RecordStoreError records a storage error.
func RecordStoreError(store, operation string) {
	DefaultMetrics.StoreErrors.WithLabelValues(store, operation).Inc()
}
