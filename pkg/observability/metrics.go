package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crib_http_requests_total",
			Help: "Total HTTP requests by route, method, and status.",
		},
		[]string{"route", "method", "status"},
	)

	IngestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crib_ingest_total",
			Help: "Ingested readings by transport and result (accepted, invalid, error).",
		},
		[]string{"transport", "result"},
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crib_ingest_duration_seconds",
			Help:    "Time from validation to publish for accepted readings.",
			Buckets: prometheus.DefBuckets,
		},
	)

	AlertsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crib_alerts_total",
			Help: "Alerts attached to stored readings, by alert type.",
		},
		[]string{"type"},
	)

	ThresholdFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crib_threshold_fallback_total",
			Help: "Threshold reads answered with fallback bounds because the store failed.",
		},
	)

	BroadcastSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crib_broadcast_subscribers",
			Help: "Currently connected real-time subscribers.",
		},
	)

	BroadcastDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crib_broadcast_dropped_total",
			Help: "Subscribers dropped because their buffer was full.",
		},
	)

	RetentionDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crib_retention_deleted_total",
			Help: "Readings deleted by the retention sweeper.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequests,
		IngestTotal,
		IngestDuration,
		AlertsRaised,
		ThresholdFallbacks,
		BroadcastSubscribers,
		BroadcastDropped,
		RetentionDeleted,
	)
}
