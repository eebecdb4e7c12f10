package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReadingsReceived counts raw samples and updates taken off the transports.
	ReadingsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitals_readings_received_total",
			Help: "Total number of vital readings received",
		},
		[]string{"source"},
	)

	ReadingsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitals_readings_processed_total",
			Help: "Total number of vital readings run through the pipeline",
		},
		[]string{"source"},
	)

	ReadingsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitals_readings_dropped_total",
			Help: "Total number of vital readings dropped before processing",
		},
		[]string{"reason"},
	)

	AlertsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitals_alerts_emitted_total",
			Help: "Total number of alerts emitted",
		},
		[]string{"severity"},
	)

	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vitals_alerts_suppressed_total",
			Help: "Total number of alerts suppressed by the cooldown",
		},
	)

	DeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitals_alert_delivery_failures_total",
			Help: "Total number of failed alert deliveries",
		},
		[]string{"sink"},
	)

	RiskLevel = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vitals_patient_risk_level",
			Help: "Latest risk level per patient",
		},
		[]string{"patient_id"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vitals_active_sessions",
			Help: "Number of active monitoring sessions",
		},
	)

	SessionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vitals_session_start_failures_total",
			Help: "Total number of monitoring sessions that failed to start",
		},
	)

	// ProcessingLatency covers assess, dispatch and persistence of one reading.
	ProcessingLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vitals_processing_latency_seconds",
			Help:    "Per-reading processing latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	PerfAverage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "perf_rolling_average_ms",
			Help: "Rolling average of named timing samples in milliseconds",
		},
		[]string{"name"},
	)

	PerfWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "perf_warnings_total",
			Help: "Total number of performance warnings raised",
		},
	)

	RedisOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total number of Redis operations",
		},
		[]string{"operation", "status"},
	)
)
