// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizalert_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bizalert_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	// Evaluation metrics
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizalert_evaluations_total",
			Help: "Total number of alert evaluations",
		},
		[]string{"source"}, // source: monitor, api, cli
	)

	RecordsEvaluated = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bizalert_records_evaluated",
			Help:    "Number of branch records per evaluation",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)

	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizalert_alerts_total",
			Help: "Total number of alerts raised",
		},
		[]string{"rule_id", "severity"},
	)

	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bizalert_alerts_suppressed_total",
			Help: "Alerts withheld from notification by the cooldown window",
		},
	)

	// Monitor metrics
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bizalert_cycle_duration_seconds",
			Help:    "Time taken by one monitoring cycle",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	CycleFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bizalert_cycle_failures_total",
			Help: "Total number of failed monitoring cycles",
		},
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizalert_notifications_total",
			Help: "Alert deliveries per sink",
		},
		[]string{"sink", "status"}, // status: success, failed
	)

	NotifyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bizalert_notify_duration_seconds",
			Help:    "Time taken to deliver alerts to a sink",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"sink"},
	)

	KafkaBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bizalert_kafka_bytes_written_total",
			Help: "Total bytes written to Kafka",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizalert_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
