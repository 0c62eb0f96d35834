package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sessiond_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessiond_sessions_started_total",
			Help: "Total session instances started",
		},
	)

	SessionsEnded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessiond_sessions_ended_total",
			Help: "Total session instances ended",
		},
	)

	Joins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_joins_total",
			Help: "Total successful joins",
		},
		[]string{"placement"}, // "in_room" or "waiting"
	)

	FlagsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_flags_raised_total",
			Help: "Total flags raised",
		},
		[]string{"raised_by"}, // "assessor" or "moderator"
	)

	Kicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessiond_kicks_total",
			Help: "Total participants kicked",
		},
	)

	// Publish pipeline metrics
	EventsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_events_recorded_total",
			Help: "Total audit events appended",
		},
		[]string{"type"},
	)

	PublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessiond_publish_failures_total",
			Help: "Total failed publish attempts",
		},
	)

	SweeperRepublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessiond_sweeper_republished_total",
			Help: "Total events republished by the sweeper",
		},
	)
)
