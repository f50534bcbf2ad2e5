package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisorly_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "advisorly_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	RequestsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "advisorly_consultation_requests_total",
			Help: "Total consultation requests created",
		},
	)

	RequestsResponded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisorly_consultation_responses_total",
			Help: "Total advisor responses to requests",
		},
		[]string{"decision"}, // "accepted" or "rejected"
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisorly_messages_sent_total",
			Help: "Total messages persisted",
		},
		[]string{"content_type"}, // "text" or "file"
	)

	// Realtime metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "advisorly_ws_connections",
			Help: "Currently open websocket connections",
		},
	)

	WSEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisorly_ws_events_total",
			Help: "Total inbound websocket events",
		},
		[]string{"event"},
	)

	// Minutes pipeline metrics
	MinutesRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisorly_minutes_runs_total",
			Help: "Total minutes pipeline runs by outcome",
		},
		[]string{"outcome"}, // "submitted", "ready", "error", "published"
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "advisorly_minutes_stage_duration_seconds",
			Help:    "Duration of minutes pipeline stages",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"stage"}, // "convert" or "transcribe"
	)

	// Infrastructure metrics
	DatastoreLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "advisorly_datastore_latency_seconds",
			Help:    "Datastore query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)
