// Package metrics holds the prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trato_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trato_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	OnlineConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trato_ws_online_connections",
			Help: "Number of live websocket connections on this instance",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trato_ws_online_users",
			Help: "Number of users with at least one live connection on this instance",
		},
	)

	PushedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trato_ws_pushed_events_total",
			Help: "Events written to websocket connections by event type",
		},
		[]string{"type"},
	)

	DroppedPushes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trato_ws_dropped_pushes_total",
			Help: "Push tasks dropped because the push queue was full",
		},
	)

	RejectedCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trato_ws_rejected_commands_total",
			Help: "Websocket commands answered with an error by command and error kind",
		},
		[]string{"command", "kind"},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trato_notifications_total",
			Help: "Notification dispatch outcomes by event type",
		},
		[]string{"event_type", "outcome"},
	)
)

// Notification dispatch outcomes
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)
