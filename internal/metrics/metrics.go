// Package metrics defines the Prometheus collectors for the realtime
// notification subsystem and its supporting components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WebSocket / session metrics
var (
	// ActiveConnections tracks currently open WebSocket connections
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	// ConnectionsRejectedTotal tracks upgrades rejected by connection limits
	ConnectionsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "WebSocket upgrades rejected by connection limits, by reason",
		},
		[]string{"reason"},
	)

	// AuthAttemptsTotal tracks authenticate calls by result
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_auth_attempts_total",
			Help: "Authentication attempts by result (success/invalid)",
		},
		[]string{"result"},
	)

	// AuthTimeoutsTotal tracks sessions force-closed at the auth deadline
	AuthTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_auth_timeouts_total",
			Help: "Sessions disconnected for missing the authentication deadline",
		},
	)

	// RegisteredIdentities tracks the current size of the connection registry
	RegisteredIdentities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_identities",
			Help: "Identities currently registered with a live connection",
		},
	)
)

// Notification router metrics
var (
	// NotificationsDeliveredTotal tracks delivered events by event name and target kind
	NotificationsDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_delivered_total",
			Help: "Notifications delivered to live connections, by event and target kind",
		},
		[]string{"event", "target"},
	)

	// NotificationsDroppedTotal tracks undeliverable events by reason
	NotificationsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dropped_total",
			Help: "Notifications dropped without delivery, by reason",
		},
		[]string{"reason"},
	)
)

// Detection pipeline metrics
var (
	// DetectionRunsTotal tracks model subprocess invocations by status
	DetectionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detection_runs_total",
			Help: "Detection subprocess runs by status (success/error)",
		},
		[]string{"status"},
	)

	// DetectionRunDuration tracks model subprocess latency in seconds
	DetectionRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "detection_run_duration_seconds",
			Help:    "Detection subprocess duration in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// DetectionBreakerState tracks the circuit breaker state (0=closed, 1=half-open, 2=open)
	DetectionBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "detection_breaker_state",
			Help: "Detection circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)

// Email metrics
var (
	// EmailSendsTotal tracks outbound email attempts by status
	EmailSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_sends_total",
			Help: "Outbound email attempts by status (success/error)",
		},
		[]string{"status"},
	)
)
