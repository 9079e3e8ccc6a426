// Package metrics provides Prometheus metrics for the matchmaking hub.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueueAdmissions counts accepted join-queue requests.
	QueueAdmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speakmatch_queue_admissions_total",
			Help: "Total number of accepted queue admissions",
		},
		[]string{"session_type"},
	)

	// QueueRejections counts rejected join-queue requests by reason.
	QueueRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speakmatch_queue_rejections_total",
			Help: "Total number of rejected queue admissions",
		},
		[]string{"reason"},
	)

	// QueueExpired counts entries evicted by the TTL.
	QueueExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "speakmatch_queue_expired_total",
			Help: "Total number of queue entries evicted after the TTL",
		},
	)

	// QueueDepth tracks waiting entries per session type.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "speakmatch_queue_depth",
			Help: "Number of entries currently in the waiting queue",
		},
		[]string{"session_type"},
	)

	// Matches counts committed pairings.
	Matches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speakmatch_matches_total",
			Help: "Total number of successful pairings",
		},
		[]string{"session_type"},
	)

	// MatchRollbacks counts pairings undone because a peer could not be notified.
	MatchRollbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "speakmatch_match_rollbacks_total",
			Help: "Total number of pairings rolled back after a failed notification",
		},
	)

	// RoomsActive tracks rooms that are not yet ended.
	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "speakmatch_rooms_active",
			Help: "Number of rooms that have not ended",
		},
	)

	// RoomTransitions tracks room state changes.
	RoomTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speakmatch_room_transitions_total",
			Help: "Total number of room state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	// RoomDuration observes the duration of rooms that reached active.
	RoomDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "speakmatch_room_duration_seconds",
			Help:    "Duration of completed practice sessions",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		},
	)

	// RelayMessages counts forwarded signaling messages.
	RelayMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speakmatch_relay_messages_total",
			Help: "Total number of forwarded signaling messages",
		},
		[]string{"kind"},
	)

	// RelayDropped counts signaling messages refused by the relay.
	RelayDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speakmatch_relay_dropped_total",
			Help: "Total number of dropped signaling messages",
		},
		[]string{"reason"},
	)
)

// RecordRoomCreated increments the open room gauge.
func RecordRoomCreated() {
	RoomsActive.Inc()
}

// RecordRoomClosed decrements the open room gauge.
func RecordRoomClosed() {
	RoomsActive.Dec()
}

// RecordStateTransition records a room state change.
func RecordStateTransition(fromState, toState string) {
	RoomTransitions.WithLabelValues(fromState, toState).Inc()
}

// Handler exposes Prometheus metrics at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
