package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the room broadcast service
//
// Naming convention: namespace_subsystem_name
// - namespace: roomcast (application-level grouping)
// - subsystem: websocket, room, http (feature-level grouping)
// - name: specific metric (connections_active, messages_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms)
// - Counter: Cumulative events (messages broadcast, drops, reaps)

var (
	// ActiveConnections tracks the current number of active WebSocket connections (Gauge - current state)
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "roomcast",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of rooms held in the registry,
	// including rooms in their removal grace period (Gauge - current state)
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "roomcast",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of rooms in the registry",
	})

	// RoomConnections tracks the number of connections per room (GaugeVec with room label - current state per room)
	RoomConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "roomcast",
		Subsystem: "room",
		Name:      "connections_count",
		Help:      "Number of connections in each room",
	}, []string{"room"})

	// MessagesBroadcast counts messages appended to history and fanned out (CounterVec - cumulative)
	MessagesBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomcast",
		Subsystem: "room",
		Name:      "messages_total",
		Help:      "Total messages broadcast per room",
	}, []string{"room"})

	// MessagesDropped counts backlog messages evicted from slow subscribers (Counter - cumulative)
	MessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "roomcast",
		Subsystem: "websocket",
		Name:      "messages_dropped_total",
		Help:      "Total backlog messages dropped for slow subscribers",
	})

	// RoomsReaped counts rooms removed after their idle grace period expired (Counter - cumulative)
	RoomsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "roomcast",
		Subsystem: "room",
		Name:      "reaped_total",
		Help:      "Total rooms removed after the idle grace period",
	})

	// RoomsReactivated counts rooms pulled back from a pending removal by a new join (Counter - cumulative)
	RoomsReactivated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "roomcast",
		Subsystem: "room",
		Name:      "reactivated_total",
		Help:      "Total rooms reactivated during their removal grace period",
	})

	// WebsocketEvents tracks connection lifecycle events (CounterVec - cumulative)
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomcast",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket lifecycle events",
	}, []string{"event_type", "status"})

	// RateLimitRequests counts requests that passed a rate limit check (CounterVec - cumulative)
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomcast",
		Subsystem: "http",
		Name:      "rate_limit_requests_total",
		Help:      "Total requests checked against a rate limit",
	}, []string{"endpoint"})

	// RateLimitExceeded counts requests rejected by a rate limit (CounterVec - cumulative)
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomcast",
		Subsystem: "http",
		Name:      "rate_limit_exceeded_total",
		Help:      "Total requests rejected by a rate limit",
	}, []string{"endpoint", "limit_type"})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}

// RoomRemoved clears per-room gauge series once a room leaves the
// registry so stale label values do not linger in scrapes.
func RoomRemoved(room string) {
	RoomConnections.DeleteLabelValues(room)
}
