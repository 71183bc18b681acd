package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric naming convention: namespace_subsystem_name
// - namespace: roomrelay
// - subsystem: session, room, transport
//
// Gauges track current state (sessions, rooms, members); counters track
// cumulative events (logins, fan-outs, drops).

var (
	// ActiveSessions tracks the number of live session actors.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "roomrelay",
		Subsystem: "session",
		Name:      "sessions_active",
		Help:      "Current number of live sessions",
	})

	// ActiveRooms tracks the number of live room actors.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "roomrelay",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of live rooms",
	})

	// RoomMembers tracks the member count per room.
	RoomMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "roomrelay",
		Subsystem: "room",
		Name:      "members_count",
		Help:      "Number of members in each room",
	}, []string{"room_id"})

	// Logins counts login attempts by outcome (ok, unauthorized,
	// already_logged_in).
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomrelay",
		Subsystem: "session",
		Name:      "logins_total",
		Help:      "Total login attempts by outcome",
	}, []string{"outcome"})

	// MessagesFanout counts room fan-outs by kind (broadcast, unicast).
	MessagesFanout = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomrelay",
		Subsystem: "room",
		Name:      "messages_total",
		Help:      "Total messages fanned out by rooms",
	}, []string{"kind"})

	// DroppedDeliveries counts room events that could not be delivered
	// because the target session's sink had already closed.
	DroppedDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "roomrelay",
		Subsystem: "room",
		Name:      "dropped_deliveries_total",
		Help:      "Room events dropped because the session sink was closed",
	})

	// ConnectionsRejected counts connections refused before a session
	// was created, by reason (rate_limited, origin, tls).
	ConnectionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomrelay",
		Subsystem: "transport",
		Name:      "connections_rejected_total",
		Help:      "Connections refused before session creation",
	}, []string{"reason"})

	// PresenceFailures counts presence mirror operations dropped by the
	// circuit breaker or failed outright.
	PresenceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomrelay",
		Subsystem: "room",
		Name:      "presence_failures_total",
		Help:      "Presence mirror operations that failed or were dropped",
	}, []string{"op"})

	// CircuitBreakerState exposes the presence breaker state
	// (0 closed, 1 open, 2 half-open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "roomrelay",
		Subsystem: "room",
		Name:      "presence_breaker_state",
		Help:      "Presence circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"backend"})
)
