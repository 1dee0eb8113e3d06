// Package server metrics: Prometheus instrumentation for the relay hub.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the hub's Prometheus collectors.
type Metrics struct {
	Connections   prometheus.Gauge
	Rooms         prometheus.Gauge
	EventsRelayed prometheus.Counter
	SendFailures  prometheus.Counter
	Reaped        prometheus.Counter
}

// NewMetrics registers the hub collectors with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Number of live client connections.",
		}),
		Rooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_rooms",
			Help: "Number of rooms with at least one member.",
		}),
		EventsRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_events_relayed_total",
			Help: "Chat events accepted and broadcast to a room.",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_send_failures_total",
			Help: "Broadcast deliveries dropped because a client queue was full or closed.",
		}),
		Reaped: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_reaped_connections_total",
			Help: "Connections force-closed by the idle reaper.",
		}),
	}
}
