// Package server exposes Prometheus metrics describing connection,
// room, and relay activity.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	openConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "heychat_open_connections",
		Help: "Number of currently open WebSocket connections.",
	})

	activeRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "heychat_active_rooms",
		Help: "Number of rooms with at least one member.",
	})

	messagesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heychat_messages_relayed_total",
		Help: "Total chat messages fanned out to room members.",
	})

	presenceEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heychat_presence_events_total",
		Help: "Total presence notifications sent, by kind.",
	}, []string{"kind"})
)

// MetricsHandler serves the Prometheus metrics endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
