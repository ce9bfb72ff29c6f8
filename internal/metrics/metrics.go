// Package metrics provides Prometheus instrumentation for the chat server.
// It exposes gauges for live connection counts and counters for message
// throughput, plus the /metrics HTTP handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsActive tracks the current number of open WebSocket connections,
	// authenticated or not.
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "concord_connections_active",
		Help: "Current number of open WebSocket connections",
	})

	// UsersOnline tracks the current number of registered (authenticated) users.
	UsersOnline = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "concord_users_online",
		Help: "Current number of authenticated users in the registry",
	})

	// InboundMessages counts inbound WebSocket frames by message type.
	// Unknown and malformed frames are labeled "dropped".
	InboundMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "concord_inbound_messages_total",
		Help: "Total number of inbound WebSocket messages processed",
	}, []string{"type"})

	// Broadcasts counts outbound broadcast fan-outs by frame type.
	Broadcasts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "concord_broadcasts_total",
		Help: "Total number of broadcast fan-outs sent",
	}, []string{"type"})

	// StoreFailures counts persistence errors by operation.
	StoreFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "concord_store_failures_total",
		Help: "Total number of failed store operations",
	}, []string{"operation"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsActive,
		UsersOnline,
		InboundMessages,
		Broadcasts,
		StoreFailures,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
