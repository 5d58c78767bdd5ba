// Package metrics provides Prometheus instrumentation for the relay server.
// It exposes gauges for connection, registration, and session counts, and
// counters for relay and abuse activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// RegisteredUsers tracks the current number of registered users.
	RegisteredUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_registered_users",
		Help: "Current number of registered users",
	})

	// ActiveSessions tracks the current number of live sessions.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_active_sessions",
		Help: "Current number of live one-to-one sessions",
	})

	// MessagesRelayed counts messages accepted and delivered by the relay.
	MessagesRelayed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_relayed_total",
		Help: "Total number of messages relayed",
	})

	// MessagesExpired counts messages purged by the expiry sweeper.
	MessagesExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_expired_total",
		Help: "Total number of messages purged after their TTL",
	})

	// MessagesEvicted counts messages dropped by the per-session FIFO cap.
	MessagesEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_evicted_total",
		Help: "Total number of messages dropped by the per-session cap",
	})

	// KnocksTotal counts delivered knock notices.
	KnocksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_knocks_total",
		Help: "Total number of delivered knocks",
	})

	// ReportsTotal counts accepted (non-duplicate) abuse reports.
	ReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_reports_total",
		Help: "Total number of accepted abuse reports",
	})

	// BansTotal counts executed ban cascades.
	BansTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_bans_total",
		Help: "Total number of banned users",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		RegisteredUsers,
		ActiveSessions,
		MessagesRelayed,
		MessagesExpired,
		MessagesEvicted,
		KnocksTotal,
		ReportsTotal,
		BansTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
