package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Transport client
	TransportRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicemarket_transport_requests_total",
			Help: "Outbound API requests by method and result",
		},
		[]string{"method", "result"},
	)

	TransportRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicemarket_transport_refreshes_total",
			Help: "Credential refresh attempts triggered by authorization failures",
		},
		[]string{"result"},
	)

	TransportLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "servicemarket_transport_request_duration_seconds",
			Help:    "Outbound API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	BreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "servicemarket_transport_breaker_state",
			Help: "Circuit breaker state (0 = closed, 1 = half-open, 2 = open)",
		},
	)

	// Order state machine
	OrderTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicemarket_order_transitions_total",
			Help: "Order transition attempts by action and result",
		},
		[]string{"action", "result"},
	)

	// Conversation channel
	ChannelMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicemarket_chat_messages_total",
			Help: "Chat messages by direction and channel",
		},
		[]string{"direction", "channel"},
	)

	ChannelDegradations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "servicemarket_chat_degradations_total",
			Help: "Times a realtime channel fell back to request/response delivery",
		},
	)

	OpenChannels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "servicemarket_chat_open_handles",
			Help: "Conversation handles currently open",
		},
	)

	// Synchronizer
	PollTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicemarket_sync_ticks_total",
			Help: "Synchronizer poll ticks by result (applied, failed, discarded)",
		},
		[]string{"result"},
	)

	UnreadNotifications = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "servicemarket_sync_unread_notifications",
			Help: "Unread notification count last observed from the server",
		},
	)

	// Reference backend
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicemarket_http_requests_total",
			Help: "Backend HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "servicemarket_ws_connections",
			Help: "Realtime conversation connections held by the backend hub",
		},
	)

	InvoicesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "servicemarket_invoices_created_total",
			Help: "Invoices created for completed orders",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TransportRequests,
		TransportRefreshes,
		TransportLatency,
		BreakerState,
		OrderTransitions,
		ChannelMessages,
		ChannelDegradations,
		OpenChannels,
		PollTicks,
		UnreadNotifications,
		HTTPRequests,
		WSConnections,
		InvoicesCreated,
	)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
