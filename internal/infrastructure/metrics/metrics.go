package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Chat-API Metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fitloop",
			Subsystem: "chat_api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fitloop",
			Subsystem: "chat_api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Messages appended to the log
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fitloop",
			Subsystem: "chat_api",
			Name:      "messages_sent_total",
			Help:      "Total messages appended to the message log",
		},
	)

	// Conversations created
	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fitloop",
			Subsystem: "chat_api",
			Name:      "conversations_created_total",
			Help:      "Total conversations created",
		},
	)

	// Broadcast publish failures, by event name
	BroadcastFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fitloop",
			Subsystem: "chat_api",
			Name:      "broadcast_failures_total",
			Help:      "Total failed pub/sub publishes (best-effort delivery)",
		},
		[]string{"event"},
	)

	// Attachment upload volume
	AttachmentBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fitloop",
			Subsystem: "chat_api",
			Name:      "attachment_bytes_total",
			Help:      "Total attachment bytes uploaded to the blob store",
		},
	)

	// Connected websocket clients
	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fitloop",
			Subsystem: "chat_api",
			Name:      "websocket_clients",
			Help:      "Currently connected websocket clients",
		},
	)
)

// RecordRequest records an HTTP request outcome.
func RecordRequest(method, endpoint, status string, seconds float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(seconds)
}
