package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/qaboard/qaboard/pkg/protocol"
)

// Metrics holds all Prometheus metrics for the server
type Metrics struct {
	// Session metrics
	activeSessions       prometheus.Gauge
	sessionsCreated      prometheus.Counter
	sessionsDisconnected prometheus.Counter

	// Topic metrics
	activeTopics prometheus.Gauge

	// Message kind metrics
	messagesReceived *prometheus.CounterVec // by kind
	messagesSent     *prometheus.CounterVec // by kind

	// Broadcast metrics
	messagesBroadcast prometheus.Counter
	broadcastFanout   prometheus.Histogram

	// Failure metrics
	deliveryFailures prometheus.Counter
	authFailures     prometheus.Counter
	protocolErrors   prometheus.Counter
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		activeSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "qaboard_active_sessions",
				Help: "Current number of connected sessions",
			},
		),
		sessionsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "qaboard_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		sessionsDisconnected: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "qaboard_sessions_disconnected_total",
				Help: "Total number of sessions disconnected",
			},
		),
		activeTopics: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "qaboard_active_topics",
				Help: "Current number of registered topics",
			},
		),
		messagesReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qaboard_messages_received_total",
				Help: "Total inbound messages by kind",
			},
			[]string{"kind"},
		),
		messagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qaboard_messages_sent_total",
				Help: "Total outbound messages by kind",
			},
			[]string{"kind"},
		),
		messagesBroadcast: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "qaboard_messages_broadcast_total",
				Help: "Total messages broadcast (unique messages, not deliveries)",
			},
		),
		broadcastFanout: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qaboard_broadcast_fanout",
				Help:    "Number of recipients per broadcast",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),
		deliveryFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "qaboard_delivery_failures_total",
				Help: "Total failed deliveries to individual recipients",
			},
		),
		authFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "qaboard_auth_failures_total",
				Help: "Total frames dropped for auth token mismatch",
			},
		),
		protocolErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "qaboard_protocol_errors_total",
				Help: "Total frames rejected as malformed or unknown kind",
			},
		),
	}
}

func (m *Metrics) RecordActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

func (m *Metrics) RecordSessionCreated() {
	m.sessionsCreated.Inc()
}

func (m *Metrics) RecordSessionDisconnected() {
	m.sessionsDisconnected.Inc()
}

func (m *Metrics) RecordActiveTopics(count int) {
	m.activeTopics.Set(float64(count))
}

func (m *Metrics) RecordMessageReceived(kind string) {
	m.messagesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordMessageSent(msg protocol.Outbound) {
	m.messagesSent.WithLabelValues(msg.MessageKind()).Inc()
}

func (m *Metrics) RecordMessageBroadcast() {
	m.messagesBroadcast.Inc()
}

func (m *Metrics) RecordBroadcastFanout(recipients int) {
	m.broadcastFanout.Observe(float64(recipients))
}

func (m *Metrics) RecordDeliveryFailure() {
	m.deliveryFailures.Inc()
}

func (m *Metrics) RecordAuthFailure() {
	m.authFailures.Inc()
}

func (m *Metrics) RecordProtocolError() {
	m.protocolErrors.Inc()
}
