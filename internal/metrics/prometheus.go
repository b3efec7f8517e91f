package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Server-side conversation metrics, registered on the default registry and
// exposed through the /metrics endpoint.
var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wicara",
		Name:      "active_connections",
		Help:      "Number of open WebSocket connections.",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wicara",
		Name:      "active_sessions",
		Help:      "Number of conversation sessions in the active state.",
	})

	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wicara",
		Name:      "messages_received_total",
		Help:      "Inbound text messages by wire type.",
	}, []string{"type"})

	AudioBytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wicara",
		Name:      "audio_bytes_received_total",
		Help:      "Binary audio payload bytes received.",
	})

	UtterancesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wicara",
		Name:      "utterances_processed_total",
		Help:      "Completed utterance pipelines by outcome.",
	}, []string{"outcome"})

	ProtocolErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wicara",
		Name:      "protocol_errors_total",
		Help:      "Error envelopes sent to clients by code.",
	}, []string{"code"})
)
