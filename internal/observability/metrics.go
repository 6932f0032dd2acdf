package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	httpRequestsTotal    *prometheus.CounterVec
	httpLatencySeconds   *prometheus.HistogramVec
	httpErrorsTotal      *prometheus.CounterVec
	peerConnectionsTotal prometheus.Counter
	peerMessagesSent     *prometheus.CounterVec
	peerEventErrors      *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		peerConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peer_connections_total",
			Help: "Total number of websocket connections accepted by the peer gateway.",
		})

		peerMessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peer_messages_sent_total",
			Help: "Total number of peer-room messages persisted and broadcast.",
		}, []string{"sender_kind"})

		peerEventErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peer_event_errors_total",
			Help: "Total number of peer gateway events rejected with a private error.",
		}, []string{"event"})

		prometheus.MustRegister(httpRequestsTotal, httpLatencySeconds, httpErrorsTotal, peerConnectionsTotal, peerMessagesSent, peerEventErrors)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// PeerConnectionsTotal exposes the counter for accepted peer connections.
func PeerConnectionsTotal() prometheus.Counter {
	RegisterMetrics()
	return peerConnectionsTotal
}

// PeerMessagesSent exposes the counter for broadcast peer messages.
func PeerMessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return peerMessagesSent
}

// PeerEventErrors exposes the counter for rejected peer events.
func PeerEventErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return peerEventErrors
}
