package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments exposed on the admin
// surface's /metrics endpoint.
type Metrics struct {
	SessionsTotal   *prometheus.CounterVec
	SessionsActive  *prometheus.GaugeVec
	SessionDuration *prometheus.HistogramVec

	QUICConnectionsTotal   *prometheus.CounterVec
	QUICConnectionsActive  prometheus.Gauge
	QUICConnectionDuration prometheus.Histogram

	RelayBytesTotal     *prometheus.CounterVec
	RelayActiveStreams  prometheus.Gauge
	PingRoundTripLatency prometheus.Histogram

	FECReconstructionsTotal        prometheus.Counter
	FECReconstructionFailuresTotal prometheus.Counter

	TransferBytesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers Kerr's Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "kerr_sessions_total", Help: "Sessions started, by kind"},
			[]string{"kind"},
		),
		SessionsActive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{Name: "kerr_sessions_active", Help: "Currently active sessions, by kind"},
			[]string{"kind"},
		),
		SessionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kerr_session_duration_seconds",
				Help:    "Session lifetime, by kind",
				Buckets: []float64{1, 5, 10, 30, 60, 300, 1200, 3600},
			},
			[]string{"kind"},
		),
		QUICConnectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "kerr_quic_connections_total", Help: "QUIC connection attempts, by result"},
			[]string{"result"},
		),
		QUICConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{Name: "kerr_quic_connections_active", Help: "Active QUIC connections"},
		),
		QUICConnectionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kerr_quic_connection_duration_seconds",
				Help:    "QUIC connection lifetime",
				Buckets: []float64{1, 5, 10, 30, 60, 300, 1200},
			},
		),
		RelayBytesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "kerr_relay_bytes_total", Help: "TCP relay bytes, by direction"},
			[]string{"direction"},
		),
		RelayActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{Name: "kerr_relay_active_streams", Help: "Active forwarded TCP streams"},
		),
		PingRoundTripLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kerr_ping_round_trip_seconds",
				Help:    "Ping session round-trip time",
				Buckets: prometheus.DefBuckets,
			},
		),
		FECReconstructionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{Name: "kerr_fec_reconstructions_total", Help: "Chunks reconstructed via forward error correction"},
		),
		FECReconstructionFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{Name: "kerr_fec_reconstruction_failures_total", Help: "Failed forward error correction reconstructions"},
		),
		TransferBytesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "kerr_transfer_bytes_total", Help: "File-transfer bytes, by direction"},
			[]string{"direction"},
		),
	}
}

// SessionStarted records a new session of kind.
func (m *Metrics) SessionStarted(kind string) {
	m.SessionsTotal.WithLabelValues(kind).Inc()
	m.SessionsActive.WithLabelValues(kind).Inc()
}

// SessionEnded records a session of kind ending after durationSeconds.
func (m *Metrics) SessionEnded(kind string, durationSeconds float64) {
	m.SessionsActive.WithLabelValues(kind).Dec()
	m.SessionDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordQUICConnection records a dial/accept attempt's outcome.
func (m *Metrics) RecordQUICConnection(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.QUICConnectionsTotal.WithLabelValues(result).Inc()
	if success {
		m.QUICConnectionsActive.Inc()
	}
}

// RecordQUICConnectionClosed records a connection's lifetime on close.
func (m *Metrics) RecordQUICConnectionClosed(durationSeconds float64) {
	m.QUICConnectionsActive.Dec()
	m.QUICConnectionDuration.Observe(durationSeconds)
}

// RecordRelayBytes adds n bytes to the relay counters for direction
// ("up" or "down").
func (m *Metrics) RecordRelayBytes(direction string, n int64) {
	m.RelayBytesTotal.WithLabelValues(direction).Add(float64(n))
}

// RecordTransferBytes adds n bytes to the file-transfer counters for
// direction ("up" or "down").
func (m *Metrics) RecordTransferBytes(direction string, n int64) {
	m.TransferBytesTotal.WithLabelValues(direction).Add(float64(n))
}

// RecordFECReconstruction records one FEC reconstruction attempt.
func (m *Metrics) RecordFECReconstruction(success bool) {
	if success {
		m.FECReconstructionsTotal.Inc()
	} else {
		m.FECReconstructionFailuresTotal.Inc()
	}
}

// Handler exposes the Prometheus text-exposition endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
