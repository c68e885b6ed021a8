// Package metrics, sync engine'in Prometheus sayaçlarını tutar.
//
// Global default registry yerine her Metrics kendi registry'sini taşır;
// testlerde birden fazla session aynı process'te çakışmadan oluşturulabilir.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatsync"

// Metrics, engine genelindeki sayaçlar.
type Metrics struct {
	registry *prometheus.Registry

	FramesReceived  *prometheus.CounterVec
	FramesDropped   *prometheus.CounterVec
	Refreshes       *prometheus.CounterVec
	NoticesDropped  prometheus.Counter
	ConnectionState prometheus.Gauge
	CachedMessages  prometheus.Gauge
}

// New, sayaçları oluşturup kendi registry'sine kaydeder.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Push frames routed to a topic handler.",
		}, []string{"topic"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Push frames dropped before reconciliation.",
		}, []string{"reason"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_refreshes_total",
			Help:      "Credential refresh attempts by result.",
		}, []string{"result"}),
		NoticesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notices_dropped_total",
			Help:      "Notices dropped because the consumer was not reading.",
		}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Push connection state (0 disconnected, 1 connecting, 2 connected).",
		}),
		CachedMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_messages",
			Help:      "Messages held in the cache for the active scope.",
		}),
	}

	m.registry.MustRegister(
		m.FramesReceived,
		m.FramesDropped,
		m.Refreshes,
		m.NoticesDropped,
		m.ConnectionState,
		m.CachedMessages,
	)
	return m
}

// Registry, testlerde değer okumak için.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler, /metrics endpoint'i.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
