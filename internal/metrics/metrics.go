// Package metrics exports protocol activity as Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the protocol collectors. It implements protocol.Observer.
type Metrics struct {
	FramesTotal       *prometheus.CounterVec
	ClosesTotal       *prometheus.CounterVec
	ConnectionsActive prometheus.Gauge
	SessionsActive    prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the collectors and registers them on a dedicated registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "cantrips"
	}

	m := &Metrics{
		FramesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "protocol",
				Name:      "frames_total",
				Help:      "Total number of inbound frames by outcome",
			},
			[]string{"outcome"},
		),

		ClosesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "protocol",
				Name:      "closes_total",
				Help:      "Total number of connections closed by the protocol, by close code",
			},
			[]string{"code"},
		),

		ConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "protocol",
				Name:      "connections_active",
				Help:      "Number of open connections",
			},
		),

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "chat",
				Name:      "sessions_active",
				Help:      "Number of logged-in users",
			},
		),

		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(m.FramesTotal, m.ClosesTotal, m.ConnectionsActive, m.SessionsActive)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ConnectionOpened counts an open connection.
func (m *Metrics) ConnectionOpened() { m.ConnectionsActive.Inc() }

// ConnectionClosed uncounts an open connection.
func (m *Metrics) ConnectionClosed() { m.ConnectionsActive.Dec() }

// FrameProcessed counts a frame by outcome.
func (m *Metrics) FrameProcessed(outcome string) {
	m.FramesTotal.WithLabelValues(outcome).Inc()
}

// CloseSent counts a protocol close by code.
func (m *Metrics) CloseSent(code int) {
	m.ClosesTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

// SessionStarted counts a login.
func (m *Metrics) SessionStarted() { m.SessionsActive.Inc() }

// SessionEnded uncounts a login.
func (m *Metrics) SessionEnded() { m.SessionsActive.Dec() }
