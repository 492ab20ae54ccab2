// Package metrics exposes server and storage statistics in Prometheus format.
//
// All methods are safe to call on a nil *Metrics, which is how metrics are
// disabled.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "moonkv"

// Metrics holds the collectors of one server instance
type Metrics struct {
	registry    *prometheus.Registry
	commands    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	connections prometheus.Gauge
	accepted    prometheus.Counter
	expired     prometheus.Counter
	frameErrors prometheus.Counter
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands processed, by command name.",
		}, []string{"cmd"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time spent executing commands, by command name.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10),
		}, []string{"cmd"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_clients",
			Help:      "Client connections currently open.",
		}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Client connections accepted since start.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_keys_total",
			Help:      "Keys removed by the active expiry sweeper.",
		}),
		frameErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Connections closed because of malformed input.",
		}),
	}

	m.registry.MustRegister(
		m.commands,
		m.duration,
		m.connections,
		m.accepted,
		m.expired,
		m.frameErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// WatchKeys exports the result of count as the number of stored keys
func (m *Metrics) WatchKeys(count func() int) {
	if m == nil {
		return
	}

	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "keys",
		Help:      "Keys currently held in memory, including expired keys not yet collected.",
	}, func() float64 {
		return float64(count())
	}))
}

// ObserveCommand counts one execution of cmd that took d
func (m *Metrics) ObserveCommand(cmd string, d time.Duration) {
	if m == nil {
		return
	}

	m.commands.WithLabelValues(cmd).Inc()
	m.duration.WithLabelValues(cmd).Observe(d.Seconds())
}

// ConnectionOpened records an accepted client
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}

	m.accepted.Inc()
	m.connections.Inc()
}

// ConnectionClosed records a client going away
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}

	m.connections.Dec()
}

// KeysExpired adds n keys removed by active expiry
func (m *Metrics) KeysExpired(n int) {
	if m == nil {
		return
	}

	m.expired.Add(float64(n))
}

// ProtocolError records a connection dropped for a malformed frame
func (m *Metrics) ProtocolError() {
	if m == nil {
		return
	}

	m.frameErrors.Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
