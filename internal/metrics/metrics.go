// Package metrics holds the Prometheus collectors for the glasses session.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "framelink"

// Metrics is safe to use through a nil pointer; every recorder becomes a no-op.
type Metrics struct {
	registry *prometheus.Registry

	// ConnectionState is 0=disconnected, 1=connecting, 2=connected.
	ConnectionState  prometheus.Gauge
	ConnectAttempts  *prometheus.CounterVec
	CommandsTotal    *prometheus.CounterVec
	CommandLatency   *prometheus.HistogramVec
	ActiveStreams    *prometheus.GaugeVec
	StreamEmissions  *prometheus.CounterVec
	MealsLogged      *prometheus.CounterVec
	MQTTPublishFails prometheus.Counter
	FeedClients      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Glasses connection state (0=disconnected, 1=connecting, 2=connected).",
		}),
		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Connect handshakes by outcome.",
		}, []string{"outcome"}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Device commands by type and outcome.",
		}, []string{"type", "outcome"}),
		CommandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_latency_seconds",
			Help:      "Time from command submission to result.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		ActiveStreams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Live sensor stream subscriptions.",
		}, []string{"sensor"}),
		StreamEmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_emissions_total",
			Help:      "Sensor descriptors delivered to subscribers.",
		}, []string{"sensor"}),
		MealsLogged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meals_logged_total",
			Help:      "Meals written to the meal log by verdict.",
		}, []string{"verdict"}),
		MQTTPublishFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_publish_failures_total",
			Help:      "Meal events that could not be delivered to the broker.",
		}),
		FeedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_clients",
			Help:      "Connected websocket feed clients.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ConnectionState,
		m.ConnectAttempts,
		m.CommandsTotal,
		m.CommandLatency,
		m.ActiveStreams,
		m.StreamEmissions,
		m.MealsLogged,
		m.MQTTPublishFails,
		m.FeedClients,
	)

	return m
}

// Registry returns the registry backing /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SetConnectionState(value float64) {
	if m == nil {
		return
	}
	m.ConnectionState.Set(value)
}

func (m *Metrics) ObserveConnect(ok bool) {
	if m == nil {
		return
	}
	m.ConnectAttempts.WithLabelValues(outcome(ok)).Inc()
}

func (m *Metrics) ObserveCommand(commandType string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(commandType, outcome(ok)).Inc()
	m.CommandLatency.WithLabelValues(commandType).Observe(elapsed.Seconds())
}

func (m *Metrics) StreamStarted(sensor string) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(sensor).Inc()
}

func (m *Metrics) StreamStopped(sensor string) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(sensor).Dec()
}

func (m *Metrics) StreamEmitted(sensor string) {
	if m == nil {
		return
	}
	m.StreamEmissions.WithLabelValues(sensor).Inc()
}

func (m *Metrics) MealLogged(verdict string) {
	if m == nil {
		return
	}
	m.MealsLogged.WithLabelValues(verdict).Inc()
}

func (m *Metrics) MQTTPublishFailed() {
	if m == nil {
		return
	}
	m.MQTTPublishFails.Inc()
}

func (m *Metrics) FeedClientConnected() {
	if m == nil {
		return
	}
	m.FeedClients.Inc()
}

func (m *Metrics) FeedClientDisconnected() {
	if m == nil {
		return
	}
	m.FeedClients.Dec()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
