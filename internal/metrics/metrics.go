package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	EventsReceived  prometheus.Counter
	ReadingsTotal   *prometheus.CounterVec
	ReadingFailures *prometheus.CounterVec
	Classifications *prometheus.CounterVec
	Dispatches      *prometheus.CounterVec
	Armed           prometheus.Gauge
	LedgerEntries   prometheus.Gauge
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorwatch_events_received_total",
			Help: "Total number of webhook events accepted",
		}),
		ReadingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorwatch_readings_total",
			Help: "Readings evaluated, by sensor type",
		}, []string{"sensor_type"}),
		ReadingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorwatch_reading_failures_total",
			Help: "Readings that could not be processed, by reason",
		}, []string{"reason"}),
		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorwatch_classifications_total",
			Help: "Alert classifications assigned to readings",
		}, []string{"classification"}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorwatch_dispatches_total",
			Help: "Batch flush outcomes",
		}, []string{"outcome"}),
		Armed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensorwatch_armed",
			Help: "1 when alerts are dispatched, 0 when disarmed",
		}),
		LedgerEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensorwatch_ledger_entries",
			Help: "Averages retained in the in-process ledger",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.EventsReceived,
		m.ReadingsTotal,
		m.ReadingFailures,
		m.Classifications,
		m.Dispatches,
		m.Armed,
		m.LedgerEntries,
	)
	return m
}

// SetArmed mirrors the gate state.
func (m *Metrics) SetArmed(armed bool) {
	if armed {
		m.Armed.Set(1)
		return
	}
	m.Armed.Set(0)
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
