// Package metrics holds the Prometheus collectors of the dashboard service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "swapit"

type Metrics struct {
	QueryDuration *prometheus.HistogramVec
	QueryRows     *prometheus.HistogramVec
	Figures       *prometheus.CounterVec
	Measurements  *prometheus.CounterVec
}

// New registers the collectors on reg. Passing a fresh prometheus.NewRegistry
// keeps tests independent of the default registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Time spent executing a chart query against the datahub.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"query"}),
		QueryRows: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_rows",
			Help:      "Rows returned by a chart query.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"query"}),
		Figures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "figures_total",
			Help:      "Chart requests by query and outcome.",
		}, []string{"query", "outcome"}),
		Measurements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_measurements_total",
			Help:      "MQTT measurements by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.QueryDuration, m.QueryRows, m.Figures, m.Measurements)
	return m
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ObserveQuery records one executed query. A nil receiver is a no-op.
func (m *Metrics) ObserveQuery(query string, d time.Duration, rows int) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(query).Observe(d.Seconds())
	m.QueryRows.WithLabelValues(query).Observe(float64(rows))
}

func (m *Metrics) FigureDone(query, outcome string) {
	if m == nil {
		return
	}
	m.Figures.WithLabelValues(query, outcome).Inc()
}

func (m *Metrics) MeasurementDone(outcome string) {
	if m == nil {
		return
	}
	m.Measurements.WithLabelValues(outcome).Inc()
}
