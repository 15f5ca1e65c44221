package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "screener"

	// Fetch results.
	ResultSuccess = "success"
	ResultEmpty   = "empty"
	ResultError   = "error"
)

// Metrics holds the prometheus collectors of the screener.
type Metrics struct {
	registry *prometheus.Registry

	FetchesTotal       *prometheus.CounterVec // labels: result
	FetchDur           prometheus.Histogram
	PassDur            prometheus.Histogram
	PassesTotal        *prometheus.CounterVec // labels: outcome
	InstrumentsUpdated prometheus.Gauge
	InstrumentsSkipped prometheus.Gauge
	LastPassTimestamp  prometheus.Gauge
	Loading            prometheus.Gauge
	WSClients          prometheus.Gauge
	WSDrops            prometheus.Counter
}

// NewMetrics creates the screener collectors and registers them with a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Provider series fetches by result",
		}, []string{"result"}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Provider series fetch latency",
			Buckets:   prometheus.DefBuckets,
		}),
		PassDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Refresh pass duration",
			Buckets:   []float64{0.1, 1, 5, 10, 20, 30, 45, 60, 90},
		}),
		PassesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Refresh passes by outcome (published, static, cancelled, skipped)",
		}, []string{"outcome"}),
		InstrumentsUpdated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instruments_updated",
			Help:      "Instruments updated by the last pass",
		}),
		InstrumentsSkipped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instruments_skipped",
			Help:      "Instruments left unchanged by the last pass",
		}),
		LastPassTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_pass_timestamp_seconds",
			Help:      "Unix time of the last published pass",
		}),
		Loading: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loading",
			Help:      "Whether the screener is still serving seed data (1) or not (0)",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected websocket clients",
		}),
		WSDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_drops_total",
			Help:      "Snapshot messages dropped for slow websocket clients",
		}),
	}

	m.registry.MustRegister(
		m.FetchesTotal,
		m.FetchDur,
		m.PassDur,
		m.PassesTotal,
		m.InstrumentsUpdated,
		m.InstrumentsSkipped,
		m.LastPassTimestamp,
		m.Loading,
		m.WSClients,
		m.WSDrops,
	)

	m.Loading.Set(1)

	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the http handler exposing the collectors.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
