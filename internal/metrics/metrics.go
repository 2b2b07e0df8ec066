// Package metrics exposes Prometheus collectors for the weight update runner.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tfmm"

// Update results used as the result label.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Metrics holds the runner collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	UpdatesTotal    *prometheus.CounterVec
	UpdateDuration  *prometheus.HistogramVec
	OracleFallbacks *prometheus.CounterVec
	PoolWeight      *prometheus.GaugeVec
	PoolMultiplier  *prometheus.GaugeVec
	LastRunTime     *prometheus.GaugeVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		UpdatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "updates_total",
			Help:      "Weight update attempts by pool and result",
		}, []string{"pool", "result"}),
		UpdateDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "update_duration_seconds",
			Help:      "Wall time of one weight update",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"pool"}),
		OracleFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "fallbacks_total",
			Help:      "Prices served by a backup oracle by pool and asset index",
		}, []string{"pool", "asset"}),
		PoolWeight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "fixed_weight",
			Help:      "Weight of an asset as of the last update",
		}, []string{"pool", "asset"}),
		PoolMultiplier: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "weight_multiplier",
			Help:      "Per-second weight change of an asset as of the last update",
		}, []string{"pool", "asset"}),
		LastRunTime: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "last_run_time_seconds",
			Help:      "Unix time of the last successful update",
		}, []string{"pool"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveUpdate(pool, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpdatesTotal.WithLabelValues(pool, result).Inc()
	m.UpdateDuration.WithLabelValues(pool).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveFallback(pool, asset string) {
	if m == nil {
		return
	}
	m.OracleFallbacks.WithLabelValues(pool, asset).Inc()
}

// SetPoolState publishes the weights and multipliers written by an update.
func (m *Metrics) SetPoolState(pool string, assets []string, weights, multipliers []float64, lastRunTime int64) {
	if m == nil {
		return
	}
	for i, asset := range assets {
		if i < len(weights) {
			m.PoolWeight.WithLabelValues(pool, asset).Set(weights[i])
		}
		if i < len(multipliers) {
			m.PoolMultiplier.WithLabelValues(pool, asset).Set(multipliers[i])
		}
	}
	m.LastRunTime.WithLabelValues(pool).Set(float64(lastRunTime))
}

// ForgetPool drops every series of a pool.
func (m *Metrics) ForgetPool(pool string) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"pool": pool}
	m.UpdatesTotal.DeletePartialMatch(labels)
	m.UpdateDuration.DeletePartialMatch(labels)
	m.OracleFallbacks.DeletePartialMatch(labels)
	m.PoolWeight.DeletePartialMatch(labels)
	m.PoolMultiplier.DeletePartialMatch(labels)
	m.LastRunTime.DeletePartialMatch(labels)
}
