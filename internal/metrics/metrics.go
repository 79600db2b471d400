// Package metrics exposes Prometheus instruments for scans.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cloneguard-lab/internal/domain/models"
)

// Metrics holds the scan instruments and the registry they live in
type Metrics struct {
	registry *prometheus.Registry

	scans             *prometheus.CounterVec
	scanDuration      *prometheus.HistogramVec
	signalUnavailable *prometheus.CounterVec
	cacheHits         prometheus.Counter
}

// New registers the instruments on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		scans: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cloneguard_scans_total",
			Help: "Completed scans by pipeline and verdict",
		}, []string{"pipeline", "verdict"}),
		scanDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cloneguard_scan_duration_seconds",
			Help:    "End-to-end scan latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"pipeline"}),
		signalUnavailable: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cloneguard_signal_unavailable_total",
			Help: "Signals that could not be computed, by signal id",
		}, []string{"signal"}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "cloneguard_cache_hits_total",
			Help: "Reports served from the report cache",
		}),
	}
}

// ObserveScan records one finished scan
func (m *Metrics) ObserveScan(score *models.RiskScore, elapsed time.Duration) {
	if m == nil || score == nil {
		return
	}
	pipeline := string(score.Pipeline)
	m.scans.WithLabelValues(pipeline, string(score.Verdict)).Inc()
	m.scanDuration.WithLabelValues(pipeline).Observe(elapsed.Seconds())
	for _, id := range score.UnavailableSignals() {
		m.signalUnavailable.WithLabelValues(string(id)).Inc()
	}
}

// CacheHit counts a report served from cache
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
