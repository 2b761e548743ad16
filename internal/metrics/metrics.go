// Package metrics exposes the process-wide prometheus instruments for the
// enrichment engine. Collectors are registered once on a dedicated registry
// so tests can construct isolated instances.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Instruments bundles every collector the engine updates.
type Instruments struct {
	Registry *prometheus.Registry

	AdapterCalls     *prometheus.CounterVec
	AdapterLatency   *prometheus.HistogramVec
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	ModuleDuration   *prometheus.HistogramVec
	ModuleOutcomes   *prometheus.CounterVec
	JobOutcomes      *prometheus.CounterVec
	JobDuration      prometheus.Histogram
	ActiveJobs       prometheus.Gauge
}

// New builds and registers all instruments on a fresh registry.
func New() *Instruments {
	reg := prometheus.NewRegistry()
	inst := &Instruments{
		Registry: reg,
		AdapterCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrich_adapter_calls_total",
			Help: "Adapter calls by adapter name and outcome.",
		}, []string{"adapter", "outcome"}),
		AdapterLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enrich_adapter_latency_seconds",
			Help:    "Upstream call latency by adapter.",
			Buckets: prometheus.DefBuckets,
		}, []string{"adapter"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrich_cache_hits_total",
			Help: "Cache hits by adapter.",
		}, []string{"adapter"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrich_cache_misses_total",
			Help: "Cache misses by adapter.",
		}, []string{"adapter"}),
		ModuleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enrich_module_duration_seconds",
			Help:    "Module execution duration by module id.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"module"}),
		ModuleOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrich_module_outcomes_total",
			Help: "Module outcomes by module id and status.",
		}, []string{"module", "status"}),
		JobOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrich_job_outcomes_total",
			Help: "Enrichment job outcomes by status.",
		}, []string{"status"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "enrich_job_duration_seconds",
			Help:    "End-to-end job duration.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		}),
		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "enrich_active_jobs",
			Help: "Jobs currently executing.",
		}),
	}
	reg.MustRegister(
		inst.AdapterCalls, inst.AdapterLatency, inst.CacheHits, inst.CacheMisses,
		inst.ModuleDuration, inst.ModuleOutcomes, inst.JobOutcomes,
		inst.JobDuration, inst.ActiveJobs,
	)
	return inst
}

// ObserveAdapterCall records one adapter call outcome.
func (i *Instruments) ObserveAdapterCall(adapter, outcome string, latency time.Duration) {
	i.AdapterCalls.WithLabelValues(adapter, outcome).Inc()
	if outcome == "success" {
		i.AdapterLatency.WithLabelValues(adapter).Observe(latency.Seconds())
	}
}

// ObserveModule records one module outcome.
func (i *Instruments) ObserveModule(module, status string, duration time.Duration) {
	i.ModuleOutcomes.WithLabelValues(module, status).Inc()
	i.ModuleDuration.WithLabelValues(module).Observe(duration.Seconds())
}

// ObserveJob records one finished job.
func (i *Instruments) ObserveJob(status string, duration time.Duration) {
	i.JobOutcomes.WithLabelValues(status).Inc()
	i.JobDuration.Observe(duration.Seconds())
}

// Default is the process-wide instance used outside tests.
var Default = New()
