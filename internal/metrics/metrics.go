// Package metrics exposes prometheus collectors for the simulation loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"haplotrack/internal/model"
)

const namespace = "haplotrack"

// Recorder owns one registry so that several simulators, or tests, do not
// collide on the default registry.
type Recorder struct {
	registry *prometheus.Registry

	generations        prometheus.Counter
	children           prometheus.Counter
	failures           *prometheus.CounterVec
	generationDuration prometheus.Histogram
	meanIntervals      prometheus.Gauge
	maxIntervals       prometheus.Gauge
	distinctSources    prometheus.Gauge
	snapshotBytes      prometheus.Histogram
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		generations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generations bred across all runs",
		}),
		children: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "children_total",
			Help:      "Organisms built by recombination",
		}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed simulation steps by stage",
		}, []string{"stage"}),
		generationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall time to breed one generation",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		meanIntervals: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mean_intervals_per_chromosome",
			Help:      "Mean interval count per chromosome in the latest generation",
		}),
		maxIntervals: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_intervals_per_chromosome",
			Help:      "Largest interval count of any chromosome in the latest generation",
		}),
		distinctSources: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "distinct_sources",
			Help:      "Distinct founder source ids present in the latest generation",
		}),
		snapshotBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_bytes",
			Help:      "Size of encoded population snapshots",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
	}
}

// ObserveGeneration records one bred generation and its summary.
func (r *Recorder) ObserveGeneration(elapsed time.Duration, summary model.GenerationSummary) {
	if r == nil {
		return
	}
	r.generations.Inc()
	r.children.Add(float64(summary.Size))
	r.generationDuration.Observe(elapsed.Seconds())
	r.ObserveSummary(summary)
}

// ObserveSummary updates the latest-generation gauges.
func (r *Recorder) ObserveSummary(summary model.GenerationSummary) {
	if r == nil {
		return
	}
	r.meanIntervals.Set(summary.MeanIntervals)
	r.maxIntervals.Set(float64(summary.MaxIntervals))
	r.distinctSources.Set(float64(summary.DistinctSources))
}

func (r *Recorder) ObserveSnapshot(bytes int64) {
	if r == nil {
		return
	}
	r.snapshotBytes.Observe(float64(bytes))
}

// Failure counts a failed step; stage is a short label such as "breed" or
// "persist".
func (r *Recorder) Failure(stage string) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(stage).Inc()
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the recorder's registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
