// Package metrics exports suite activity as Prometheus metrics.
//
// A Collector subscribes to a suite's event bus and maintains event counters,
// a running-jobs gauge and a job duration histogram. Batch runs that exit
// before a scrape can publish the final values with WriteTextfile for the
// node exporter's textfile collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jdziat/jobsuite/pkg/bus"
	"github.com/jdziat/jobsuite/pkg/core"
)

// Collector holds the metrics of one suite namespace.
type Collector struct {
	namespace string
	registry  *prometheus.Registry

	Events   *prometheus.CounterVec
	Running  prometheus.Gauge
	Duration *prometheus.HistogramVec
}

// NewCollector creates the metrics for namespace on a fresh registry.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"namespace": namespace}

	return &Collector{
		namespace: namespace,
		registry:  reg,
		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "jobsuite_events_total",
				Help:        "Total number of suite and job lifecycle events.",
				ConstLabels: labels,
			},
			[]string{"event"},
		),
		Running: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "jobsuite_jobs_running",
				Help:        "Number of jobs currently executing.",
				ConstLabels: labels,
			},
		),
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "jobsuite_job_duration_seconds",
				Help:        "Run time of finished job attempts.",
				ConstLabels: labels,
				Buckets:     prometheus.ExponentialBuckets(0.1, 4, 10),
			},
			[]string{"state"},
		),
	}
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Attach subscribes the collector to b. The returned function detaches it.
func (c *Collector) Attach(b *bus.Bus) (detach func()) {
	return b.Subscribe(c.Observe)
}

// Observe records one event.
func (c *Collector) Observe(e core.Event) {
	c.Events.WithLabelValues(e.Name).Inc()

	switch e.Name {
	case core.JobStarted, core.JobResumed:
		c.Running.Inc()
	case core.JobCompleted, core.JobTerminatedPrematurely, core.JobStopped:
		c.Running.Dec()
		if e.Status != nil {
			c.Duration.WithLabelValues(e.Status.State.String()).
				Observe(e.Status.Duration(e.Time).Seconds())
		}
	}
}

// WriteTextfile writes the current values in the text exposition format.
// The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
