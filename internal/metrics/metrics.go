// Package metrics holds the prometheus collectors of provisioning and
// scheduling. Collectors live on a private registry exposed by the API
// server. Every recording method is a no-op on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Component launch results.
const (
	ResultLaunched = "launched"
	ResultTimeout  = "timeout"
	ResultFailed   = "failed"
)

// Metrics bundles the collectors.
type Metrics struct {
	Registry *prometheus.Registry

	phaseDuration      *prometheus.HistogramVec
	phaseFailures      *prometheus.CounterVec
	convergenceWait    *prometheus.HistogramVec
	instancesLaunched  *prometheus.CounterVec
	componentsLaunched *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry
// together with the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "clusterous",
				Name:      "phase_duration_seconds",
				Help:      "Duration of provisioning phases in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
			},
			[]string{"phase"},
		),
		phaseFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clusterous",
				Name:      "phase_failures_total",
				Help:      "Total number of failed provisioning phases",
			},
			[]string{"phase"},
		),
		convergenceWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "clusterous",
				Name:      "convergence_wait_seconds",
				Help:      "Time spent waiting for resources to converge",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
			},
			[]string{"kind"},
		),
		instancesLaunched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clusterous",
				Name:      "instances_launched_total",
				Help:      "Total number of instances launched by role",
			},
			[]string{"role"},
		),
		componentsLaunched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clusterous",
				Name:      "components_launched_total",
				Help:      "Total number of component launches by result",
			},
			[]string{"result"},
		),
	}
	m.Registry.MustRegister(
		m.phaseDuration,
		m.phaseFailures,
		m.convergenceWait,
		m.instancesLaunched,
		m.componentsLaunched,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObservePhase records a finished phase.
func (m *Metrics) ObservePhase(phase string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
	if err != nil {
		m.phaseFailures.WithLabelValues(phase).Inc()
	}
}

// ObserveWait records a convergence wait of kind instances, volume,
// terminate or components.
func (m *Metrics) ObserveWait(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.convergenceWait.WithLabelValues(kind).Observe(d.Seconds())
}

// InstancesLaunched counts n converged instances of role.
func (m *Metrics) InstancesLaunched(role string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.instancesLaunched.WithLabelValues(role).Add(float64(n))
}

// ComponentsLaunched counts n components ending with result.
func (m *Metrics) ComponentsLaunched(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.componentsLaunched.WithLabelValues(result).Add(float64(n))
}
