// Package metrics holds the Prometheus instruments for lifecycle execution
// and the exporter component that serves them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sitewhere"

// Lifecycle records phase and step outcomes.
//
// A nil *Lifecycle is valid and records nothing.
type Lifecycle struct {
	phaseDuration *prometheus.HistogramVec
	stepDuration  *prometheus.HistogramVec
	stepFailures  *prometheus.CounterVec
}

// NewLifecycle registers the lifecycle instruments on reg. Returns nil when
// reg is nil.
func NewLifecycle(reg prometheus.Registerer) *Lifecycle {
	if reg == nil {
		return nil
	}
	return &Lifecycle{
		phaseDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lifecycle_phase_duration_seconds",
				Help:      "Duration of lifecycle phases by phase and result",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"phase", "result"},
		),
		stepDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lifecycle_step_duration_seconds",
				Help:      "Duration of lifecycle steps by step and result",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"step", "result"},
		),
		stepFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifecycle_step_failures_total",
				Help:      "Total number of failed lifecycle steps by phase and step",
			},
			[]string{"phase", "step"},
		),
	}
}

// ObservePhase records one completed phase.
func (m *Lifecycle) ObservePhase(phase string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase, result(err)).Observe(d.Seconds())
}

// ObserveStep records one completed step.
func (m *Lifecycle) ObserveStep(phase, step string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step, result(err)).Observe(d.Seconds())
	if err != nil {
		m.stepFailures.WithLabelValues(phase, step).Inc()
	}
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
