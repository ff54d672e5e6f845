// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "glyphd"

// Request outcomes
const (
	OutcomeHit          = "hit"
	OutcomeBuilt        = "built"
	OutcomeInvalid      = "invalid"
	OutcomeLockConflict = "lock_conflict"
	OutcomeBuildFailed  = "build_failed"
	OutcomeCorrupt      = "corrupt"
	OutcomeError        = "error"
)

// Build results
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	// RequestsTotal counts generation requests by outcome
	RequestsTotal *prometheus.CounterVec

	// BuildDuration observes generator run time by result
	BuildDuration *prometheus.HistogramVec

	// BuildsInFlight is the number of generator processes currently running
	BuildsInFlight prometheus.Gauge

	// LockOverridesTotal counts builds that replaced another build's lock
	LockOverridesTotal prometheus.Counter
)

func init() {
	RequestsTotal = MustRegisterCounterVec(namespace, "", "requests_total",
		"Generation requests by outcome.", "outcome")

	BuildDuration = MustRegisterHistogramVec(namespace, "", "build_duration_seconds",
		"Time spent running the atlas generator.",
		[]float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}, "result")

	BuildsInFlight = MustRegisterGauge(namespace, "", "builds_in_flight",
		"Generator processes currently running.")

	LockOverridesTotal = MustRegisterCounter(namespace, "", "lock_overrides_total",
		"Builds started by overriding an existing lock marker.")
}

// MustRegisterCounterVec creates and registers a counter vector.
// Must be called from `init`.
func MustRegisterCounterVec(namespace, component, name, help string, labelNames ...string) *prometheus.CounterVec {
	m := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: component,
		Name:      name,
		Help:      help,
	}, labelNames)
	prometheus.MustRegister(m)
	return m
}

// MustRegisterCounter creates and registers a counter.
// Must be called from `init`.
func MustRegisterCounter(namespace, component, name, help string) prometheus.Counter {
	m := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: component,
		Name:      name,
		Help:      help,
	})
	prometheus.MustRegister(m)
	return m
}

// MustRegisterGauge creates and registers a gauge.
// Must be called from `init`.
func MustRegisterGauge(namespace, component, name, help string) prometheus.Gauge {
	m := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: component,
		Name:      name,
		Help:      help,
	})
	prometheus.MustRegister(m)
	return m
}

// MustRegisterHistogramVec creates and registers a histogram vector.
// Must be called from `init`.
func MustRegisterHistogramVec(namespace, component, name, help string, buckets []float64, labelNames ...string) *prometheus.HistogramVec {
	m := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: component,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labelNames)
	prometheus.MustRegister(m)
	return m
}
