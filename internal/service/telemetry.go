package service

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
)

// Telemetry exports evaluation outcomes as Prometheus metrics. It implements
// Observer.
type Telemetry struct {
	registry *prometheus.Registry

	decisions   *prometheus.CounterVec
	failures    *prometheus.CounterVec
	divergences *prometheus.CounterVec
	confidence  prometheus.Histogram
	clusters    prometheus.Histogram
	duration    prometheus.Histogram
}

// NewTelemetry registers the gate metrics on a fresh registry.
func NewTelemetry() *Telemetry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Telemetry{
		registry: reg,
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_decisions_total",
			Help: "Evaluations by outcome",
		}, []string{"outcome"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_evaluation_failures_total",
			Help: "Aborted evaluations by error code",
		}, []string{"code"}),
		divergences: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_divergences_total",
			Help: "Divergence points by category and severity",
		}, []string{"category", "severity"}),
		confidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gate_confidence_score",
			Help:    "Distribution of confidence scores",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		clusters: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gate_clusters",
			Help:    "Number of equivalence clusters per evaluation",
			Buckets: []float64{1, 2, 3, 4, 5, 7, 10},
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gate_evaluation_duration_seconds",
			Help:    "Engine evaluation latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}),
	}
}

// ObserveEvaluation implements Observer.
func (t *Telemetry) ObserveEvaluation(eval *Evaluation, elapsed time.Duration) {
	if eval == nil {
		return
	}
	t.decisions.WithLabelValues(string(eval.Decision.Outcome())).Inc()
	t.confidence.Observe(eval.Decision.ConfidenceScore)
	t.clusters.Observe(float64(len(eval.Clusters)))
	t.duration.Observe(elapsed.Seconds())
	for _, d := range eval.Decision.Divergences {
		t.divergences.WithLabelValues(d.Category, d.Severity.String()).Inc()
	}
}

// ObserveFailure implements Observer.
func (t *Telemetry) ObserveFailure(err error) {
	code := core.GetCode(err)
	if code == "" {
		code = "UNKNOWN"
	}
	t.failures.WithLabelValues(code).Inc()
}

// Registry exposes the underlying registry.
func (t *Telemetry) Registry() *prometheus.Registry {
	return t.registry
}

// Decisions exposes the outcome counter.
func (t *Telemetry) Decisions() *prometheus.CounterVec {
	return t.decisions
}

// Failures exposes the failure counter.
func (t *Telemetry) Failures() *prometheus.CounterVec {
	return t.failures
}

// Divergences exposes the divergence counter.
func (t *Telemetry) Divergences() *prometheus.CounterVec {
	return t.divergences
}

// Handler serves the metrics in the Prometheus exposition format.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Observers fans observations out to several observers.
type Observers []Observer

// ObserveEvaluation implements Observer.
func (o Observers) ObserveEvaluation(eval *Evaluation, elapsed time.Duration) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveEvaluation(eval, elapsed)
		}
	}
}

// ObserveFailure implements Observer.
func (o Observers) ObserveFailure(err error) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveFailure(err)
		}
	}
}
