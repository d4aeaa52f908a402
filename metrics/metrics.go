// Package metrics defines the Prometheus metric set exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service counters, gauges and histograms.
type Metrics struct {
	PredictionsTotal   prometheus.Counter   // Successful predictions served
	PredictionFailures prometheus.Counter   // Failed prediction attempts
	AuditWriteFailures prometheus.Counter   // Audit rows that could not be persisted
	PredictionLatency  prometheus.Histogram // End-to-end prediction latency
	ModelLoaded        prometheus.Gauge     // 1 when a model is loaded, 0 otherwise
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics against a custom registry, which keeps
// test runs isolated from the global registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "kickpredict_predictions_total",
			Help: "Total number of successful predictions served.",
		}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "kickpredict_prediction_failures_total",
			Help: "Total number of failed prediction attempts.",
		}),
		AuditWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "kickpredict_audit_write_failures_total",
			Help: "Total number of audit rows that failed to persist.",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kickpredict_prediction_latency_seconds",
			Help:    "End-to-end prediction latency in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		ModelLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kickpredict_model_loaded",
			Help: "Whether a classifier is currently loaded (1) or not (0).",
		}),
	}
}
