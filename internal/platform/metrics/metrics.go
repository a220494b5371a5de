// Package metrics exposes the Prometheus instruments for the assignment
// lifecycle. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "assignment"

type Recorder struct {
	operations      *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	storageFailures *prometheus.CounterVec
}

// NewRecorder registers the lifecycle instruments on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Lifecycle operations by operation and result code.",
		}, []string{"operation", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Lifecycle operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		storageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_failures_total",
			Help:      "Writes that failed after validation passed. Any increase needs an operator.",
		}, []string{"operation"}),
	}
	reg.MustRegister(r.operations, r.duration, r.storageFailures)
	return r
}

// Observe records one finished operation. result is "OK" or an error code.
func (r *Recorder) Observe(operation, result string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(operation, result).Inc()
	r.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (r *Recorder) StorageFailure(operation string) {
	if r == nil {
		return
	}
	r.storageFailures.WithLabelValues(operation).Inc()
}

// Handler serves the given gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
