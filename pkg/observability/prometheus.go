package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"modelcore/pkg/model"
)

// Compile-time contract assertion.
var _ model.MetricsRecorder = (*PrometheusRecorder)(nil)

// PrometheusRecorder exports engine metrics through a Prometheus registry:
// a duration histogram and a result counter, both labeled by operation.
type PrometheusRecorder struct {
	durations *prometheus.HistogramVec
	results   *prometheus.CounterVec
}

// NewPrometheusRecorder constructs a recorder and registers its collectors
// with the supplied registerer. A nil registerer uses the default one.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusRecorder{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "modelcore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of settlement runs and persistence verbs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modelcore",
			Name:      "operation_results_total",
			Help:      "Operation outcomes by status.",
		}, []string{"op", "status"}),
	}
	if err := reg.Register(r.durations); err != nil {
		return nil, err
	}
	if err := reg.Register(r.results); err != nil {
		return nil, err
	}
	return r, nil
}

// ObserveDuration records one operation duration.
func (r *PrometheusRecorder) ObserveDuration(op string, d time.Duration) {
	r.durations.WithLabelValues(op).Observe(d.Seconds())
}

// RecordResult counts one operation outcome.
func (r *PrometheusRecorder) RecordResult(op string, status string) {
	r.results.WithLabelValues(op, status).Inc()
}
