package model

import "time"

// MetricsRecorder receives aggregate timing and result counters for
// settlement runs and persistence verbs. Implementations must be safe for
// concurrent use; see pkg/observability for expvar and Prometheus backed
// recorders.
type MetricsRecorder interface {
	// ObserveDuration records how long one operation took.
	ObserveDuration(op string, d time.Duration)
	// RecordResult counts one operation outcome, e.g. "ok" or "error".
	RecordResult(op string, status string)
}

// Operation labels reported to the metrics recorder.
const (
	OpSettle = "settle"
	OpSave   = "save"
	OpFetch  = "fetch"
	OpRemove = "remove"
)

type noopMetrics struct{}

func (noopMetrics) ObserveDuration(string, time.Duration) {}
func (noopMetrics) RecordResult(string, string)           {}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
