// Package observability provides metrics recorders for the model engine:
// a process-local expvar exporter and a Prometheus exporter.
package observability

import (
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"modelcore/pkg/model"
)

var expvarSeq uint64

// Compile-time contract assertion.
var _ model.MetricsRecorder = (*ExpvarRecorder)(nil)

// ExpvarRecorder publishes aggregate timing and result counters via expvar.
// It fulfills model.MetricsRecorder for deployments that prefer
// process-local metrics without external dependencies. The recorder
// maintains totals in milliseconds per operation and per-status counters.
type ExpvarRecorder struct {
	name      string
	mu        sync.Mutex
	durations map[string]float64
	results   map[string]map[string]int64
}

// ExpvarSnapshot captures a read-only view of the recorded metrics.
type ExpvarSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Results     map[string]map[string]int64 `json:"results_total"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvarRecorder constructs an expvar-backed recorder and publishes it
// under the supplied name. When name is empty, a unique identifier is
// generated.
func NewExpvarRecorder(name string) *ExpvarRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("model_engine_metrics_%d", id)
	}
	rec := &ExpvarRecorder{
		name:      name,
		durations: make(map[string]float64),
		results:   make(map[string]map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarRecorder) Name() string {
	return r.name
}

// ObserveDuration adds the elapsed time to the operation's total.
func (r *ExpvarRecorder) ObserveDuration(op string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations[op] += float64(d) / float64(time.Millisecond)
}

// RecordResult counts one operation outcome.
func (r *ExpvarRecorder) RecordResult(op string, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts, ok := r.results[op]
	if !ok {
		counts = make(map[string]int64)
		r.results[op] = counts
	}
	counts[status]++
}

// Snapshot returns an immutable copy of the aggregated metrics.
func (r *ExpvarRecorder) Snapshot() ExpvarSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	durations := make(map[string]float64, len(r.durations))
	for op, total := range r.durations {
		durations[op] = total
	}

	results := make(map[string]map[string]int64, len(r.results))
	for op, statusCounts := range r.results {
		cpy := make(map[string]int64, len(statusCounts))
		for status, count := range statusCounts {
			cpy[status] = count
		}
		results[op] = cpy
	}

	return ExpvarSnapshot{
		DurationsMS: durations,
		Results:     results,
		RecordedAt:  time.Now().UTC(),
	}
}
