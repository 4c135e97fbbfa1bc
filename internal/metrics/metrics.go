// Package metrics is the process-wide metrics seam used by the pipeline.
//
// Core code only calls the package-level helpers; a concrete backend
// (datadog, prompush) is installed once by the CLI with SetBackend. Until
// then every call is a no-op.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by the pipeline.
const (
	StepTotal           = "etl_step_total"
	StepDurationSeconds = "etl_step_duration_seconds"
	RecordsTotal        = "etl_records_total"
	BatchesTotal        = "etl_batches_total"
)

// Labels are metric dimensions, e.g. {"step": "load", "status": "ok"}.
type Labels map[string]string

// Backend receives metric events.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer.
type Flusher interface {
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter forwards to the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram forwards to the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the installed backend if it buffers.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// RecordStep counts one execution of step and observes its duration.
// status is "ok" when err is nil, "error" otherwise.
func RecordStep(step string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, time.Since(start).Seconds(), l)
}

// RecordRows adds n to etl_records_total{kind}. Zero is skipped.
func RecordRows(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordBatches adds n to etl_batches_total.
func RecordBatches(n int) {
	if n <= 0 {
		return
	}
	IncCounter(BatchesTotal, float64(n), nil)
}
