// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package. Batch jobs are not scraped, so metrics live in a
// private registry and are pushed on Flush.
package prompush

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"gtdetl/internal/metrics"
)

// Backend implements metrics.Backend and metrics.Flusher.
type Backend struct {
	reg    *prometheus.Registry
	pusher *push.Pusher

	steps     *prometheus.CounterVec
	records   *prometheus.CounterVec
	batches   prometheus.Counter
	durations *prometheus.HistogramVec
}

// Option customizes a Backend.
type Option func(*push.Pusher) *push.Pusher

// WithGrouping adds a grouping label, e.g. WithGrouping("run_id", id).
func WithGrouping(name, value string) Option {
	return func(p *push.Pusher) *push.Pusher { return p.Grouping(name, value) }
}

// NewBackend returns a backend pushing to gatewayURL under job.
func NewBackend(job, gatewayURL string, opts ...Option) (*Backend, error) {
	if strings.TrimSpace(job) == "" {
		return nil, fmt.Errorf("prompush: job name is empty")
	}
	if strings.TrimSpace(gatewayURL) == "" {
		return nil, fmt.Errorf("prompush: gateway url is empty")
	}

	b := &Backend{
		reg: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Pipeline steps executed, by status.",
		}, []string{"step", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Rows processed, by kind.",
		}, []string{"kind"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Insert statements executed.",
		}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.StepDurationSeconds,
			Help:    "Pipeline step duration in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"step", "status"}),
	}
	b.reg.MustRegister(b.steps, b.records, b.batches, b.durations)

	p := push.New(gatewayURL, job).Gatherer(b.reg)
	for _, o := range opts {
		p = o(p)
	}
	b.pusher = p
	return b, nil
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	switch name {
	case metrics.StepTotal:
		b.steps.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case metrics.RecordsTotal:
		if labels["kind"] == "" {
			return
		}
		b.records.WithLabelValues(labels["kind"]).Add(delta)
	case metrics.BatchesTotal:
		b.batches.Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 || name != metrics.StepDurationSeconds {
		return
	}
	b.durations.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the registry, replacing the job's previous group.
func (b *Backend) Flush() error {
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}

var (
	_ metrics.Backend = (*Backend)(nil)
	_ metrics.Flusher = (*Backend)(nil)
)
