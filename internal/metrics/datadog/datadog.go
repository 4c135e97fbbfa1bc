// Package datadog implements a Datadog backend for the internal/metrics package.
//
// Metrics are buffered in memory and submitted on Flush. A background loop
// flushes every FlushEvery (default one minute) so long loads produce a time
// series; Close stops the loop and flushes once more.
//
// Step durations are not submitted as distributions. Each flush sends
// p50/p90/p95/p99/max/samples gauges per (step, status).
package datadog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"gtdetl/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "gtd_star".
	JobName string

	// Tags are extra Datadog tags, e.g. "run_id:<uuid>".
	Tags []string

	// FlushEvery defaults to 60 seconds.
	FlushEvery time.Duration

	// test seams
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the part of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	closeOnce  sync.Once

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu      sync.Mutex
	current buffer
}

// buffer is one collection window.
type buffer struct {
	steps     map[string]float64 // step\x00status -> count
	records   map[string]float64 // kind -> count
	batches   float64
	durations map[string][]float64 // step\x00status -> seconds
}

func newBuffer() buffer {
	return buffer{
		steps:     make(map[string]float64),
		records:   make(map[string]float64),
		durations: make(map[string][]float64),
	}
}

func (b buffer) isEmpty() bool {
	return len(b.steps) == 0 && len(b.records) == 0 && b.batches == 0 && len(b.durations) == 0
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client and
// starts its flush loop. Credentials and site come from the client's usual
// DD_API_KEY / DD_SITE environment.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "gtd_star"
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		client := dd.NewAPIClient(dd.NewConfiguration())
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
		current:    newBuffer(),
	}
	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and performs a final Flush. Later calls only
// flush.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
	})
	return b.Flush()
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.StepTotal:
		b.current.steps[stepStatusKey(labels["step"], labels["status"])] += delta
	case metrics.RecordsTotal:
		kind := labels["kind"]
		if kind == "" {
			return
		}
		b.current.records[kind] += delta
	case metrics.BatchesTotal:
		b.current.batches += delta
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 || name != metrics.StepDurationSeconds {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	k := stepStatusKey(labels["step"], labels["status"])
	b.current.durations[k] = append(b.current.durations[k], value)
}

// snapshotAndReset detaches the current window.
func (b *Backend) snapshotAndReset() buffer {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.current
	b.current = newBuffer()
	return s
}

// Flush submits buffered metrics and resets the buffer, even when the
// submission fails. Nothing is sent for an empty window.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	if err != nil {
		return fmt.Errorf("datadog submit: %w", err)
	}
	return nil
}

// buildSeries turns a window into Datadog series stamped at nowUnix.
func (b *Backend) buildSeries(s buffer, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.steps)+len(s.records)+6*len(s.durations)+1)

	for _, k := range sortedKeys(s.steps) {
		step, status := splitStepStatusKey(k)
		tags := withTags(b.baseTags, "step:"+step, "status:"+status)
		series = append(series, point("etl.step.total", datadogV2.METRICINTAKETYPE_COUNT, s.steps[k], tags, nowUnix))
	}
	for _, kind := range sortedKeys(s.records) {
		tags := withTags(b.baseTags, "kind:"+kind)
		series = append(series, point("etl.records.total", datadogV2.METRICINTAKETYPE_COUNT, s.records[kind], tags, nowUnix))
	}
	if s.batches != 0 {
		series = append(series, point("etl.batches.total", datadogV2.METRICINTAKETYPE_COUNT, s.batches, withTags(b.baseTags), nowUnix))
	}

	keys := make([]string, 0, len(s.durations))
	for k := range s.durations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		step, status := splitStepStatusKey(k)
		tags := withTags(b.baseTags, "step:"+step, "status:"+status)
		series = appendPercentiles(series, "etl.step.duration_seconds", s.durations[k], tags, nowUnix)
	}
	return series
}

// appendPercentiles adds p50/p90/p95/p99/max/samples gauges for samples.
// samples is not modified.
func appendPercentiles(series []datadogV2.MetricSeries, prefix string, samples []float64, tags []string, nowUnix int64) []datadogV2.MetricSeries {
	if len(samples) == 0 {
		return series
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	gauge := func(suffix string, v float64) datadogV2.MetricSeries {
		return point(prefix+"."+suffix, datadogV2.METRICINTAKETYPE_GAUGE, v, tags, nowUnix)
	}
	return append(series,
		gauge("p50", percentileNearestRank(cp, 0.50)),
		gauge("p90", percentileNearestRank(cp, 0.90)),
		gauge("p95", percentileNearestRank(cp, 0.95)),
		gauge("p99", percentileNearestRank(cp, 0.99)),
		gauge("max", cp[len(cp)-1]),
		gauge("samples", float64(len(cp))),
	)
}

func point(metric string, typ datadogV2.MetricIntakeType, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func sortedKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		if v != 0 {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func stepStatusKey(step, status string) string {
	return step + "\x00" + status
}

func splitStepStatusKey(k string) (step, status string) {
	parts := strings.SplitN(k, "\x00", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return k, "unknown"
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	return append(out, extras...)
}

// percentileNearestRank expects s sorted ascending.
func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var (
	_ metrics.Backend = (*Backend)(nil)
	_ metrics.Flusher = (*Backend)(nil)
)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:etl".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
