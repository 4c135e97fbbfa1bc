package datadog

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtdetl/internal/metrics"
)

// fakeSubmitter captures payloads submitted by Backend.Flush.
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(_ context.Context, body datadogV2.MetricPayload, _ ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() datadogV2.MetricPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return datadogV2.MetricPayload{}
	}
	return f.payloads[len(f.payloads)-1]
}

func quietBackend(t *testing.T, fs *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		JobName:   "gtd",
		submitter: fs,
		now:       func() time.Time { return time.Unix(1000, 0) },
		newTicker: func(time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func seriesNames(p datadogV2.MetricPayload) []string {
	var out []string
	for _, s := range p.Series {
		out = append(out, s.Metric)
	}
	return out
}

func TestResolveEnvTag(t *testing.T) {
	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_fallback", env: "", dd: "stage", want: "env:stage"},
		{name: "whitespace_ignored", env: "   ", dd: "\n\t", want: "env:unknown"},
		{name: "default_unknown", want: "env:unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ENV", tc.env)
			t.Setenv("DD_ENV", tc.dd)
			assert.Equal(t, tc.want, resolveEnvTag())
		})
	}
}

func TestStepStatusKey(t *testing.T) {
	t.Parallel()

	for _, tc := range [][2]string{{"load", "ok"}, {"", "ok"}, {"reset", ""}, {"", ""}} {
		step, status := splitStepStatusKey(stepStatusKey(tc[0], tc[1]))
		assert.Equal(t, tc[0], step)
		assert.Equal(t, tc[1], status)
	}

	step, status := splitStepStatusKey("no-sep")
	assert.Equal(t, "no-sep", step)
	assert.Equal(t, "unknown", status)
}

func TestWithTags_DoesNotAliasBase(t *testing.T) {
	t.Parallel()

	base := []string{"env:test", "job:gtd"}
	got := withTags(base, "step:load")
	assert.Equal(t, []string{"env:test", "job:gtd", "step:load"}, got)

	got[0] = "env:mutated"
	assert.Equal(t, "env:test", base[0])
}

func TestPercentileNearestRank(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		s    []float64
		p    float64
		want float64
	}{
		{name: "empty", p: 0.5, want: 0},
		{name: "single", s: []float64{7}, p: 0.95, want: 7},
		{name: "p_le_0", s: []float64{1, 2, 3}, p: -1, want: 1},
		{name: "p_ge_1", s: []float64{1, 2, 3}, p: 2, want: 3},
		{name: "median", s: []float64{1, 2, 3, 4, 5}, p: 0.5, want: 3},
		{name: "p90_small_n", s: []float64{1, 2, 3, 4, 5}, p: 0.9, want: 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, percentileNearestRank(tc.s, tc.p))
		})
	}
}

func TestAppendPercentiles(t *testing.T) {
	t.Parallel()

	in := []float64{5, 1, 3, 2, 4}
	orig := append([]float64(nil), in...)

	series := appendPercentiles(nil, "etl.step.duration_seconds", in, []string{"step:load"}, 99)
	require.Len(t, series, 6)
	assert.Equal(t, orig, in)

	last := series[5]
	assert.Equal(t, "etl.step.duration_seconds.samples", last.Metric)
	assert.Equal(t, 5.0, *last.Points[0].Value)
	assert.Equal(t, int64(99), *last.Points[0].Timestamp)
	assert.Equal(t, datadogV2.METRICINTAKETYPE_GAUGE, *last.Type)
	assert.Equal(t, 5.0, *series[4].Points[0].Value)

	assert.Empty(t, appendPercentiles(nil, "x", nil, nil, 0))
}

func TestNewBackend_Defaults(t *testing.T) {
	t.Parallel()

	b, err := NewBackend(context.Background(), Options{
		Tags:      []string{"run_id:abc"},
		submitter: &fakeSubmitter{},
		newTicker: func(time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) },
	})
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	assert.Contains(t, b.baseTags, "job:gtd_star")
	assert.Contains(t, b.baseTags, "run_id:abc")
	assert.Equal(t, 60*time.Second, b.flushEvery)
}

func TestFlush_SubmitsAndResets(t *testing.T) {
	t.Parallel()

	fs := &fakeSubmitter{}
	b := quietBackend(t, fs)

	b.IncCounter(metrics.StepTotal, 2, metrics.Labels{"step": "load", "status": "ok"})
	b.IncCounter(metrics.RecordsTotal, 3, metrics.Labels{"kind": "facts"})
	b.IncCounter(metrics.BatchesTotal, 1, nil)
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.5, metrics.Labels{"step": "load", "status": "ok"})

	require.NoError(t, b.Flush())
	require.Equal(t, 1, fs.count())
	assert.True(t, b.current.isEmpty())

	names := seriesNames(fs.last())
	for _, want := range []string{
		"etl.step.total",
		"etl.records.total",
		"etl.batches.total",
		"etl.step.duration_seconds.p50",
		"etl.step.duration_seconds.samples",
	} {
		assert.Contains(t, names, want)
	}

	for _, s := range fs.last().Series {
		if s.Metric == "etl.records.total" {
			assert.True(t, slices.Contains(s.Tags, "kind:facts"), "%v", s.Tags)
			assert.Equal(t, 3.0, *s.Points[0].Value)
		}
	}
}

func TestFlush_EmptyAndFailure(t *testing.T) {
	t.Parallel()

	fs := &fakeSubmitter{}
	b := quietBackend(t, fs)
	require.NoError(t, b.Flush())
	assert.Equal(t, 0, fs.count())

	fs.err = errors.New("403")
	b.IncCounter(metrics.BatchesTotal, 1, nil)
	err := b.Flush()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "datadog submit")
	assert.True(t, b.current.isEmpty(), "buffer resets even on failure")
}

func TestIgnoredEvents(t *testing.T) {
	t.Parallel()

	fs := &fakeSubmitter{}
	b := quietBackend(t, fs)

	b.IncCounter(metrics.BatchesTotal, 0, nil)
	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{})
	b.IncCounter("etl_http_requests_total", 1, metrics.Labels{"status": "200"})
	b.ObserveHistogram(metrics.StepDurationSeconds, -1, metrics.Labels{"step": "load"})
	b.ObserveHistogram("other_seconds", 1, nil)

	assert.True(t, b.current.isEmpty())
}

func TestLoopAndClose(t *testing.T) {
	t.Parallel()

	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		FlushEvery: 5 * time.Millisecond,
		submitter:  fs,
		now:        func() time.Time { return time.Unix(2000, 0) },
	})
	require.NoError(t, err)

	b.IncCounter(metrics.BatchesTotal, 1, nil)
	require.Eventually(t, func() bool { return fs.count() >= 1 }, time.Second, 2*time.Millisecond)

	b.IncCounter(metrics.BatchesTotal, 1, nil)
	require.NoError(t, b.Close())
	assert.GreaterOrEqual(t, fs.count(), 2)

	require.NoError(t, b.Close(), "second close only flushes")
}

func TestBackend_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	fs := &fakeSubmitter{}
	b := quietBackend(t, fs)

	workers := runtime.GOMAXPROCS(0) * 4
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "load", "status": "ok"})
				b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "bridge"})
				b.ObserveHistogram(metrics.StepDurationSeconds, 0.01, metrics.Labels{"step": "load", "status": "ok"})
			}
		}()
	}
	wg.Wait()

	require.NoError(t, b.Flush())
	assert.Equal(t, 1, fs.count())
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ParseTagsCSV(""))
	assert.Equal(t, []string{"env:prod", "service:etl", "team:data"}, ParseTagsCSV(" env:prod , ,service:etl,  ,team:data "))
	assert.Equal(t, []string{"service:etl"}, ParseTagsCSV("service:etl"))
}
