package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"gtdetl/internal/config"
	"gtdetl/internal/metrics"
	"gtdetl/internal/metrics/datadog"
	"gtdetl/internal/metrics/prompush"
)

const defaultPushgatewayURL = "http://localhost:9091"

// closingBackend is a metrics backend that owns a flush loop.
type closingBackend interface {
	metrics.Backend
	Close() error
}

// Seams replaced by tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (closingBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	newPushBackend = func(job, url string, opts ...prompush.Option) (metrics.Backend, error) {
		return prompush.NewBackend(job, url, opts...)
	}
	setMetricsBackend = metrics.SetBackend
)

// initMetrics installs the configured metrics backend and returns its
// cleanup. The cleanup is never nil and is safe to call on error.
//
// A backend that fails to start is logged and metrics stay disabled; only
// an unknown backend name is an error.
func initMetrics(ctx context.Context, p config.Pipeline, runID string, log *zap.Logger) (func(), error) {
	nop := func() {}

	job := p.Job
	if job == "" {
		job = "gtd_star"
	}
	name := strings.ToLower(strings.TrimSpace(p.Metrics.Backend))

	switch name {
	case "", "none", "noop":
		log.Debug("metrics disabled")
		return nop, nil

	case "pushgateway":
		// flag → config → env → default
		url := p.Metrics.PushgatewayURL
		if url == "" {
			url = os.Getenv("PUSHGATEWAY_URL")
		}
		if url == "" {
			url = defaultPushgatewayURL
		}

		b, err := newPushBackend(job, url, prompush.WithGrouping("run_id", runID))
		if err != nil {
			log.Warn("metrics: pushgateway backend unavailable; metrics disabled", zap.Error(err))
			return nop, nil
		}
		log.Info("metrics", zap.String("backend", name), zap.String("url", url), zap.String("job_name", job))
		setMetricsBackend(b)
		return func() {
			if f, ok := b.(metrics.Flusher); ok {
				if err := f.Flush(); err != nil {
					log.Warn("metrics: push error", zap.Error(err))
				}
			}
			setMetricsBackend(nil)
		}, nil

	case "datadog":
		tags := append([]string(nil), p.Metrics.Tags...)
		tags = append(tags, datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))...)
		tags = append(tags, "run_id:"+runID)

		b, err := newDatadogBackend(ctx, datadog.Options{JobName: job, Tags: tags})
		if err != nil {
			log.Warn("metrics: datadog backend unavailable; metrics disabled", zap.Error(err))
			return nop, nil
		}
		log.Info("metrics", zap.String("backend", name), zap.String("job_name", job), zap.Strings("tags", tags))
		setMetricsBackend(b)
		return func() {
			// Close stops the flush loop and submits what is buffered.
			if err := b.Close(); err != nil {
				log.Warn("metrics: datadog close error", zap.Error(err))
			}
			setMetricsBackend(nil)
		}, nil

	default:
		return nop, fmt.Errorf("unknown metrics backend %q (want none|pushgateway|datadog)", name)
	}
}
