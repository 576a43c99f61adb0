package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope used for all platform metrics.
const MeterName = "platformcore"

// MetricsRecorder records runtime metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordTick records one scheduler tick. late is only meaningful when overrun is true.
	RecordTick(ctx context.Context, overrun bool, late time.Duration)

	// RecordPublish records a bus publish and how many callbacks it reached.
	RecordPublish(ctx context.Context, topic string, delivered int)

	// RecordCallbackPanic records a subscriber callback that panicked.
	RecordCallbackPanic(ctx context.Context, topic string)

	// RecordJob records a pool job execution.
	RecordJob(ctx context.Context, duration time.Duration, panicked bool)

	// RecordJobRejected records a job the pool refused ("shutdown", "full", "cancelled").
	RecordJobRejected(ctx context.Context, reason string)

	// RecordSample records a pipeline stage outcome for one sample.
	RecordSample(ctx context.Context, stage string, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	ticks          metric.Int64Counter
	tickLateness   metric.Float64Histogram
	publishes      metric.Int64Counter
	deliveries     metric.Int64Counter
	callbackPanics metric.Int64Counter
	jobs           metric.Int64Counter
	jobLatency     metric.Float64Histogram
	jobsRejected   metric.Int64Counter
	samples        metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics lazily creates the shared OTel instruments.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	return newOtelMetricsWithMeter(otel.Meter(MeterName))
}

// newOtelMetricsWithMeter creates the instruments on a specific meter.
func newOtelMetricsWithMeter(meter metric.Meter) (*otelMetrics, error) {
	m := &otelMetrics{}
	var err error

	if m.ticks, err = meter.Int64Counter("platform.scheduler.ticks",
		metric.WithDescription("Number of scheduler ticks"),
	); err != nil {
		return nil, err
	}
	if m.tickLateness, err = meter.Float64Histogram("platform.scheduler.overrun_ms",
		metric.WithDescription("How far past its deadline an overrunning tick finished"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.publishes, err = meter.Int64Counter("platform.bus.publishes",
		metric.WithDescription("Number of messages published"),
	); err != nil {
		return nil, err
	}
	if m.deliveries, err = meter.Int64Counter("platform.bus.deliveries",
		metric.WithDescription("Number of subscriber callback invocations"),
	); err != nil {
		return nil, err
	}
	if m.callbackPanics, err = meter.Int64Counter("platform.bus.callback_panics",
		metric.WithDescription("Number of subscriber callbacks that panicked"),
	); err != nil {
		return nil, err
	}
	if m.jobs, err = meter.Int64Counter("platform.pool.jobs",
		metric.WithDescription("Number of executed pool jobs"),
	); err != nil {
		return nil, err
	}
	if m.jobLatency, err = meter.Float64Histogram("platform.pool.job_latency_ms",
		metric.WithDescription("Pool job execution latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.jobsRejected, err = meter.Int64Counter("platform.pool.rejected",
		metric.WithDescription("Number of jobs refused by the pool"),
	); err != nil {
		return nil, err
	}
	if m.samples, err = meter.Int64Counter("platform.pipeline.samples",
		metric.WithDescription("Pipeline samples by stage and outcome"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before recording, e.g. with Setup or otel.SetMeterProvider.
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordTick(ctx context.Context, overrun bool, late time.Duration) {
	attrs := metric.WithAttributes(attribute.Bool("overrun", overrun))
	m.ticks.Add(ctx, 1, attrs)
	if overrun {
		m.tickLateness.Record(ctx, float64(late)/float64(time.Millisecond))
	}
}

func (m *otelMetrics) RecordPublish(ctx context.Context, topic string, delivered int) {
	attrs := metric.WithAttributes(attribute.String("topic", topic))
	m.publishes.Add(ctx, 1, attrs)
	if delivered > 0 {
		m.deliveries.Add(ctx, int64(delivered), attrs)
	}
}

func (m *otelMetrics) RecordCallbackPanic(ctx context.Context, topic string) {
	m.callbackPanics.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *otelMetrics) RecordJob(ctx context.Context, duration time.Duration, panicked bool) {
	attrs := metric.WithAttributes(attribute.Bool("panicked", panicked))
	m.jobs.Add(ctx, 1, attrs)
	m.jobLatency.Record(ctx, float64(duration)/float64(time.Millisecond), attrs)
}

func (m *otelMetrics) RecordJobRejected(ctx context.Context, reason string) {
	m.jobsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *otelMetrics) RecordSample(ctx context.Context, stage string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.samples.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	))
}
