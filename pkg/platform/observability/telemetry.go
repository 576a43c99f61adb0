package observability

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TelemetryOptions selects which OTel providers Setup installs.
type TelemetryOptions struct {
	Metrics bool
	Tracing bool
}

// Telemetry owns the SDK providers installed by Setup.
type Telemetry struct {
	Metrics MetricsRecorder
	Spans   SpanManager

	logger *slog.Logger
	reader *sdkmetric.ManualReader
	mp     *sdkmetric.MeterProvider
	tp     *sdktrace.TracerProvider
}

// Setup installs global OTel meter and tracer providers as requested and
// returns recorders bound to them. Disabled features get no-op recorders.
//
// Metrics are collected with a manual reader and summarized to the logger on
// Shutdown. Finished spans are written to the logger at debug level.
func Setup(logger *slog.Logger, opts TelemetryOptions) *Telemetry {
	t := &Telemetry{
		Metrics: NoopMetrics{},
		Spans:   NoopSpanManager{},
		logger:  logger,
	}

	if opts.Metrics {
		t.reader = sdkmetric.NewManualReader()
		t.mp = sdkmetric.NewMeterProvider(sdkmetric.WithReader(t.reader))
		otel.SetMeterProvider(t.mp)
		if m, err := newOtelMetricsWithMeter(t.mp.Meter(MeterName)); err != nil {
			if logger != nil {
				logger.Warn("metrics initialization failed, using no-op recorder",
					slog.String("error", err.Error()))
			}
		} else {
			t.Metrics = m
		}
	}

	if opts.Tracing {
		t.tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(NewLogSpanExporter(logger)),
		)
		otel.SetTracerProvider(t.tp)
		tracer = t.tp.Tracer(TracerName)
		t.Spans = NewSpanManager()
	}

	return t
}

// Shutdown logs a metrics summary and flushes and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if t.mp != nil {
		var rm metricdata.ResourceMetrics
		if err := t.reader.Collect(ctx, &rm); err != nil {
			errs = append(errs, err)
		} else {
			logMetricsSummary(t.logger, &rm)
		}
		if err := t.mp.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if t.tp != nil {
		if err := t.tp.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// logMetricsSummary writes one line per collected metric with its aggregate value.
func logMetricsSummary(logger *slog.Logger, rm *metricdata.ResourceMetrics) {
	if logger == nil {
		return
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				logger.Info("metric", slog.String("name", m.Name), slog.Int64("total", total))
			case metricdata.Histogram[float64]:
				var count uint64
				var sum float64
				for _, dp := range data.DataPoints {
					count += dp.Count
					sum += dp.Sum
				}
				logger.Info("metric",
					slog.String("name", m.Name),
					slog.Uint64("count", count),
					slog.Float64("sum", sum),
				)
			}
		}
	}
}

// LogSpanExporter is an sdktrace.SpanExporter that writes finished spans to a logger.
type LogSpanExporter struct {
	logger *slog.Logger
}

var _ sdktrace.SpanExporter = (*LogSpanExporter)(nil)

// NewLogSpanExporter creates an exporter that logs spans at debug level.
func NewLogSpanExporter(logger *slog.Logger) *LogSpanExporter {
	return &LogSpanExporter{logger: logger}
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *LogSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if e.logger == nil {
		return nil
	}
	for _, s := range spans {
		e.logger.LogAttrs(ctx, slog.LevelDebug, "span",
			slog.String("name", s.Name()),
			slog.String("trace_id", s.SpanContext().TraceID().String()),
			slog.Duration("duration", s.EndTime().Sub(s.StartTime())),
			slog.String("status", s.Status().Code.String()),
		)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *LogSpanExporter) Shutdown(context.Context) error {
	return nil
}
