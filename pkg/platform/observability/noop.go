package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

func (NoopMetrics) RecordTick(_ context.Context, _ bool, _ time.Duration) {}
func (NoopMetrics) RecordPublish(_ context.Context, _ string, _ int) {}
func (NoopMetrics) RecordCallbackPanic(_ context.Context, _ string) {}
func (NoopMetrics) RecordJob(_ context.Context, _ time.Duration, _ bool) {}
func (NoopMetrics) RecordJobRejected(_ context.Context, _ string) {}
func (NoopMetrics) RecordSample(_ context.Context, _ string, _ error) {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartStageSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartStageSpan(ctx context.Context, _, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
