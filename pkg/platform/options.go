package platform

import (
	"log/slog"

	"github.com/randalmurphal/platformcore/pkg/platform/config"
	"github.com/randalmurphal/platformcore/pkg/platform/observability"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSettings sets sensor period, pool size and control gain.
// Default: config.Defaults().
func WithSettings(s config.Settings) Option {
	return func(p *Pipeline) {
		p.settings = s
	}
}

// WithLogger sets the logger. Default: slog.Default().
//
// Each stage logs through a child logger carrying run_id and component.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics recorder shared by every stage.
// Default: observability.NoopMetrics.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithSpans sets the span manager for per-job spans.
// Default: observability.NoopSpanManager.
func WithSpans(s observability.SpanManager) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.spans = s
		}
	}
}

// WithSensor replaces the default noisy sensor.
func WithSensor(s Sensor) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.sensor = s
		}
	}
}

// WithActuator sets where control commands are applied.
// Default: an actuator that accepts every command.
func WithActuator(a Actuator) Option {
	return func(p *Pipeline) {
		if a != nil {
			p.actuator = a
		}
	}
}

// WithRunID sets the run identifier attached to logs and spans.
// Default: a random UUID.
func WithRunID(id string) Option {
	return func(p *Pipeline) {
		if id != "" {
			p.runID = id
		}
	}
}
