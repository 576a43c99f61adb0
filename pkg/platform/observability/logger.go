// Package observability provides logging, metrics, and tracing for the
// platform runtime.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// Metrics and tracing are opt-in and have no-op implementations when disabled.
// All logging helpers accept a nil logger.
package observability

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Log output formats accepted by NewLogger.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLevel converts a level name ("debug", "info", "warn", "error") to a slog.Level.
// Matching is case-insensitive; "warning" is accepted as an alias for "warn".
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// NewLogger builds a logger writing to w at the given minimum level.
// Format is FormatText or FormatJSON; anything else falls back to text.
//
// The returned LevelVar can be used to change the level at runtime.
func NewLogger(w io.Writer, level slog.Level, format string) (*slog.Logger, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	lv.Set(level)
	opts := &slog.HandlerOptions{Level: lv}

	var h slog.Handler
	if strings.EqualFold(format, FormatJSON) {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), lv
}

// EnrichLogger adds run and component context to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", "perception")
//	enriched.Info("transform done") // includes run_id and component
func EnrichLogger(logger *slog.Logger, runID, component string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("component", component),
	)
}

// LogPipelineStart logs pipeline startup.
func LogPipelineStart(logger *slog.Logger, runID string, period time.Duration, workers int) {
	if logger == nil {
		return
	}
	logger.Info("pipeline starting",
		slog.String("run_id", runID),
		slog.Duration("sensor_period", period),
		slog.Int("workers", workers),
	)
}

// LogPipelineStop logs pipeline shutdown with final counters.
func LogPipelineStop(logger *slog.Logger, runID string, processed uint64, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("pipeline stopped",
		slog.String("run_id", runID),
		slog.Uint64("processed_samples", processed),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogOverrun logs a scheduler tick whose task ran past the next deadline.
func LogOverrun(logger *slog.Logger, tick uint64, late time.Duration) {
	if logger == nil {
		return
	}
	logger.Warn("scheduler overrun",
		slog.Uint64("tick", tick),
		slog.Float64("late_ms", float64(late)/float64(time.Millisecond)),
	)
}

// LogPanic logs a recovered panic from a task, job, or subscriber callback.
func LogPanic(logger *slog.Logger, component string, value any, stack string) {
	if logger == nil {
		return
	}
	logger.Error("recovered panic",
		slog.String("component", component),
		slog.String("panic", fmt.Sprint(value)),
		slog.String("stack", stack),
	)
}

// LogTransformError logs a sensor payload that could not be transformed.
func LogTransformError(logger *slog.Logger, payload string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("transform failed",
		slog.String("payload", payload),
		slog.String("error", err.Error()),
	)
}

// LogActuatorCommand logs a control command reaching the io stage.
func LogActuatorCommand(logger *slog.Logger, payload string) {
	if logger == nil {
		return
	}
	logger.Info("actuator command",
		slog.String("effort", payload),
	)
}

// LogCommandDropped logs a control command the pool refused.
func LogCommandDropped(logger *slog.Logger, payload string) {
	if logger == nil {
		return
	}
	logger.Debug("control command dropped",
		slog.String("effort", payload),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start)) / float64(time.Millisecond)
	}
}
