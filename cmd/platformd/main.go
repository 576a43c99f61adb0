// Command platformd runs one sensor pipeline until interrupted.
//
// Settings come from the file named by PLATFORM_CONFIG (optional) and
// PLATFORM_* environment variables; see package config.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/randalmurphal/platformcore/pkg/platform"
	"github.com/randalmurphal/platformcore/pkg/platform/config"
	"github.com/randalmurphal/platformcore/pkg/platform/observability"
)

// shutdownTimeout bounds the telemetry flush on exit.
const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	settings, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "platformd: %v\n", err)
		return 1
	}

	// Validate has already accepted the level name.
	level, _ := observability.ParseLevel(settings.LogLevel)
	logger, _ := observability.NewLogger(os.Stderr, level, settings.LogFormat)

	tel := observability.Setup(logger, observability.TelemetryOptions{
		Metrics: settings.Telemetry.Metrics,
		Tracing: settings.Telemetry.Tracing,
	})

	p := platform.New(
		platform.WithSettings(settings),
		platform.WithLogger(logger),
		platform.WithMetrics(tel.Metrics),
		platform.WithSpans(tel.Spans),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.Start(); err != nil {
		logger.Error("pipeline failed to start", "error", err)
		p.Stop()
		return 1
	}

	<-ctx.Done()
	logger.Info("shutdown requested")
	p.Stop()

	logger.Info("pipeline summary",
		"run_id", p.RunID(),
		"processed_samples", p.ProcessedSamples(),
		"actuated_commands", p.ActuatedCommands(),
		"dropped_commands", p.DroppedCommands(),
		"failed_transforms", p.FailedTransforms(),
		"overruns", p.Overruns(),
	)

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := tel.Shutdown(flushCtx); err != nil {
		logger.Warn("telemetry shutdown failed", "error", err)
	}
	return 0
}
