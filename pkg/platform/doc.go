/*
Package platform wires a periodic sensor, a topic bus and a worker pool into
a sensor → perception → control → io pipeline.

# Overview

A Pipeline owns one scheduler, one bus and one pool for its whole life:

	sensor tick ──publish sensor.raw──▶ perception ──enqueue──▶ pool
	                                                             │
	        io (log) ◀──┬── publish control.cmd ◀── transform ◀──┘
	                    └─▶ control ──try-enqueue──▶ actuator write

The scheduler goroutine reads the sensor and publishes its payload. The
perception subscriber hands each sample to the pool with a blocking
enqueue, so a saturated pool slows the sensor down instead of queueing
without bound. A worker parses the sample, applies the control gain and
publishes the effort on control.cmd. The io subscriber logs every command
synchronously; the control subscriber queues the actuator write with a
non-blocking enqueue because it already runs on a worker.

# Basic Usage

	p := platform.New(
	    platform.WithSettings(settings),
	    platform.WithLogger(logger),
	)
	if err := p.Start(); err != nil {
	    return err
	}
	defer p.Stop()

# Lifecycle

A Pipeline moves idle → running → stopped exactly once. Start on a running
pipeline and Stop on a stopped one are no-ops; Start after Stop returns
ErrPipelineStopped. Stop halts the scheduler, drains the pool, then removes
the subscriptions, so counters stop changing once it returns.

# Subpackages

  - queue: bounded blocking FIFO with close and cancellation
  - scheduler: drift-free periodic runner with overrun reporting
  - pool: fixed worker pool with backpressure
  - bus: synchronous topic pub/sub
  - observability: slog helpers, OpenTelemetry metrics and tracing
  - config: YAML/JSON settings with environment overrides
  - compute: small numeric kernels
*/
package platform
