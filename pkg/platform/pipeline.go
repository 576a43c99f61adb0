package platform

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/platformcore/pkg/platform/bus"
	"github.com/randalmurphal/platformcore/pkg/platform/config"
	"github.com/randalmurphal/platformcore/pkg/platform/observability"
	"github.com/randalmurphal/platformcore/pkg/platform/pool"
	"github.com/randalmurphal/platformcore/pkg/platform/scheduler"
)

// Lifecycle states.
const (
	stateIdle int32 = iota
	stateRunning
	stateStopped
)

// Stage names used for logs, spans and metrics.
const (
	stageSensor     = "sensor"
	stagePerception = "perception"
	stageActuation  = "actuation"
)

// defaultNoise is the standard deviation of the default sensor.
const defaultNoise = 0.05

// Pipeline runs the sensor → perception → control → io stages.
// Construct with New; a Pipeline cannot be restarted once stopped.
type Pipeline struct {
	settings config.Settings
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	sensor   Sensor
	actuator Actuator
	runID    string

	bus   *bus.Bus
	pool  *pool.Pool
	sched *scheduler.Scheduler

	perceptionLog *slog.Logger
	controlLog    *slog.Logger
	ioLog         *slog.Logger

	// lifecycle serializes Start and Stop; state is readable without it.
	lifecycle sync.Mutex
	state     atomic.Int32
	subs      []bus.SubscriptionID
	started   time.Time

	processed atomic.Uint64
	actuated  atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// New builds an idle pipeline. Its pool workers start immediately; call
// Stop to release them even if the pipeline never starts.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		settings: config.Defaults(),
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.runID == "" {
		p.runID = uuid.NewString()
	}
	if p.sensor == nil {
		p.sensor = NewNoisySensor(p.settings.Sensor.Name, defaultNoise)
	}
	if p.actuator == nil {
		p.actuator = ActuatorFunc(func(context.Context, ControlCommand) error { return nil })
	}

	p.perceptionLog = observability.EnrichLogger(p.logger, p.runID, stagePerception)
	p.controlLog = observability.EnrichLogger(p.logger, p.runID, "control")
	p.ioLog = observability.EnrichLogger(p.logger, p.runID, "io")

	p.bus = bus.New(
		bus.WithLogger(observability.EnrichLogger(p.logger, p.runID, "bus")),
		bus.WithMetrics(p.metrics),
	)
	p.pool = pool.New(p.settings.Pool.WorkerCount(),
		pool.WithQueueCapacity(p.settings.Pool.QueueCapacity),
		pool.WithLogger(observability.EnrichLogger(p.logger, p.runID, "pool")),
		pool.WithMetrics(p.metrics),
	)
	p.sched = scheduler.New(
		scheduler.WithLogger(observability.EnrichLogger(p.logger, p.runID, "scheduler")),
		scheduler.WithMetrics(p.metrics),
	)
	return p
}

// Start subscribes the stages and starts the sensor loop.
//
// It is a no-op on a running pipeline and returns ErrPipelineStopped after Stop.
func (p *Pipeline) Start() error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	switch p.state.Load() {
	case stateRunning:
		return nil
	case stateStopped:
		return ErrPipelineStopped
	}

	p.subs = append(p.subs,
		p.bus.Subscribe(TopicSensorRaw, p.perceive),
		p.bus.Subscribe(TopicControlCmd, p.control),
		p.bus.Subscribe(TopicControlCmd, p.io),
	)

	// The scheduler goes last so no tick publishes before every stage listens.
	if err := p.sched.Start(p.settings.Sensor.Period, p.sense); err != nil {
		p.unsubscribeAll()
		return fmt.Errorf("start scheduler: %w", err)
	}

	p.started = time.Now()
	p.state.Store(stateRunning)
	observability.LogPipelineStart(p.logger, p.runID, p.settings.Sensor.Period, p.pool.Workers())
	return nil
}

// Stop halts the sensor, runs every queued job, then detaches the stages.
// Counters do not change after Stop returns. Calling Stop again is a no-op.
//
// Commands published while the pool drains cannot be queued and are counted
// as dropped.
func (p *Pipeline) Stop() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	prev := p.state.Load()
	if prev == stateStopped {
		return
	}

	p.sched.Stop()
	p.pool.Shutdown()
	p.unsubscribeAll()
	p.state.Store(stateStopped)

	if prev == stateRunning {
		observability.LogPipelineStop(p.logger, p.runID, p.processed.Load(),
			float64(time.Since(p.started))/float64(time.Millisecond))
	}
}

func (p *Pipeline) unsubscribeAll() {
	for _, id := range p.subs {
		p.bus.Unsubscribe(id)
	}
	p.subs = nil
}

// sense runs on the scheduler goroutine once per period.
func (p *Pipeline) sense() {
	ctx := context.Background()
	sample, err := p.sensor.Read(ctx)
	p.metrics.RecordSample(ctx, stageSensor, err)
	if err != nil {
		p.logger.Warn("sensor read failed",
			slog.String("run_id", p.runID),
			slog.String("error", err.Error()),
		)
		return
	}
	p.bus.PublishPayload(TopicSensorRaw, sample.Payload())
}

// perceive hands the sample to the pool. The blocking enqueue stalls the
// publisher while the pool is saturated.
func (p *Pipeline) perceive(msg bus.Message) {
	payload := msg.Payload
	if !p.pool.Enqueue(func() { p.transform(payload) }) {
		p.perceptionLog.Debug("sample dropped, pool closed", slog.String("payload", payload))
	}
}

// transform runs on a pool worker.
func (p *Pipeline) transform(payload string) {
	ctx, span := p.spans.StartStageSpan(context.Background(), p.runID, stagePerception, TopicSensorRaw)

	sample, err := ParseSample(payload)
	if err != nil {
		p.failed.Add(1)
		observability.LogTransformError(p.perceptionLog, payload, err)
		p.metrics.RecordSample(ctx, stagePerception, err)
		p.spans.EndSpanWithError(span, err)
		return
	}

	cmd := ControlCommand{
		Effort:    sample.Value * p.settings.Control.Gain,
		Timestamp: time.Now(),
	}
	delivered := p.bus.Publish(bus.Message{
		Topic:     TopicControlCmd,
		Payload:   cmd.Payload(),
		Timestamp: cmd.Timestamp,
	})
	p.spans.AddSpanEvent(ctx, "command_published",
		attribute.Int("delivered", delivered))

	p.processed.Add(1)
	p.metrics.RecordSample(ctx, stagePerception, nil)
	p.spans.EndSpanWithError(span, nil)
}

// control runs on whatever goroutine published control.cmd, normally a
// worker, so it must never block on the pool.
func (p *Pipeline) control(msg bus.Message) {
	payload := msg.Payload
	if !p.pool.TryEnqueue(func() { p.actuate(payload) }) {
		p.dropped.Add(1)
		observability.LogCommandDropped(p.controlLog, payload)
	}
}

// actuate runs on a pool worker.
func (p *Pipeline) actuate(payload string) {
	ctx, span := p.spans.StartStageSpan(context.Background(), p.runID, stageActuation, TopicControlCmd)

	cmd, err := ParseCommand(payload)
	if err == nil {
		cmd.Timestamp = time.Now()
		err = p.actuator.Apply(ctx, cmd)
	}
	if err != nil {
		p.failed.Add(1)
		p.controlLog.Warn("actuation failed",
			slog.String("effort", payload),
			slog.String("error", err.Error()),
		)
	} else {
		p.actuated.Add(1)
	}
	p.metrics.RecordSample(ctx, stageActuation, err)
	p.spans.EndSpanWithError(span, err)
}

// io logs each command on the publishing goroutine.
func (p *Pipeline) io(msg bus.Message) {
	observability.LogActuatorCommand(p.ioLog, msg.Payload)
}

// ProcessedSamples returns how many samples were transformed into commands.
func (p *Pipeline) ProcessedSamples() uint64 {
	return p.processed.Load()
}

// ActuatedCommands returns how many commands the actuator accepted.
func (p *Pipeline) ActuatedCommands() uint64 {
	return p.actuated.Load()
}

// DroppedCommands returns how many commands were refused by a full pool.
func (p *Pipeline) DroppedCommands() uint64 {
	return p.dropped.Load()
}

// FailedTransforms returns how many samples or commands failed to parse or apply.
func (p *Pipeline) FailedTransforms() uint64 {
	return p.failed.Load()
}

// Bus returns the pipeline's bus for additional subscribers.
func (p *Pipeline) Bus() *bus.Bus {
	return p.bus
}

// RunID returns the run identifier.
func (p *Pipeline) RunID() string {
	return p.runID
}

// Running reports whether the pipeline is between Start and Stop.
func (p *Pipeline) Running() bool {
	return p.state.Load() == stateRunning
}

// Overruns returns how many sensor ticks overran their period.
func (p *Pipeline) Overruns() uint64 {
	return p.sched.Overruns()
}
