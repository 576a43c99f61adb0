// Package scheduler runs a task at a fixed period without drift.
//
// Deadlines advance by exactly one period per tick from the start time, so
// a slow tick does not shift later ones. Ticks are never skipped: when a
// task overruns its slot the next tick starts immediately, and the overrun
// is reported through the logger, the metrics recorder and an optional
// handler.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/platformcore/pkg/platform/guard"
	"github.com/randalmurphal/platformcore/pkg/platform/observability"
)

// Sentinel errors for Start.
var (
	// ErrInvalidPeriod indicates a zero or negative period.
	ErrInvalidPeriod = errors.New("scheduler period must be positive")

	// ErrNilTask indicates Start was called without a task.
	ErrNilTask = errors.New("scheduler task is nil")
)

// Overrun describes a tick whose task finished after the next deadline.
type Overrun struct {
	// Tick is the 1-based index of the tick that overran.
	Tick uint64
	// Deadline is when the following tick was due.
	Deadline time.Time
	// Late is how far past Deadline the task finished.
	Late time.Duration
}

// Scheduler invokes a task periodically on its own goroutine.
// The zero value is not usable; construct with New.
type Scheduler struct {
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	onOverrun func(Overrun)

	// mu serializes Start and Stop.
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	running  atomic.Bool
	ticks    atomic.Uint64
	overruns atomic.Uint64
	panics   atomic.Uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorder. Default: observability.NoopMetrics.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithOverrunHandler registers fn to be called on the scheduler goroutine
// for every overrun. fn must not block for long; it delays the next tick.
func WithOverrunHandler(fn func(Overrun)) Option {
	return func(s *Scheduler) {
		s.onOverrun = fn
	}
}

// New creates an idle scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs task every period until Stop. The first tick fires immediately.
//
// If a loop is already running it is stopped, and its in-flight tick
// finished, before the new loop starts.
func (s *Scheduler) Start(period time.Duration, task func()) error {
	if period <= 0 {
		return ErrInvalidPeriod
	}
	if task == nil {
		return ErrNilTask
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.running.Store(true)

	go s.loop(ctx, period, task, done)
	return nil
}

// Stop cancels the loop and waits for the in-flight tick to finish.
// It is safe to call when not running and more than once.
//
// Stop must not be called from inside the task: it would wait for itself.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

// Running reports whether a loop is active.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Ticks returns how many times the task has been started across all runs.
func (s *Scheduler) Ticks() uint64 {
	return s.ticks.Load()
}

// Overruns returns how many ticks finished past the following deadline.
func (s *Scheduler) Overruns() uint64 {
	return s.overruns.Load()
}

// Panics returns how many ticks panicked.
func (s *Scheduler) Panics() uint64 {
	return s.panics.Load()
}

func (s *Scheduler) loop(ctx context.Context, period time.Duration, task func(), done chan struct{}) {
	defer close(done)
	defer s.running.Store(false)

	timer := time.NewTimer(period)
	timer.Stop()
	defer timer.Stop()

	var tick uint64
	next := time.Now()
	for {
		if ctx.Err() != nil {
			return
		}
		next = next.Add(period)
		tick++
		s.ticks.Add(1)

		if perr := guard.Run("scheduler", task); perr != nil {
			s.panics.Add(1)
			observability.LogPanic(s.logger, perr.Component, perr.Value, perr.Stack)
		}

		wait := time.Until(next)
		if wait <= 0 {
			s.reportOverrun(ctx, Overrun{Tick: tick, Deadline: next, Late: -wait})
			continue
		}
		s.metrics.RecordTick(ctx, false, 0)

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) reportOverrun(ctx context.Context, o Overrun) {
	s.overruns.Add(1)
	s.metrics.RecordTick(ctx, true, o.Late)
	observability.LogOverrun(s.logger, o.Tick, o.Late)
	if s.onOverrun == nil {
		return
	}
	if perr := guard.Run("scheduler.overrun", func() { s.onOverrun(o) }); perr != nil {
		s.panics.Add(1)
		observability.LogPanic(s.logger, perr.Component, perr.Value, perr.Stack)
	}
}
