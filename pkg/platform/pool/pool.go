// Package pool provides a fixed-size worker pool over a bounded job queue.
//
// Enqueue blocks while the queue is full, which pushes back on producers
// instead of growing memory. Shutdown stops intake and waits for every job
// that was already accepted to run.
package pool

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/platformcore/pkg/platform/guard"
	"github.com/randalmurphal/platformcore/pkg/platform/observability"
	"github.com/randalmurphal/platformcore/pkg/platform/queue"
)

// DefaultQueueCapacity is the job queue size when WithQueueCapacity is not given.
const DefaultQueueCapacity = 1024

// Rejection reasons reported to the metrics recorder.
const (
	rejectShutdown  = "shutdown"
	rejectFull      = "full"
	rejectCancelled = "cancelled"
)

// Job is a unit of work. It runs on exactly one worker.
type Job func()

// Pool runs jobs on a fixed set of goroutines.
// The zero value is not usable; construct with New.
type Pool struct {
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	onPanic  func(recovered any)
	capacity int

	jobs    *queue.Bounded[Job]
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	workers int

	shutdown atomic.Bool
	executed atomic.Uint64
	panics   atomic.Uint64
}

// Option configures a Pool.
type Option func(*Pool)

// WithQueueCapacity sets the job queue size. Values below 1 are treated as 1.
func WithQueueCapacity(n int) Option {
	return func(p *Pool) {
		p.capacity = n
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics recorder. Default: observability.NoopMetrics.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(p *Pool) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithPanicHandler registers fn to receive the value of every panicking job.
// It runs on the worker goroutine after the panic is logged.
func WithPanicHandler(fn func(recovered any)) Option {
	return func(p *Pool) {
		p.onPanic = fn
	}
}

// New starts workers goroutines. workers <= 0 means runtime.NumCPU().
func New(workers int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		capacity: DefaultQueueCapacity,
		workers:  workers,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.jobs = queue.NewBounded[Job](p.capacity)
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

// Enqueue submits job, blocking while the queue is full.
// It returns false if job is nil or shutdown has begun.
func (p *Pool) Enqueue(job Job) bool {
	return p.EnqueueContext(context.Background(), job)
}

// EnqueueContext is Enqueue with a cancellable wait for queue space.
// It returns false if ctx is done before space frees up.
func (p *Pool) EnqueueContext(ctx context.Context, job Job) bool {
	if job == nil {
		return false
	}
	if p.shutdown.Load() {
		p.metrics.RecordJobRejected(ctx, rejectShutdown)
		return false
	}
	if p.jobs.Push(ctx, job) {
		return true
	}
	reason := rejectShutdown
	if ctx.Err() != nil && !p.jobs.Closed() {
		reason = rejectCancelled
	}
	p.metrics.RecordJobRejected(ctx, reason)
	return false
}

// TryEnqueue submits job without blocking.
// It returns false if job is nil, the queue is full, or shutdown has begun.
func (p *Pool) TryEnqueue(job Job) bool {
	if job == nil {
		return false
	}
	if p.shutdown.Load() {
		p.metrics.RecordJobRejected(p.ctx, rejectShutdown)
		return false
	}
	if p.jobs.TryPush(job) {
		return true
	}
	reason := rejectFull
	if p.jobs.Closed() {
		reason = rejectShutdown
	}
	p.metrics.RecordJobRejected(p.ctx, reason)
	return false
}

// Shutdown stops accepting jobs, runs everything already queued, and waits
// for the workers to exit. Calls after the first return immediately.
//
// Shutdown must not be called from a job: it would wait for itself.
func (p *Pool) Shutdown() {
	if !p.shutdown.CompareAndSwap(false, true) {
		return
	}
	p.jobs.Close()
	p.cancel()
	p.wg.Wait()
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Pending returns the number of queued jobs not yet picked up.
func (p *Pool) Pending() int {
	return p.jobs.Len()
}

// Executed returns how many jobs have run, including ones that panicked.
func (p *Pool) Executed() uint64 {
	return p.executed.Load()
}

// Panics returns how many jobs panicked.
func (p *Pool) Panics() uint64 {
	return p.panics.Load()
}

// Dropped returns how many TryEnqueue calls found the queue full.
func (p *Pool) Dropped() uint64 {
	return p.jobs.Drops()
}

// worker pops until the queue is closed and drained. Pop hands back
// buffered jobs even after cancel, so nothing accepted is lost.
func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		job, ok := p.jobs.Pop(p.ctx)
		if !ok {
			return
		}
		p.run(job)
	}
}

func (p *Pool) run(job Job) {
	start := time.Now()
	perr := guard.Run("pool", job)
	p.executed.Add(1)
	p.metrics.RecordJob(p.ctx, time.Since(start), perr != nil)

	if perr == nil {
		return
	}
	p.panics.Add(1)
	observability.LogPanic(p.logger, perr.Component, perr.Value, perr.Stack)
	if p.onPanic != nil {
		p.onPanic(perr.Value)
	}
}
