package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notificationsvc/internal/queue"
)

// ProcessFunc is the worker body invoked once per claimed job.
// The notifier provides the production implementation.
type ProcessFunc func(ctx context.Context, handle *queue.JobHandle)

// Pool is a fixed-size set of workers consuming claimed job handles.
// Submit hands one handle to an idle worker and blocks while all workers
// are busy, which backpressures the monitor's take loop.
type Pool struct {
	size    int
	process ProcessFunc
	logger  *zap.Logger

	// onBusy/onIdle track worker occupancy for the busy-workers gauge.
	onBusy func()
	onIdle func()

	jobs chan *queue.JobHandle
	quit chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

func NewPool(size int, process ProcessFunc, logger *zap.Logger, onBusy, onIdle func()) *Pool {
	if onBusy == nil {
		onBusy = func() {}
	}
	if onIdle == nil {
		onIdle = func() {}
	}
	return &Pool{
		size:    size,
		process: process,
		logger:  logger,
		onBusy:  onBusy,
		onIdle:  onIdle,
		// Unbuffered: a Submit completes only when a worker is ready to
		// take the handle, so saturation blocks the caller.
		jobs: make(chan *queue.JobHandle),
		quit: make(chan struct{}),
	}
}

// Start launches the workers. Idempotent.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.size))
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker_id", id))
	log.Debug("worker started")

	for {
		select {
		case <-p.quit:
			log.Debug("worker stopping")
			return
		case handle := <-p.jobs:
			p.onBusy()
			p.safeProcess(ctx, handle, log)
			p.onIdle()
		}
	}
}

// safeProcess confines panics from the worker body to the current job.
// A crashed iteration is logged and the worker keeps serving.
func (p *Pool) safeProcess(ctx context.Context, handle *queue.JobHandle, log *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker body panicked",
				zap.Int64("job_id", handle.Job().ID),
				zap.Any("panic", r))
		}
	}()
	p.process(ctx, handle)
}

// Submit hands a claimed job to the pool, blocking while every worker is
// busy. Returns false if the pool stopped before a worker took the handle.
func (p *Pool) Submit(handle *queue.JobHandle) bool {
	select {
	case p.jobs <- handle:
		return true
	case <-p.quit:
		return false
	}
}

// Stop signals all workers to exit once their current job finishes.
// Idempotent.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	close(p.quit)
	p.logger.Info("worker pool stopping")
}

// Join waits for every worker to exit, up to timeout.
// Returns false if the deadline elapsed first.
func (p *Pool) Join(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
