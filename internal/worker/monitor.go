package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notificationsvc/internal/domain"
	"github.com/notifyhub/notificationsvc/internal/queue"
)

// JobMonitor connects the database job queue to the worker pool: a single
// take loop pulls claimed handles from the queue and hands them to the pool,
// blocking whenever every worker is busy.
type JobMonitor struct {
	queue  *queue.DatabaseJobQueue
	pool   *Pool
	logger *zap.Logger

	wg sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

func NewJobMonitor(q *queue.DatabaseJobQueue, pool *Pool, logger *zap.Logger) *JobMonitor {
	return &JobMonitor{
		queue:  q,
		pool:   pool,
		logger: logger,
	}
}

// Start launches the queue, the worker pool, and the take loop. Idempotent.
func (m *JobMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	m.queue.Start()
	m.pool.Start(ctx)

	m.wg.Add(1)
	go m.run(ctx)
	m.logger.Info("job monitor started")
}

func (m *JobMonitor) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		handle, err := m.queue.Take(ctx)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrQueueStopped):
				m.logger.Info("job monitor stopping, queue closed")
				return
			case errors.Is(err, domain.ErrQueueEmpty):
				// No eligible work this poll round; Take already waited.
				continue
			default:
				m.logger.Error("taking job from queue", zap.Error(err))
				continue
			}
		}

		if !m.pool.Submit(handle) {
			// Pool stopped while we held an unsubmitted claim. The row stays
			// claimed until its owner restarts; nothing more to do here.
			m.logger.Warn("worker pool stopped, dropping claimed job",
				zap.Int64("job_id", handle.Job().ID))
			return
		}
	}
}

// Stop closes the queue first so the take loop unblocks, then stops the
// pool so in-flight jobs finish. Idempotent.
func (m *JobMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true

	m.queue.Stop()
	m.pool.Stop()
	m.logger.Info("job monitor stopped")
}

// Join waits for the take loop and all workers to exit, sharing one
// deadline across both. Returns false if the deadline elapsed first.
func (m *JobMonitor) Join(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Until(deadline)):
		return false
	}

	return m.pool.Join(time.Until(deadline))
}
