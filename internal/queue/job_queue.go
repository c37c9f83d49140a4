// Package queue implements the database-backed notification job queue.
//
// The queue is a logical view over the notification_job table, parameterized
// by the owning fleet-instance identifier. Claiming is arbitrated by row
// locks in the database, so several service instances can share one table:
// a row with a non-null owner is invisible to every other claimant.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notificationsvc/internal/domain"
	"github.com/notifyhub/notificationsvc/internal/repository"
)

// claimRetries bounds how many times Take retries after losing a row to a
// concurrent claimant before reporting the queue as empty.
const claimRetries = 3

// DatabaseJobQueue discovers and claims eligible notification jobs.
type DatabaseJobQueue struct {
	store        repository.Store
	owner        string
	pollInterval time.Duration
	logger       *zap.Logger

	// onConflict is invoked each time a claim attempt loses the row to a
	// concurrent claimant. Optional metrics hook; nil = no-op.
	onConflict func()

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
}

func NewDatabaseJobQueue(
	store repository.Store,
	owner string,
	pollInterval time.Duration,
	logger *zap.Logger,
	onConflict func(),
) *DatabaseJobQueue {
	if onConflict == nil {
		onConflict = func() {}
	}
	return &DatabaseJobQueue{
		store:        store,
		owner:        owner,
		pollInterval: pollInterval,
		logger:       logger,
		onConflict:   onConflict,
		stopCh:       make(chan struct{}),
	}
}

// Start arms the queue. Idempotent; calling Start after Stop does not revive
// a stopped queue.
func (q *DatabaseJobQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	q.logger.Info("job queue started",
		zap.String("owner", q.owner),
		zap.Duration("poll_interval", q.pollInterval))
}

// Stop signals shutdown and wakes every blocked Take, which thereafter
// returns domain.ErrQueueStopped. Idempotent.
func (q *DatabaseJobQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.stopped = true
	close(q.stopCh)
	q.logger.Info("job queue stopped", zap.String("owner", q.owner))
}

// Take atomically claims and returns exactly one eligible job, wrapped in a
// JobHandle that carries the finalization obligation.
//
// Outcomes:
//   - (*JobHandle, nil): a job was claimed for this instance
//   - domain.ErrQueueEmpty: nothing eligible within one poll interval
//   - domain.ErrQueueStopped: Stop was called (possibly mid-wait)
//
// Contention with other claimants is retried a bounded number of times
// before reporting empty.
func (q *DatabaseJobQueue) Take(ctx context.Context) (*JobHandle, error) {
	if q.isStopped() {
		return nil, domain.ErrQueueStopped
	}

	for attempt := 0; attempt <= claimRetries; attempt++ {
		job, err := q.store.ClaimJob(ctx, q.owner, time.Now().UTC())
		switch {
		case err == nil:
			return newJobHandle(q.store, job, q.owner), nil
		case errors.Is(err, domain.ErrJobAlreadyOwned):
			q.onConflict()
			continue
		case errors.Is(err, domain.ErrQueueEmpty):
			return q.waitForPoll(ctx)
		default:
			q.logger.Error("job claim failed", zap.Error(err))
			return q.waitForPoll(ctx)
		}
	}
	return nil, domain.ErrQueueEmpty
}

// waitForPoll blocks for one poll interval, waking early on Stop or
// context cancellation.
func (q *DatabaseJobQueue) waitForPoll(ctx context.Context) (*JobHandle, error) {
	timer := time.NewTimer(q.pollInterval)
	defer timer.Stop()

	select {
	case <-q.stopCh:
		return nil, domain.ErrQueueStopped
	case <-ctx.Done():
		return nil, domain.ErrQueueStopped
	case <-timer.C:
		return nil, domain.ErrQueueEmpty
	}
}

func (q *DatabaseJobQueue) isStopped() bool {
	select {
	case <-q.stopCh:
		return true
	default:
		return false
	}
}
