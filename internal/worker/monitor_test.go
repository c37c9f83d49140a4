package worker_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notificationsvc/internal/domain"
	"github.com/notifyhub/notificationsvc/internal/queue"
	"github.com/notifyhub/notificationsvc/internal/repository"
	"github.com/notifyhub/notificationsvc/internal/worker"
)

func seedMonitorJob(store *repository.MockStore) *domain.NotificationJob {
	return store.SeedJob(&domain.NotificationJob{
		NotificationID:   1,
		RecipientID:      1,
		Priority:         domain.PriorityDefault,
		NotBefore:        time.Now().UTC().Add(-time.Second),
		RetriesRemaining: 3,
	})
}

func newMonitor(store *repository.MockStore, poll time.Duration, workers int, process worker.ProcessFunc) *worker.JobMonitor {
	q := queue.NewDatabaseJobQueue(store, "monitor-owner", poll, zap.NewNop(), nil)
	p := worker.NewPool(workers, process, zap.NewNop(), nil, nil)
	return worker.NewJobMonitor(q, p, zap.NewNop())
}

// The take loop must carry every eligible job from the queue to a worker,
// each exactly once.
func TestMonitor_DispatchesClaimedJobs(t *testing.T) {
	store := repository.NewMockStore()
	const jobCount = 6
	for i := 0; i < jobCount; i++ {
		seedMonitorJob(store)
	}

	processed := make(chan int64, jobCount)
	m := newMonitor(store, 10*time.Millisecond, 2, func(ctx context.Context, h *queue.JobHandle) {
		processed <- h.Job().ID
	})
	m.Start(context.Background())

	seen := make(map[int64]bool)
	for i := 0; i < jobCount; i++ {
		select {
		case id := <-processed:
			if seen[id] {
				t.Fatalf("job %d dispatched twice", id)
			}
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d jobs dispatched", i, jobCount)
		}
	}

	m.Stop()
	if !m.Join(time.Second) {
		t.Fatal("monitor did not drain after Stop")
	}
}

// An empty poll round must not end the loop: a job arriving later is
// still picked up.
func TestMonitor_SurvivesEmptyPolls(t *testing.T) {
	store := repository.NewMockStore()

	processed := make(chan int64, 1)
	m := newMonitor(store, 10*time.Millisecond, 1, func(ctx context.Context, h *queue.JobHandle) {
		processed <- h.Job().ID
	})
	m.Start(context.Background())
	defer func() {
		m.Stop()
		m.Join(time.Second)
	}()

	// Let the loop cycle through a few empty polls first.
	time.Sleep(40 * time.Millisecond)
	seeded := seedMonitorJob(store)

	select {
	case id := <-processed:
		if id != seeded.ID {
			t.Fatalf("dispatched job %d, want %d", id, seeded.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job seeded after empty polls was never dispatched")
	}
}

// Stop must wake a take loop blocked on an idle queue; Join completes
// within the deadline even with a poll interval far longer than it.
func TestMonitor_StopUnblocksIdleTakeLoop(t *testing.T) {
	store := repository.NewMockStore()
	m := newMonitor(store, time.Hour, 1, func(ctx context.Context, h *queue.JobHandle) {})
	m.Start(context.Background())

	// Give the loop time to block inside its poll wait.
	time.Sleep(20 * time.Millisecond)

	m.Stop()
	if !m.Join(time.Second) {
		t.Fatal("Join did not complete after Stop while the loop was idle")
	}
}

// In-flight jobs finish before Join returns; Stop does not preempt them.
func TestMonitor_JoinWaitsForInFlightJob(t *testing.T) {
	store := repository.NewMockStore()
	seedMonitorJob(store)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{}, 1)
	m := newMonitor(store, 10*time.Millisecond, 1, func(ctx context.Context, h *queue.JobHandle) {
		close(started)
		<-release
		done <- struct{}{}
	})
	m.Start(context.Background())

	<-started
	m.Stop()

	if m.Join(30 * time.Millisecond) {
		t.Fatal("Join should time out while a job is still running")
	}

	close(release)
	if !m.Join(time.Second) {
		t.Fatal("Join did not complete after the in-flight job finished")
	}
	select {
	case <-done:
	default:
		t.Fatal("worker body did not run to completion")
	}
}
