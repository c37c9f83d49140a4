package worker_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notificationsvc/internal/domain"
	"github.com/notifyhub/notificationsvc/internal/queue"
	"github.com/notifyhub/notificationsvc/internal/repository"
	"github.com/notifyhub/notificationsvc/internal/worker"
)

// takeHandles claims n seeded jobs so tests have real handles to submit.
func takeHandles(t *testing.T, n int) []*queue.JobHandle {
	t.Helper()
	store := repository.NewMockStore()
	for i := 0; i < n; i++ {
		store.SeedJob(&domain.NotificationJob{
			NotificationID: 1,
			RecipientID:    1,
			Priority:       domain.PriorityDefault,
			NotBefore:      time.Now().UTC().Add(-time.Second),
		})
	}
	q := queue.NewDatabaseJobQueue(store, "test-owner", 10*time.Millisecond, zap.NewNop(), nil)
	q.Start()
	t.Cleanup(q.Stop)

	handles := make([]*queue.JobHandle, 0, n)
	for i := 0; i < n; i++ {
		h, err := q.Take(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		handles = append(handles, h)
	}
	return handles
}

func TestPool_ProcessesSubmittedJobs(t *testing.T) {
	var processed atomic.Int64
	p := worker.NewPool(2, func(ctx context.Context, h *queue.JobHandle) {
		processed.Add(1)
	}, zap.NewNop(), nil, nil)
	p.Start(context.Background())

	for _, h := range takeHandles(t, 5) {
		if !p.Submit(h) {
			t.Fatal("Submit returned false on a running pool")
		}
	}

	p.Stop()
	if !p.Join(time.Second) {
		t.Fatal("pool did not drain in time")
	}
	if got := processed.Load(); got != 5 {
		t.Fatalf("processed %d jobs, want 5", got)
	}
}

// With one worker occupied, a second Submit must block until the worker
// frees up: saturation backpressures the submitter rather than queueing.
func TestPool_SubmitBlocksWhenSaturated(t *testing.T) {
	release := make(chan struct{})
	p := worker.NewPool(1, func(ctx context.Context, h *queue.JobHandle) {
		<-release
	}, zap.NewNop(), nil, nil)
	p.Start(context.Background())
	defer p.Stop()

	handles := takeHandles(t, 2)
	if !p.Submit(handles[0]) {
		t.Fatal("first Submit should succeed")
	}

	submitted := make(chan struct{})
	go func() {
		p.Submit(handles[1])
		close(submitted)
	}()

	select {
	case <-submitted:
		t.Fatal("second Submit should block while the only worker is busy")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-submitted:
	case <-time.After(time.Second):
		t.Fatal("second Submit did not complete after worker freed up")
	}
}

func TestPool_SubmitAfterStop(t *testing.T) {
	p := worker.NewPool(1, func(ctx context.Context, h *queue.JobHandle) {}, zap.NewNop(), nil, nil)
	p.Start(context.Background())
	p.Stop()
	if !p.Join(time.Second) {
		t.Fatal("pool did not stop in time")
	}

	if p.Submit(takeHandles(t, 1)[0]) {
		t.Fatal("Submit must return false after Stop")
	}
}

// A panicking worker body must not kill the worker: the next job on the
// same pool still gets processed.
func TestPool_RecoversFromPanic(t *testing.T) {
	var calls atomic.Int64
	p := worker.NewPool(1, func(ctx context.Context, h *queue.JobHandle) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
	}, zap.NewNop(), nil, nil)
	p.Start(context.Background())

	handles := takeHandles(t, 2)
	p.Submit(handles[0])
	p.Submit(handles[1])

	p.Stop()
	if !p.Join(time.Second) {
		t.Fatal("pool did not drain in time")
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("worker body called %d times, want 2", got)
	}
}

func TestPool_JoinTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	p := worker.NewPool(1, func(ctx context.Context, h *queue.JobHandle) {
		<-release
	}, zap.NewNop(), nil, nil)
	p.Start(context.Background())
	p.Submit(takeHandles(t, 1)[0])
	p.Stop()

	if p.Join(30 * time.Millisecond) {
		t.Fatal("Join should time out while a job is still running")
	}
}
