package queue

import (
	"context"
	"sync"
	"time"

	"github.com/notifyhub/notificationsvc/internal/domain"
	"github.com/notifyhub/notificationsvc/internal/repository"
)

// JobHandle bundles a claimed job row with its finalization obligation.
// The holder must call Finish exactly once on every exit path; the second
// and subsequent calls return domain.ErrJobAlreadyOwned without touching
// the row. A job whose handle is never finished stays claimed indefinitely;
// orphan recovery is an operational concern, not handled here.
type JobHandle struct {
	store repository.Store
	job   *domain.NotificationJob
	owner string

	mu       sync.Mutex
	finished bool
}

func newJobHandle(store repository.Store, job *domain.NotificationJob, owner string) *JobHandle {
	return &JobHandle{store: store, job: job, owner: owner}
}

// Job returns the claimed row. Read-only for the holder; state transitions
// go through Finish.
func (h *JobHandle) Job() *domain.NotificationJob {
	return h.job
}

// Finish marks the job terminal with the given outcome.
func (h *JobHandle) Finish(ctx context.Context, successful bool) error {
	h.mu.Lock()
	if h.finished {
		h.mu.Unlock()
		return domain.ErrJobAlreadyOwned
	}
	h.finished = true
	h.mu.Unlock()

	return h.store.FinishJob(ctx, h.job.ID, h.owner, successful, time.Now().UTC())
}
