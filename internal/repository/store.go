package repository

import (
	"context"
	"time"

	"github.com/notifyhub/notificationsvc/internal/domain"
)

// Store defines all persistence operations for notifications and their jobs.
// The pgx implementation is in pg_store.go; tests use the hand-written
// in-memory MockStore (mock_store.go).
type Store interface {
	// CreateNotification inserts the notification, its recipient links, and
	// one job per recipient in a single transaction. On success the
	// notification and job IDs and creation timestamps are populated.
	CreateNotification(ctx context.Context, n *domain.Notification, jobs []*domain.NotificationJob) error

	NotificationByID(ctx context.Context, id int64) (*domain.Notification, error)

	// UsersByIDs resolves recipient ids. Every requested id must exist;
	// a missing id yields domain.ErrUnknownRecipient.
	UsersByIDs(ctx context.Context, ids []int64) ([]*domain.User, error)
	UserByID(ctx context.Context, id int64) (*domain.User, error)

	// ClaimJob atomically claims the single most eligible job for owner:
	// eligible rows ordered by (priority ASC, created_at ASC, id ASC).
	// Returns domain.ErrQueueEmpty when no row is eligible and
	// domain.ErrJobAlreadyOwned when a concurrent claimant won the row
	// between select and update.
	ClaimJob(ctx context.Context, owner string, now time.Time) (*domain.NotificationJob, error)

	// FinishJob marks a claimed job terminal. It affects only rows still
	// held by owner; a row already finalized or owned elsewhere yields
	// domain.ErrJobAlreadyOwned.
	FinishJob(ctx context.Context, jobID int64, owner string, successful bool, now time.Time) error

	// InsertRetryJob inserts the successor row for a failed job: same
	// notification, recipient, and priority, one fewer retry remaining,
	// and the given earliest-start time. Claim and terminal fields start null.
	InsertRetryJob(ctx context.Context, failed *domain.NotificationJob, notBefore time.Time) (*domain.NotificationJob, error)

	JobByID(ctx context.Context, id int64) (*domain.NotificationJob, error)
}
