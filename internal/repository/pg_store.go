package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/notificationsvc/internal/domain"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore returns a Store backed by PostgreSQL.
func NewPgStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) CreateNotification(ctx context.Context, n *domain.Notification, jobs []*domain.NotificationJob) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	err = tx.QueryRow(ctx, `
		INSERT INTO notification (token, context, priority, subject, plain_text, html_text)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at`,
		n.Token, n.Context, n.Priority, n.Subject, n.PlainText, n.HTMLText,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateToken
		}
		return fmt.Errorf("insert notification: %w", err)
	}

	for _, userID := range n.RecipientIDs {
		_, err = tx.Exec(ctx, `
			INSERT INTO notification_user (notification_id, user_id) VALUES ($1,$2)`,
			n.ID, userID,
		)
		if err != nil {
			return fmt.Errorf("insert notification recipient: %w", err)
		}
	}

	for _, job := range jobs {
		job.NotificationID = n.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO notification_job
				(notification_id, recipient_id, priority, not_before, retries_remaining)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id, created_at`,
			job.NotificationID, job.RecipientID, job.Priority, job.NotBefore, job.RetriesRemaining,
		).Scan(&job.ID, &job.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert notification job: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit notification: %w", err)
	}
	return nil
}

func (s *pgStore) NotificationByID(ctx context.Context, id int64) (*domain.Notification, error) {
	var n domain.Notification
	err := s.pool.QueryRow(ctx, `
		SELECT id, token, context, priority, subject, plain_text, html_text, created_at
		FROM notification WHERE id = $1`, id,
	).Scan(&n.ID, &n.Token, &n.Context, &n.Priority, &n.Subject, &n.PlainText, &n.HTMLText, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT user_id FROM notification_user WHERE notification_id = $1 ORDER BY user_id`, id)
	if err != nil {
		return nil, fmt.Errorf("get notification recipients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		n.RecipientIDs = append(n.RecipientIDs, userID)
	}
	return &n, rows.Err()
}

func (s *pgStore) UsersByIDs(ctx context.Context, ids []int64) ([]*domain.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, first_name, last_name FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*domain.User, len(ids))
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName); err != nil {
			return nil, err
		}
		byID[u.ID] = &u
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Preserve request order and catch missing ids in one pass.
	users := make([]*domain.User, 0, len(ids))
	for _, id := range ids {
		u, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("user %d: %w", id, domain.ErrUnknownRecipient)
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *pgStore) UserByID(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, first_name, last_name FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *pgStore) ClaimJob(ctx context.Context, owner string, now time.Time) (*domain.NotificationJob, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// SKIP LOCKED keeps concurrent claimants from serialising on the same
	// head-of-queue row; each claimant locks a distinct eligible row.
	var job domain.NotificationJob
	err = tx.QueryRow(ctx, `
		SELECT id, notification_id, recipient_id, priority, created_at, not_before, retries_remaining
		FROM notification_job
		WHERE owner IS NULL AND start_at IS NULL AND end_at IS NULL AND not_before <= $1
		ORDER BY priority ASC, created_at ASC, id ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1`, now,
	).Scan(&job.ID, &job.NotificationID, &job.RecipientID, &job.Priority,
		&job.CreatedAt, &job.NotBefore, &job.RetriesRemaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("select eligible job: %w", err)
	}

	// The owner IS NULL guard makes the write conditional even if the row
	// lock was lost to a competing transaction on a non-SKIP-LOCKED path.
	tag, err := tx.Exec(ctx, `
		UPDATE notification_job SET owner = $1, start_at = $2
		WHERE id = $3 AND owner IS NULL`, owner, now, job.ID)
	if err != nil {
		return nil, fmt.Errorf("claim job %d: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrJobAlreadyOwned
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	job.Owner = &owner
	startAt := now
	job.StartAt = &startAt
	return &job, nil
}

func (s *pgStore) FinishJob(ctx context.Context, jobID int64, owner string, successful bool, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notification_job SET end_at = $1, successful = $2
		WHERE id = $3 AND owner = $4 AND end_at IS NULL`,
		now, successful, jobID, owner)
	if err != nil {
		return fmt.Errorf("finish job %d: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobAlreadyOwned
	}
	return nil
}

func (s *pgStore) InsertRetryJob(ctx context.Context, failed *domain.NotificationJob, notBefore time.Time) (*domain.NotificationJob, error) {
	successor := &domain.NotificationJob{
		NotificationID:   failed.NotificationID,
		RecipientID:      failed.RecipientID,
		Priority:         failed.Priority,
		NotBefore:        notBefore,
		RetriesRemaining: failed.RetriesRemaining - 1,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO notification_job
			(notification_id, recipient_id, priority, not_before, retries_remaining)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at`,
		successor.NotificationID, successor.RecipientID, successor.Priority,
		successor.NotBefore, successor.RetriesRemaining,
	).Scan(&successor.ID, &successor.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert retry job: %w", err)
	}
	return successor, nil
}

func (s *pgStore) JobByID(ctx context.Context, id int64) (*domain.NotificationJob, error) {
	var job domain.NotificationJob
	err := s.pool.QueryRow(ctx, `
		SELECT id, notification_id, recipient_id, priority, created_at, not_before,
		       retries_remaining, owner, start_at, end_at, successful
		FROM notification_job WHERE id = $1`, id,
	).Scan(&job.ID, &job.NotificationID, &job.RecipientID, &job.Priority,
		&job.CreatedAt, &job.NotBefore, &job.RetriesRemaining,
		&job.Owner, &job.StartAt, &job.EndAt, &job.Successful)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
