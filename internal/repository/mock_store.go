package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/notifyhub/notificationsvc/internal/domain"
)

// MockStore is a hand-written, in-memory implementation of Store used in
// unit tests. It reproduces the claim semantics of the pgx implementation
// (eligibility predicate, ordering, conditional ownership writes) under a
// single mutex so concurrency tests exercise real contention.
type MockStore struct {
	mu            sync.Mutex
	users         map[int64]*domain.User
	notifications map[int64]*domain.Notification
	jobs          map[int64]*domain.NotificationJob
	nextID        int64

	// Optional error overrides, set in tests to simulate failure paths.
	CreateErr      error
	ClaimErr       error
	FinishErr      error
	InsertRetryErr error
	UsersErr       error
}

func NewMockStore() *MockStore {
	return &MockStore{
		users:         make(map[int64]*domain.User),
		notifications: make(map[int64]*domain.Notification),
		jobs:          make(map[int64]*domain.NotificationJob),
	}
}

// AddUser seeds a recipient. Test setup helper.
func (m *MockStore) AddUser(u *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *u
	m.users[u.ID] = &clone
}

// SeedJob inserts a job row directly, bypassing ingress. Test setup helper.
func (m *MockStore) SeedJob(job *domain.NotificationJob) *domain.NotificationJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *job
	if clone.ID == 0 {
		m.nextID++
		clone.ID = m.nextID
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	m.jobs[clone.ID] = &clone
	out := clone
	return &out
}

// SeedNotification inserts a notification row directly. Test setup helper.
func (m *MockStore) SeedNotification(n *domain.Notification) *domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *n
	if clone.ID == 0 {
		m.nextID++
		clone.ID = m.nextID
	}
	m.notifications[clone.ID] = &clone
	out := clone
	return &out
}

// Jobs returns a snapshot of every job row, ordered by id.
func (m *MockStore) Jobs() []*domain.NotificationJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.NotificationJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		clone := *job
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Notifications returns a snapshot of every notification row, ordered by id.
func (m *MockStore) Notifications() []*domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		clone := *n
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MockStore) CreateNotification(_ context.Context, n *domain.Notification, jobs []*domain.NotificationJob) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.notifications {
		if existing.Context == n.Context && existing.Token == n.Token {
			return domain.ErrDuplicateToken
		}
	}

	m.nextID++
	n.ID = m.nextID
	n.CreatedAt = time.Now().UTC()
	clone := *n
	clone.RecipientIDs = append([]int64(nil), n.RecipientIDs...)
	m.notifications[n.ID] = &clone

	for _, job := range jobs {
		m.nextID++
		job.ID = m.nextID
		job.NotificationID = n.ID
		job.CreatedAt = n.CreatedAt
		jobClone := *job
		m.jobs[job.ID] = &jobClone
	}
	return nil
}

func (m *MockStore) NotificationByID(_ context.Context, id int64) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *n
	return &clone, nil
}

func (m *MockStore) UsersByIDs(_ context.Context, ids []int64) ([]*domain.User, error) {
	if m.UsersErr != nil {
		return nil, m.UsersErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]*domain.User, 0, len(ids))
	for _, id := range ids {
		u, ok := m.users[id]
		if !ok {
			return nil, domain.ErrUnknownRecipient
		}
		clone := *u
		users = append(users, &clone)
	}
	return users, nil
}

func (m *MockStore) UserByID(_ context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *MockStore) ClaimJob(_ context.Context, owner string, now time.Time) (*domain.NotificationJob, error) {
	if m.ClaimErr != nil {
		return nil, m.ClaimErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidate *domain.NotificationJob
	for _, job := range m.jobs {
		if !job.Eligible(now) {
			continue
		}
		if candidate == nil || jobBefore(job, candidate) {
			candidate = job
		}
	}
	if candidate == nil {
		return nil, domain.ErrQueueEmpty
	}

	candidate.Owner = &owner
	startAt := now
	candidate.StartAt = &startAt
	clone := *candidate
	return &clone, nil
}

// jobBefore orders by (priority ASC, created_at ASC, id ASC).
func jobBefore(a, b *domain.NotificationJob) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (m *MockStore) FinishJob(_ context.Context, jobID int64, owner string, successful bool, now time.Time) error {
	if m.FinishErr != nil {
		return m.FinishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.Owner == nil || *job.Owner != owner || job.EndAt != nil {
		return domain.ErrJobAlreadyOwned
	}
	endAt := now
	job.EndAt = &endAt
	ok2 := successful
	job.Successful = &ok2
	return nil
}

func (m *MockStore) InsertRetryJob(_ context.Context, failed *domain.NotificationJob, notBefore time.Time) (*domain.NotificationJob, error) {
	if m.InsertRetryErr != nil {
		return nil, m.InsertRetryErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	successor := &domain.NotificationJob{
		ID:               m.nextID,
		NotificationID:   failed.NotificationID,
		RecipientID:      failed.RecipientID,
		Priority:         failed.Priority,
		CreatedAt:        time.Now().UTC(),
		NotBefore:        notBefore,
		RetriesRemaining: failed.RetriesRemaining - 1,
	}
	clone := *successor
	m.jobs[successor.ID] = &clone
	out := *successor
	return &out, nil
}

func (m *MockStore) JobByID(_ context.Context, id int64) (*domain.NotificationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *job
	return &clone, nil
}
