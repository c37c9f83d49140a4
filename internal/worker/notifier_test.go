package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notificationsvc/internal/domain"
	"github.com/notifyhub/notificationsvc/internal/provider"
	"github.com/notifyhub/notificationsvc/internal/queue"
	"github.com/notifyhub/notificationsvc/internal/repository"
	"github.com/notifyhub/notificationsvc/internal/worker"
)

type sentMessage struct {
	recipient string
	subject   string
	plainText string
	htmlText  string
}

// stubProvider records sends and fails on demand.
type stubProvider struct {
	mu   sync.Mutex
	err  error
	sent []sentMessage
}

func (s *stubProvider) Name() string { return "StubProvider" }

func (s *stubProvider) Send(_ context.Context, recipient, subject, plainText, htmlText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{recipient, subject, plainText, htmlText})
	return nil
}

func (s *stubProvider) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

const retryDelay = 5 * time.Minute

type fixture struct {
	store    *repository.MockStore
	queue    *queue.DatabaseJobQueue
	stub     *stubProvider
	notifier *worker.Notifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMockStore()
	store.AddUser(&domain.User{
		ID:        1,
		Email:     "ada@example.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})

	stub := &stubProvider{}
	providers := provider.NewPool(1, func() provider.Provider { return stub })
	notifier := worker.NewNotifier(store, providers, nil, retryDelay, zap.NewNop(), worker.MetricHooks{})

	q := queue.NewDatabaseJobQueue(store, "test-owner", 10*time.Millisecond, zap.NewNop(), nil)
	q.Start()
	t.Cleanup(q.Stop)

	return &fixture{store: store, queue: q, stub: stub, notifier: notifier}
}

func (f *fixture) seed(t *testing.T, retriesRemaining int) *domain.NotificationJob {
	t.Helper()
	n := f.store.SeedNotification(&domain.Notification{
		Token:     "tok",
		Context:   "signup",
		Priority:  domain.PriorityDefault,
		Subject:   "Welcome ${first_name}",
		PlainText: "Hello ${first_name} ${last_name}",
		HTMLText:  "<p>Hello ${first_name}</p>",
	})
	return f.store.SeedJob(&domain.NotificationJob{
		NotificationID:   n.ID,
		RecipientID:      1,
		Priority:         domain.PriorityDefault,
		NotBefore:        time.Now().UTC().Add(-time.Second),
		RetriesRemaining: retriesRemaining,
	})
}

func (f *fixture) take(t *testing.T) *queue.JobHandle {
	t.Helper()
	handle, err := f.queue.Take(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return handle
}

func TestSend_DeliversRenderedMessage(t *testing.T) {
	f := newFixture(t)
	job := f.seed(t, 3)

	f.notifier.Send(context.Background(), f.take(t))

	msgs := f.stub.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 send, got %d", len(msgs))
	}
	msg := msgs[0]
	if msg.recipient != "ada@example.com" {
		t.Fatalf("recipient = %q", msg.recipient)
	}
	if msg.subject != "Welcome Ada" {
		t.Fatalf("subject = %q", msg.subject)
	}
	if msg.plainText != "Hello Ada Lovelace" {
		t.Fatalf("plainText = %q", msg.plainText)
	}
	if msg.htmlText != "<p>Hello Ada</p>" {
		t.Fatalf("htmlText = %q", msg.htmlText)
	}

	row, err := f.store.JobByID(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !row.Terminal() || row.Successful == nil || !*row.Successful {
		t.Fatal("delivered job must be terminal and successful")
	}
	if got := len(f.store.Jobs()); got != 1 {
		t.Fatalf("successful delivery must not spawn a successor, found %d jobs", got)
	}
}

func TestSend_FailureSchedulesRetry(t *testing.T) {
	f := newFixture(t)
	f.stub.err = errors.New("mailbox unavailable")
	job := f.seed(t, 3)

	before := time.Now().UTC()
	f.notifier.Send(context.Background(), f.take(t))

	row, err := f.store.JobByID(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !row.Terminal() || row.Successful == nil || *row.Successful {
		t.Fatal("failed job must be terminal and unsuccessful")
	}

	jobs := f.store.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected a successor job, found %d jobs", len(jobs))
	}
	successor := jobs[1]
	if successor.NotificationID != job.NotificationID || successor.RecipientID != job.RecipientID {
		t.Fatal("successor must target the same notification and recipient")
	}
	if successor.RetriesRemaining != job.RetriesRemaining-1 {
		t.Fatalf("successor retries_remaining = %d, want %d",
			successor.RetriesRemaining, job.RetriesRemaining-1)
	}
	if successor.NotBefore.Before(before.Add(retryDelay)) {
		t.Fatalf("successor not_before = %v, want at least %v after failure",
			successor.NotBefore, retryDelay)
	}
	if successor.Terminal() || successor.Claimed() {
		t.Fatal("successor must start unclaimed")
	}
}

func TestSend_RetriesExhausted(t *testing.T) {
	f := newFixture(t)
	f.stub.err = errors.New("mailbox unavailable")
	f.seed(t, 0)

	f.notifier.Send(context.Background(), f.take(t))

	if got := len(f.store.Jobs()); got != 1 {
		t.Fatalf("exhausted job must not spawn a successor, found %d jobs", got)
	}
}

// A job finalized by another instance gets no retry from this one: the
// conditional finalize reports the lost ownership and the retry decision
// stays with whoever holds the row.
func TestSend_SkipsRetryWhenOwnershipLost(t *testing.T) {
	f := newFixture(t)
	f.stub.err = errors.New("mailbox unavailable")
	f.seed(t, 3)
	handle := f.take(t)

	f.store.FinishErr = domain.ErrJobAlreadyOwned
	f.notifier.Send(context.Background(), handle)

	if got := len(f.store.Jobs()); got != 1 {
		t.Fatalf("lost ownership must not spawn a successor, found %d jobs", got)
	}
}

// A failed finalize leaves the row claimed and non-terminal, so no
// successor may be inserted: every successor needs a terminal predecessor.
func TestSend_SkipsRetryWhenFinalizeFails(t *testing.T) {
	f := newFixture(t)
	f.stub.err = errors.New("mailbox unavailable")
	f.seed(t, 3)
	handle := f.take(t)

	f.store.FinishErr = errors.New("connection reset")
	f.notifier.Send(context.Background(), handle)

	if got := len(f.store.Jobs()); got != 1 {
		t.Fatalf("unfinalized job must not spawn a successor, found %d jobs", got)
	}
}

// A notification whose template names a placeholder with no value fails
// delivery like any provider error and burns one retry.
func TestSend_TemplateFailureCountsAsDeliveryFailure(t *testing.T) {
	f := newFixture(t)
	n := f.store.SeedNotification(&domain.Notification{
		Token:     "tok",
		Context:   "signup",
		Priority:  domain.PriorityDefault,
		Subject:   "Hi ${nickname}",
		PlainText: "body",
	})
	job := f.store.SeedJob(&domain.NotificationJob{
		NotificationID:   n.ID,
		RecipientID:      1,
		Priority:         domain.PriorityDefault,
		NotBefore:        time.Now().UTC().Add(-time.Second),
		RetriesRemaining: 1,
	})

	f.notifier.Send(context.Background(), f.take(t))

	if got := len(f.stub.messages()); got != 0 {
		t.Fatalf("nothing should be sent, got %d messages", got)
	}
	row, err := f.store.JobByID(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !row.Terminal() || *row.Successful {
		t.Fatal("job must be finalized unsuccessful")
	}
	if got := len(f.store.Jobs()); got != 2 {
		t.Fatalf("expected a successor job, found %d jobs", got)
	}
}
