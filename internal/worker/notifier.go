package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/notifyhub/notificationsvc/internal/domain"
	"github.com/notifyhub/notificationsvc/internal/provider"
	"github.com/notifyhub/notificationsvc/internal/queue"
	"github.com/notifyhub/notificationsvc/internal/repository"
	"github.com/notifyhub/notificationsvc/internal/template"
)

// MetricHooks carries the metric callback functions injected by main.
// Using a struct keeps the notifier constructor signature clean.
type MetricHooks struct {
	OnDelivered      func(latency time.Duration)
	OnFailed         func()
	OnRetryScheduled func()
}

func (h *MetricHooks) fillDefaults() {
	if h.OnDelivered == nil {
		h.OnDelivered = func(time.Duration) {}
	}
	if h.OnFailed == nil {
		h.OnFailed = func() {}
	}
	if h.OnRetryScheduled == nil {
		h.OnRetryScheduled = func() {}
	}
}

// Notifier is the worker body: given a claimed job, it renders the parent
// notification for the recipient, delivers it through a pooled provider,
// and finalizes the job. A failed delivery spawns a successor job with one
// fewer retry remaining and a delayed earliest-start time.
type Notifier struct {
	store      repository.Store
	providers  *provider.Pool
	limiter    *rate.Limiter
	retryDelay time.Duration
	logger     *zap.Logger
	hooks      MetricHooks
}

func NewNotifier(
	store repository.Store,
	providers *provider.Pool,
	limiter *rate.Limiter,
	retryDelay time.Duration,
	logger *zap.Logger,
	hooks MetricHooks,
) *Notifier {
	hooks.fillDefaults()
	return &Notifier{
		store:      store,
		providers:  providers,
		limiter:    limiter,
		retryDelay: retryDelay,
		logger:     logger,
		hooks:      hooks,
	}
}

// Send processes one claimed job end to end. Errors never propagate to the
// worker loop; every outcome is absorbed into the job's terminal state, a
// successor row, and log records.
func (n *Notifier) Send(ctx context.Context, handle *queue.JobHandle) {
	job := handle.Job()
	start := time.Now()
	log := n.logger.With(
		zap.Int64("job_id", job.ID),
		zap.Int64("notification_id", job.NotificationID),
		zap.Int64("recipient_id", job.RecipientID),
	)

	err := n.deliver(ctx, job)
	if err == nil {
		if ferr := handle.Finish(ctx, true); ferr != nil {
			log.Warn("could not finalize delivered job", zap.Error(ferr))
			return
		}
		n.hooks.OnDelivered(time.Since(start))
		log.Info("notification delivered", zap.Duration("latency", time.Since(start)))
		return
	}

	log.Warn("delivery failed",
		zap.Error(err),
		zap.Int("retries_remaining", job.RetriesRemaining),
	)

	if ferr := handle.Finish(ctx, false); ferr != nil {
		if errors.Is(ferr, domain.ErrJobAlreadyOwned) {
			// Another instance holds or already finalized this row; it owns
			// the retry decision too.
			log.Warn("job no longer owned by this instance, skipping retry")
			return
		}
		// The row is still claimed and non-terminal; a successor now would
		// break the one-terminal-predecessor shape of the retry chain.
		log.Error("could not finalize failed job, skipping retry", zap.Error(ferr))
		return
	}
	n.hooks.OnFailed()
	n.scheduleRetry(ctx, job, log)
}

func (n *Notifier) deliver(ctx context.Context, job *domain.NotificationJob) error {
	notification, err := n.store.NotificationByID(ctx, job.NotificationID)
	if err != nil {
		return fmt.Errorf("load notification %d: %w", job.NotificationID, err)
	}
	recipient, err := n.store.UserByID(ctx, job.RecipientID)
	if err != nil {
		return fmt.Errorf("load recipient %d: %w", job.RecipientID, err)
	}

	values := map[string]string{
		"first_name": recipient.FirstName,
		"last_name":  recipient.LastName,
		"email":      recipient.Email,
	}

	subject, err := template.Render(notification.Subject, values)
	if err != nil {
		return fmt.Errorf("render subject: %w", err)
	}
	plainText, err := template.Render(notification.PlainText, values)
	if err != nil {
		return fmt.Errorf("render plain text: %w", err)
	}
	htmlText, err := template.Render(notification.HTMLText, values)
	if err != nil {
		return fmt.Errorf("render html text: %w", err)
	}

	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("send throttle: %w", err)
		}
	}

	prov, err := n.providers.Get(ctx)
	if err != nil {
		return fmt.Errorf("acquire provider: %w", err)
	}
	defer n.providers.Put(prov)

	if err := prov.Send(ctx, recipient.Email, subject, plainText, htmlText); err != nil {
		return fmt.Errorf("%s: %w", prov.Name(), err)
	}
	return nil
}

// scheduleRetry inserts the successor row for a failed job on a fresh
// transaction. The insert is deliberately not tied to the finalization of
// the failed row; a crash between the two loses that retry.
func (n *Notifier) scheduleRetry(ctx context.Context, job *domain.NotificationJob, log *zap.Logger) {
	if job.RetriesRemaining <= 0 {
		log.Error("delivery failed permanently, no retries remaining")
		return
	}

	notBefore := time.Now().UTC().Add(n.retryDelay)
	successor, err := n.store.InsertRetryJob(ctx, job, notBefore)
	if err != nil {
		// The notification is dropped for this recipient.
		log.Error("could not insert retry job", zap.Error(err))
		return
	}

	n.hooks.OnRetryScheduled()
	log.Info("retry scheduled",
		zap.Int64("successor_id", successor.ID),
		zap.Int("retries_remaining", successor.RetriesRemaining),
		zap.Time("not_before", notBefore),
	)
}
