package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/notificationsvc/internal/domain"
	"github.com/notifyhub/notificationsvc/internal/repository"
)

// IngressService accepts notification submissions: it validates the request,
// resolves recipients, and durably enqueues one delivery job per recipient
// in the same transaction as the notification itself.
type IngressService struct {
	store       repository.Store
	maxAttempts int
	logger      *zap.Logger

	// now is swapped out by tests.
	now func() time.Time

	onAccepted func()
	onRejected func()
}

func NewIngressService(store repository.Store, maxAttempts int, logger *zap.Logger, onAccepted, onRejected func()) *IngressService {
	if onAccepted == nil {
		onAccepted = func() {}
	}
	if onRejected == nil {
		onRejected = func() {}
	}
	return &IngressService{
		store:       store,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
		onAccepted:  onAccepted,
		onRejected:  onRejected,
	}
}

// Notify validates and durably accepts one notification for the given caller
// context. On success the returned notification carries its assigned id and
// token; the delivery jobs are already committed and visible to the fleet.
//
// Validation failures wrap domain.ErrInvalidNotification. Any other failure
// is reported as domain.ErrUnavailable; the transaction has been rolled back
// and no partial state remains.
func (s *IngressService) Notify(ctx context.Context, callCtx string, req *domain.NotifyRequest) (*domain.Notification, error) {
	n, jobs, err := s.prepare(ctx, callCtx, req)
	if err != nil {
		s.onRejected()
		return nil, err
	}

	if err := s.store.CreateNotification(ctx, n, jobs); err != nil {
		if errors.Is(err, domain.ErrInvalidNotification) {
			// Unique (context, token) violation.
			s.onRejected()
			return nil, err
		}
		s.logger.Error("persisting notification",
			zap.String("context", callCtx),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}

	s.onAccepted()
	s.logger.Info("notification accepted",
		zap.Int64("notification_id", n.ID),
		zap.String("context", callCtx),
		zap.String("priority", n.Priority.Wire()),
		zap.Int("recipients", len(n.RecipientIDs)),
	)
	return n, nil
}

func (s *IngressService) prepare(ctx context.Context, callCtx string, req *domain.NotifyRequest) (*domain.Notification, []*domain.NotificationJob, error) {
	if strings.TrimSpace(callCtx) == "" {
		return nil, nil, domain.ErrEmptyContext
	}
	priority, err := domain.ParsePriority(req.Priority)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(req.Subject) == "" {
		return nil, nil, domain.ErrEmptySubject
	}
	if req.PlainText == "" && req.HTMLText == "" {
		return nil, nil, domain.ErrEmptyBody
	}
	if len(req.RecipientUserIDs) == 0 {
		return nil, nil, domain.ErrNoRecipients
	}

	// Every recipient must exist before anything is written.
	if _, err := s.store.UsersByIDs(ctx, req.RecipientUserIDs); err != nil {
		if errors.Is(err, domain.ErrInvalidNotification) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}

	token := req.Token
	if token == "" {
		token = newToken()
	}

	now := s.now().UTC()
	notBefore := now
	if req.NotBefore > 0 {
		notBefore = time.Unix(req.NotBefore, 0).UTC()
	}

	n := &domain.Notification{
		Token:        token,
		Context:      callCtx,
		Priority:     priority,
		Subject:      req.Subject,
		PlainText:    req.PlainText,
		HTMLText:     req.HTMLText,
		RecipientIDs: req.RecipientUserIDs,
	}

	jobs := make([]*domain.NotificationJob, 0, len(req.RecipientUserIDs))
	for _, recipientID := range req.RecipientUserIDs {
		jobs = append(jobs, &domain.NotificationJob{
			RecipientID:      recipientID,
			Priority:         priority,
			NotBefore:        notBefore,
			RetriesRemaining: s.maxAttempts,
		})
	}
	return n, jobs, nil
}

// newToken returns a fresh 32-character hex token.
func newToken() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
