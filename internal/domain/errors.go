package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used throughout the application.
// The API handler translates these to HTTP status codes via a single
// mapError function.
var (
	// ErrInvalidNotification covers every ingress validation failure.
	// The per-field sentinels below wrap it so callers can match either
	// the broad class or the specific cause.
	ErrInvalidNotification = errors.New("invalid notification")

	ErrEmptyContext     = fmt.Errorf("%w: context must not be empty", ErrInvalidNotification)
	ErrInvalidPriority  = fmt.Errorf("%w: priority must be HIGH_PRIORITY, DEFAULT_PRIORITY, or LOW_PRIORITY", ErrInvalidNotification)
	ErrEmptySubject     = fmt.Errorf("%w: subject must not be empty", ErrInvalidNotification)
	ErrEmptyBody        = fmt.Errorf("%w: at least one of plainText and htmlText must be set", ErrInvalidNotification)
	ErrNoRecipients     = fmt.Errorf("%w: recipientUserIds must not be empty", ErrInvalidNotification)
	ErrUnknownRecipient = fmt.Errorf("%w: recipient user does not exist", ErrInvalidNotification)
	ErrDuplicateToken   = fmt.Errorf("%w: token already used within this context", ErrInvalidNotification)

	// ErrUnavailable is returned from ingress for any non-validation failure.
	// The enclosing transaction has been rolled back; no partial state exists.
	ErrUnavailable = errors.New("service unavailable")

	// Queue outcomes. Background loops branch on these; they never reach a client.
	ErrQueueEmpty   = errors.New("job queue empty")
	ErrQueueStopped = errors.New("job queue stopped")

	// ErrJobAlreadyOwned means another fleet instance holds (or already
	// finalized) the job row this caller tried to claim or finish.
	ErrJobAlreadyOwned = errors.New("notification job already owned")

	ErrNotFound = errors.New("not found")
)
