// Package provider abstracts the transport that delivers one rendered
// notification. Variants: console (local development default) and smtp.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidParameter reports a message the provider refuses to build:
// empty recipient, empty subject, or no body at all. The notifier treats it
// like any other delivery failure.
var ErrInvalidParameter = errors.New("invalid message parameter")

// Provider delivers one rendered message. Instances are not required to be
// safe for concurrent use; the instance pool hands each one to a single
// worker at a time.
type Provider interface {
	Name() string
	Send(ctx context.Context, recipient, subject, plainText, htmlText string) error
}

func validateMessage(recipient, subject, plainText, htmlText string) error {
	if recipient == "" {
		return fmt.Errorf("%w: recipient is empty", ErrInvalidParameter)
	}
	if subject == "" {
		return fmt.Errorf("%w: subject is empty", ErrInvalidParameter)
	}
	if plainText == "" && htmlText == "" {
		return fmt.Errorf("%w: message has no body", ErrInvalidParameter)
	}
	return nil
}
