package provider

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// ConsoleProvider writes message fields to a debug stream instead of
// contacting any network. It is the default provider for local development.
type ConsoleProvider struct {
	fromEmail string

	mu  sync.Mutex
	out io.Writer
}

func NewConsoleProvider(fromEmail string, out io.Writer) *ConsoleProvider {
	return &ConsoleProvider{fromEmail: fromEmail, out: out}
}

func (p *ConsoleProvider) Name() string { return "ConsoleEmailProvider" }

func (p *ConsoleProvider) Send(_ context.Context, recipient, subject, plainText, htmlText string) error {
	if err := validateMessage(recipient, subject, plainText, htmlText); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.out,
		"\nFrom: %s\nTo: %s\nSubject: %s\nPlain Text: %s\nHTML Text: %s\n\n",
		p.fromEmail, recipient, subject, plainText, htmlText)
	if err != nil {
		return fmt.Errorf("write to console: %w", err)
	}
	return nil
}

var _ Provider = (*ConsoleProvider)(nil)
