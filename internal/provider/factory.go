package provider

import (
	"fmt"
	"os"

	"github.com/notifyhub/notificationsvc/internal/config"
)

// Factory constructs one provider instance. The instance pool calls it once
// per slot so each pooled provider is independent.
type Factory func() Provider

// NewFactory selects the provider constructor named by cfg.EmailProvider.
func NewFactory(cfg *config.Config) (Factory, error) {
	switch cfg.EmailProvider {
	case config.ProviderConsole:
		return func() Provider {
			return NewConsoleProvider(cfg.FromEmail, os.Stdout)
		}, nil
	case config.ProviderSMTP:
		return func() Provider {
			return NewSMTPProvider(
				cfg.SMTPHost,
				cfg.SMTPPort,
				cfg.SMTPUsername,
				cfg.SMTPPassword,
				cfg.SMTPUseTLS,
				cfg.FromEmail,
			)
		}, nil
	}
	return nil, fmt.Errorf("unknown email provider %q", cfg.EmailProvider)
}
