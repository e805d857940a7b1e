// Package notify delivers password-reset links to users. The transport is
// chosen by configuration: SMTP in production, a log-only sink for
// development.
package notify

import (
	"context"
	"fmt"

	"github.com/vibast-solutions/ms-go-credentials/config"
)

// Sink delivers a password-reset link to an email address.
type Sink interface {
	SendPasswordReset(ctx context.Context, email, resetURL string) error
}

// NewSink returns the sink selected by cfg.Transport.
func NewSink(cfg config.NotificationConfig) (Sink, error) {
	switch cfg.Transport {
	case config.NotificationTransportSMTP:
		return NewSMTPSink(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.From), nil
	case config.NotificationTransportLog, "":
		return NewLogSink(), nil
	default:
		return nil, fmt.Errorf("unsupported notification transport %q", cfg.Transport)
	}
}
