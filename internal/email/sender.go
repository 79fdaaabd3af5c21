// Package email renders and delivers transactional email for the lead
// pipeline. Message bodies are rendered up front by the notification module
// and delivered here, so a sender only needs one way to put a finished
// message on the wire.
package email

import (
	"context"

	"estatedesk_backend/platform/config"
)

type Sender interface {
	SendEmail(ctx context.Context, toEmail, subject, htmlBody string) error
}

// NoopSender swallows sends. Used when email is disabled so callers never
// have to nil-check.
type NoopSender struct{}

func (NoopSender) SendEmail(ctx context.Context, toEmail, subject, htmlBody string) error {
	return nil
}

// NewSender returns the configured sender, or a NoopSender when email
// delivery is switched off.
func NewSender(cfg config.EmailConfig) Sender {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}
	}
	return NewSMTPSender(cfg)
}
