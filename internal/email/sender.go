// Package email delivers follow-up emails through Brevo or SMTP.
package email

import (
	"context"

	"nurture_backend/platform/config"
)

// Message is a single outbound email.
type Message struct {
	ToEmail string
	ToName  string
	Subject string
	HTML    string
	Text    string
	// Reference is echoed to the provider for correlating delivery reports.
	Reference string
}

// Sender delivers a message and returns the provider message id when available.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// NoopSender accepts every message without delivering it.
type NoopSender struct{}

func (NoopSender) Send(context.Context, Message) (string, error) {
	return "", nil
}

// NewSender picks the configured transport. SMTP wins over Brevo when both are set.
func NewSender(cfg config.EmailConfig, smtpCfg config.SMTPConfig) Sender {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}
	}
	if smtpCfg.IsSMTPEnabled() {
		return NewSMTPSender(
			smtpCfg.GetSMTPHost(),
			smtpCfg.GetSMTPPort(),
			smtpCfg.GetSMTPUsername(),
			smtpCfg.GetSMTPPassword(),
			cfg.GetEmailFromAddress(),
			cfg.GetEmailFromName(),
		)
	}
	return NewBrevoSender(cfg.GetBrevoAPIKey(), cfg.GetEmailFromAddress(), cfg.GetEmailFromName())
}
