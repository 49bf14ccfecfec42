package channels

import (
	"context"
	"strings"

	"nurture_backend/internal/email"
	"nurture_backend/internal/followup/domain"
	"nurture_backend/platform/apperr"
	"nurture_backend/platform/sanitize"
)

const defaultSignOff = "Talk soon,"

// EmailDispatcher sends email steps.
type EmailDispatcher struct {
	sender email.Sender
}

func NewEmailDispatcher(sender email.Sender) *EmailDispatcher {
	return &EmailDispatcher{sender: sender}
}

func (d *EmailDispatcher) Channel() domain.StepType { return domain.StepEmail }

func (d *EmailDispatcher) Dispatch(ctx context.Context, msg Message) (Receipt, error) {
	to := strings.TrimSpace(msg.Lead.Email)
	if to == "" {
		return Receipt{}, apperr.Validation("lead has no email address")
	}
	subject := strings.TrimSpace(msg.Subject)
	if subject == "" {
		subject = "Following up"
	}

	html, err := email.RenderFollowup(subject, msg.Lead.Name, msg.Body, defaultSignOff)
	if err != nil {
		return Receipt{}, err
	}

	id, err := d.sender.Send(ctx, email.Message{
		ToEmail:   to,
		ToName:    msg.Lead.Name,
		Subject:   subject,
		HTML:      html,
		Text:      sanitize.StripHTML(msg.Body),
		Reference: msg.Reference(),
	})
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{Channel: domain.StepEmail, ProviderID: id, Data: map[string]any{"subject": subject, "to": to}}, nil
}
