package channels

import (
	"context"
	"strings"

	"nurture_backend/internal/followup/domain"
	"nurture_backend/platform/apperr"
)

// SMSSender is the SMS gateway client.
type SMSSender interface {
	Send(ctx context.Context, phoneNumber, body, reference string) (string, error)
}

// SMSDispatcher sends sms steps.
type SMSDispatcher struct {
	client SMSSender
}

func NewSMSDispatcher(client SMSSender) *SMSDispatcher {
	return &SMSDispatcher{client: client}
}

func (d *SMSDispatcher) Channel() domain.StepType { return domain.StepSMS }

func (d *SMSDispatcher) Dispatch(ctx context.Context, msg Message) (Receipt, error) {
	if strings.TrimSpace(msg.Lead.Phone) == "" {
		return Receipt{}, apperr.Validation("lead has no phone number")
	}
	id, err := d.client.Send(ctx, msg.Lead.Phone, msg.Body, msg.Reference())
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{Channel: domain.StepSMS, ProviderID: id}, nil
}
