package channels

import (
	"context"

	"nurture_backend/internal/followup/domain"
)

// CallDispatcher hands call scripts to a human agent. Nothing is sent; the
// script travels in the receipt and the recorded interaction.
type CallDispatcher struct{}

func (CallDispatcher) Channel() domain.StepType { return domain.StepCall }

func (CallDispatcher) Dispatch(_ context.Context, msg Message) (Receipt, error) {
	return Receipt{
		Channel: domain.StepCall,
		Data: map[string]any{
			"script": msg.Body,
			"phone":  msg.Lead.Phone,
			"mode":   "agent_task",
		},
	}, nil
}
