package scheduling

import (
	"context"

	"nurture_backend/internal/events"
	"nurture_backend/internal/followup/domain"

	"github.com/google/uuid"
)

// RegisterHandlers subscribes the service to lead lifecycle events.
func (s *Service) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadCaptured{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.LeadCaptured)
		if !ok {
			return nil
		}
		return s.onTrigger(ctx, e.OwnerID, domain.TriggerLeadCapture, e.LeadID)
	}))

	bus.Subscribe(events.AppointmentScheduled{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.AppointmentScheduled)
		if !ok {
			return nil
		}
		return s.onTrigger(ctx, e.OwnerID, domain.TriggerAppointmentScheduled, e.LeadID)
	}))

	bus.Subscribe(events.PropertyViewed{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.PropertyViewed)
		if !ok {
			return nil
		}
		return s.onTrigger(ctx, e.OwnerID, domain.TriggerPropertyViewed, e.LeadID)
	}))

	bus.Subscribe(events.MarketUpdatePublished{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.MarketUpdatePublished)
		if !ok {
			return nil
		}
		return s.onTrigger(ctx, e.OwnerID, domain.TriggerMarketUpdate, e.LeadID)
	}))

	bus.Subscribe(events.LeadConverted{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.LeadConverted)
		if !ok {
			return nil
		}
		return s.EndForLead(ctx, e.LeadID, domain.EnrollmentConverted)
	}))

	bus.Subscribe(events.LeadUnsubscribed{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.LeadUnsubscribed)
		if !ok {
			return nil
		}
		return s.EndForLead(ctx, e.LeadID, domain.EnrollmentUnsubscribed)
	}))
}

func (s *Service) onTrigger(ctx context.Context, ownerID uuid.UUID, trigger domain.TriggerType, leadID uuid.UUID) error {
	enrolled, err := s.EnrollForTrigger(ctx, ownerID, trigger, leadID)
	if len(enrolled) > 0 {
		s.log.Info("lead enrolled by trigger", "leadId", leadID, "trigger", trigger, "enrollments", len(enrolled))
	}
	return err
}
