// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"nurture_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Lead Lifecycle Events (published by the surrounding application)
// =============================================================================

// LeadCaptured is published when a new lead enters the system.
type LeadCaptured struct {
	BaseEvent
	LeadID  uuid.UUID `json:"leadId"`
	OwnerID uuid.UUID `json:"ownerId"`
	Source  string    `json:"source,omitempty"`
}

func (e LeadCaptured) EventName() string { return "leads.lead.captured" }

// AppointmentScheduled is published when a lead books a viewing or meeting.
type AppointmentScheduled struct {
	BaseEvent
	LeadID        uuid.UUID `json:"leadId"`
	OwnerID       uuid.UUID `json:"ownerId"`
	AppointmentID uuid.UUID `json:"appointmentId"`
}

func (e AppointmentScheduled) EventName() string { return "appointments.appointment.scheduled" }

// PropertyViewed is published when a lead views a listing.
type PropertyViewed struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	OwnerID   uuid.UUID `json:"ownerId"`
	ListingID uuid.UUID `json:"listingId"`
}

func (e PropertyViewed) EventName() string { return "listings.property.viewed" }

// MarketUpdatePublished is published when an agent sends a market update to a lead.
type MarketUpdatePublished struct {
	BaseEvent
	LeadID  uuid.UUID `json:"leadId"`
	OwnerID uuid.UUID `json:"ownerId"`
}

func (e MarketUpdatePublished) EventName() string { return "market.update.published" }

// LeadConverted is published when a lead becomes a client.
type LeadConverted struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
}

func (e LeadConverted) EventName() string { return "leads.lead.converted" }

// LeadUnsubscribed is published when a lead opts out of outreach.
type LeadUnsubscribed struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
}

func (e LeadUnsubscribed) EventName() string { return "leads.lead.unsubscribed" }

// =============================================================================
// Follow-up Engine Events
// =============================================================================

// FollowupStepDispatched is published after a step was delivered and recorded.
type FollowupStepDispatched struct {
	BaseEvent
	EnrollmentID  uuid.UUID `json:"enrollmentId"`
	LeadID        uuid.UUID `json:"leadId"`
	StepID        uuid.UUID `json:"stepId"`
	StepNumber    int       `json:"stepNumber"`
	Channel       string    `json:"channel"`
	InteractionID uuid.UUID `json:"interactionId"`
}

func (e FollowupStepDispatched) EventName() string { return "followup.step.dispatched" }

// FollowupStepFailed is published when a step exhausted its attempts.
type FollowupStepFailed struct {
	BaseEvent
	EnrollmentID uuid.UUID `json:"enrollmentId"`
	LeadID       uuid.UUID `json:"leadId"`
	StepID       uuid.UUID `json:"stepId"`
	StepNumber   int       `json:"stepNumber"`
	Reason       string    `json:"reason"`
}

func (e FollowupStepFailed) EventName() string { return "followup.step.failed" }

// EnrollmentCompleted is published when an enrollment ran out of steps.
type EnrollmentCompleted struct {
	BaseEvent
	EnrollmentID uuid.UUID `json:"enrollmentId"`
	LeadID       uuid.UUID `json:"leadId"`
	SequenceID   uuid.UUID `json:"sequenceId"`
}

func (e EnrollmentCompleted) EventName() string { return "followup.enrollment.completed" }
