// Package domain holds the entities and rules of the follow-up engine.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TriggerType is the lead-lifecycle event that starts a sequence.
type TriggerType string

const (
	TriggerLeadCapture          TriggerType = "lead_capture"
	TriggerAppointmentScheduled TriggerType = "appointment_scheduled"
	TriggerPropertyViewed       TriggerType = "property_viewed"
	TriggerMarketUpdate         TriggerType = "market_update"
	TriggerCustom               TriggerType = "custom"
)

var validTriggers = map[TriggerType]bool{
	TriggerLeadCapture:          true,
	TriggerAppointmentScheduled: true,
	TriggerPropertyViewed:       true,
	TriggerMarketUpdate:         true,
	TriggerCustom:               true,
}

func (t TriggerType) Valid() bool { return validTriggers[t] }

// SequenceStatus controls whether a template's steps may run.
type SequenceStatus string

const (
	SequenceActive   SequenceStatus = "active"
	SequencePaused   SequenceStatus = "paused"
	SequenceArchived SequenceStatus = "archived"
)

func (s SequenceStatus) Valid() bool {
	return s == SequenceActive || s == SequencePaused || s == SequenceArchived
}

// StepType is the delivery channel of a step.
type StepType string

const (
	StepEmail  StepType = "email"
	StepSMS    StepType = "sms"
	StepCall   StepType = "call"
	StepSocial StepType = "social"
	StepAIChat StepType = "ai_chat"
)

var validStepTypes = map[StepType]bool{
	StepEmail:  true,
	StepSMS:    true,
	StepCall:   true,
	StepSocial: true,
	StepAIChat: true,
}

func (s StepType) Valid() bool { return validStepTypes[s] }

// EnrollmentStatus is the lifecycle state of a LeadFollowup.
type EnrollmentStatus string

const (
	EnrollmentActive       EnrollmentStatus = "active"
	EnrollmentPaused       EnrollmentStatus = "paused"
	EnrollmentCompleted    EnrollmentStatus = "completed"
	EnrollmentConverted    EnrollmentStatus = "converted"
	EnrollmentUnsubscribed EnrollmentStatus = "unsubscribed"
)

// InteractionStatus tracks delivery and engagement of one outreach.
type InteractionStatus string

const (
	InteractionSent      InteractionStatus = "sent"
	InteractionDelivered InteractionStatus = "delivered"
	InteractionOpened    InteractionStatus = "opened"
	InteractionClicked   InteractionStatus = "clicked"
	InteractionFailed    InteractionStatus = "failed"
	InteractionBounced   InteractionStatus = "bounced"
)

// ContentType selects the prompt used by the content generator.
type ContentType string

const (
	ContentEmail          ContentType = "email"
	ContentSMS            ContentType = "sms"
	ContentCallScript     ContentType = "call_script"
	ContentSocialPost     ContentType = "social_post"
	ContentPropertyUpdate ContentType = "property_update"
)

var validContentTypes = map[ContentType]bool{
	ContentEmail:          true,
	ContentSMS:            true,
	ContentCallScript:     true,
	ContentSocialPost:     true,
	ContentPropertyUpdate: true,
}

func (c ContentType) Valid() bool { return validContentTypes[c] }

// JobStatus is the state of a durable scheduled step.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobEnqueued   JobStatus = "enqueued"
	JobProcessing JobStatus = "processing"
	JobSucceeded  JobStatus = "succeeded"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// SequenceTemplate is a named, owner-scoped outreach plan.
type SequenceTemplate struct {
	ID                    uuid.UUID
	OwnerID               uuid.UUID
	Name                  string
	Description           *string
	TriggerType           TriggerType
	Status                SequenceStatus
	TotalSteps            int
	AverageConversionRate float64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// SequenceStep is one timed action within a template.
type SequenceStep struct {
	ID                    uuid.UUID
	SequenceID            uuid.UUID
	StepNumber            int
	StepType              StepType
	DelayDays             int
	DelayHours            int
	Subject               *string
	ContentTemplate       string
	AIPrompt              *string
	PersonalizationFields []string
	Conditions            map[string]any
	CreatedAt             time.Time
}

// LeadFollowup is the enrollment of one lead in one sequence.
type LeadFollowup struct {
	ID              uuid.UUID
	LeadID          uuid.UUID
	SequenceID      uuid.UUID
	CurrentStep     int
	Status          EnrollmentStatus
	StartDate       time.Time
	LastContactDate *time.Time
	NextContactDate *time.Time
	EngagementScore int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FollowupInteraction is the record of one executed step.
type FollowupInteraction struct {
	ID              uuid.UUID
	LeadFollowupID  uuid.UUID
	StepID          uuid.UUID
	StepNumber      int
	InteractionType string
	Content         string
	Status          InteractionStatus
	ResponseData    map[string]any
	SentAt          time.Time
	OpenedAt        *time.Time
	ClickedAt       *time.Time
	RespondedAt     *time.Time
}

// AILeadScoring is the latest model assessment of a lead.
type AILeadScoring struct {
	LeadID                uuid.UUID
	Score                 int
	ConversionProbability float64
	ScoreFactors          map[string]any
	RecommendedActions    []string
	AIInsights            string
	LastCalculated        time.Time
}

// AIContentGeneration is an append-only audit of one generation.
type AIContentGeneration struct {
	ID                  uuid.UUID
	LeadID              uuid.UUID
	ContentType         ContentType
	PromptUsed          string
	GeneratedContent    string
	PersonalizationData map[string]any
	ModelName           string
	TokenEstimate       int
	GenerationLatencyMs int64
	QualityScore        float64
	CreatedAt           time.Time
}

// ScheduledJob is a durable intent to execute a step at DueAt.
type ScheduledJob struct {
	ID           uuid.UUID
	EnrollmentID uuid.UUID
	StepID       uuid.UUID
	StepNumber   int
	DueAt        time.Time
	Status       JobStatus
	Attempts     int
	// EnqueueCount counts dispatcher claims; each claim gets its own task.
	EnqueueCount int
	LastError    *string
}

// Listing is the property a lead inquired about.
type Listing struct {
	ID      uuid.UUID
	Title   string
	Address string
	Price   *float64
}

// LeadContext is the lead data used for personalization and scoring.
type LeadContext struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	Name    string
	Email   string
	Phone   string
	Source  string
	Notes   string
	Listing *Listing
}
