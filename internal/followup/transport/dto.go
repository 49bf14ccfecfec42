package transport

import (
	"time"

	"github.com/google/uuid"
)

// Request DTOs

type CreateSequenceRequest struct {
	Name                  string   `json:"name" validate:"required,min=1,max=200"`
	Description           *string  `json:"description,omitempty" validate:"omitempty,max=2000"`
	TriggerType           string   `json:"triggerType" validate:"required,trigger_type"`
	TotalSteps            *int     `json:"totalSteps,omitempty" validate:"omitempty,min=0"`
	AverageConversionRate *float64 `json:"averageConversionRate,omitempty" validate:"omitempty,min=0,max=1"`
}

type UpdateSequenceStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active paused archived"`
}

type CreateStepRequest struct {
	StepNumber            int            `json:"stepNumber" validate:"required,min=1"`
	StepType              string         `json:"stepType" validate:"required,step_type"`
	DelayDays             int            `json:"delayDays" validate:"min=0"`
	DelayHours            int            `json:"delayHours" validate:"min=0"`
	Subject               *string        `json:"subject,omitempty" validate:"omitempty,max=300"`
	ContentTemplate       string         `json:"contentTemplate" validate:"max=10000"`
	AIPrompt              *string        `json:"aiPrompt,omitempty" validate:"omitempty,max=4000"`
	PersonalizationFields []string       `json:"personalizationFields,omitempty" validate:"omitempty,dive,min=1,max=100"`
	Conditions            map[string]any `json:"conditions,omitempty"`
}

type EnrollRequest struct {
	LeadID     uuid.UUID `json:"leadId" validate:"required"`
	SequenceID uuid.UUID `json:"sequenceId" validate:"required"`
}

type ListEnrollmentsRequest struct {
	LeadID     string `form:"leadId" validate:"omitempty,uuid"`
	SequenceID string `form:"sequenceId" validate:"omitempty,uuid"`
}

type EngagementReportRequest struct {
	Status     string     `json:"status" validate:"required,engagement_status"`
	OccurredAt *time.Time `json:"occurredAt,omitempty"`
}

type GenerateContentRequest struct {
	LeadID                uuid.UUID         `json:"leadId" validate:"required"`
	ContentType           string            `json:"contentType" validate:"required,content_type"`
	Template              string            `json:"template,omitempty" validate:"max=10000"`
	PromptOverride        *string           `json:"promptOverride,omitempty" validate:"omitempty,max=4000"`
	PersonalizationFields []string          `json:"personalizationFields,omitempty" validate:"omitempty,dive,min=1,max=100"`
	Personalization       map[string]string `json:"personalization,omitempty"`
}

type TriggerRequest struct {
	Type      string     `json:"type" validate:"required,oneof=lead_capture appointment_scheduled property_viewed market_update converted unsubscribed"`
	LeadID    uuid.UUID  `json:"leadId" validate:"required"`
	ListingID *uuid.UUID `json:"listingId,omitempty"`
	Source    string     `json:"source,omitempty" validate:"max=100"`
}

// Response DTOs

type SequenceResponse struct {
	ID                    uuid.UUID `json:"id"`
	Name                  string    `json:"name"`
	Description           *string   `json:"description,omitempty"`
	TriggerType           string    `json:"triggerType"`
	Status                string    `json:"status"`
	TotalSteps            int       `json:"totalSteps"`
	AverageConversionRate float64   `json:"averageConversionRate"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

type RemoveSequenceResponse struct {
	ID       uuid.UUID `json:"id"`
	Archived bool      `json:"archived"`
	Deleted  bool      `json:"deleted"`
}

type StepResponse struct {
	ID                    uuid.UUID      `json:"id"`
	SequenceID            uuid.UUID      `json:"sequenceId"`
	StepNumber            int            `json:"stepNumber"`
	StepType              string         `json:"stepType"`
	DelayDays             int            `json:"delayDays"`
	DelayHours            int            `json:"delayHours"`
	Subject               *string        `json:"subject,omitempty"`
	ContentTemplate       string         `json:"contentTemplate"`
	AIPrompt              *string        `json:"aiPrompt,omitempty"`
	PersonalizationFields []string       `json:"personalizationFields"`
	Conditions            map[string]any `json:"conditions"`
	CreatedAt             time.Time      `json:"createdAt"`
}

type EnrollmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	LeadID          uuid.UUID  `json:"leadId"`
	SequenceID      uuid.UUID  `json:"sequenceId"`
	CurrentStep     int        `json:"currentStep"`
	Status          string     `json:"status"`
	StartDate       time.Time  `json:"startDate"`
	LastContactDate *time.Time `json:"lastContactDate,omitempty"`
	NextContactDate *time.Time `json:"nextContactDate,omitempty"`
	EngagementScore int        `json:"engagementScore"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type InteractionResponse struct {
	ID              uuid.UUID      `json:"id"`
	EnrollmentID    uuid.UUID      `json:"enrollmentId"`
	StepID          uuid.UUID      `json:"stepId"`
	StepNumber      int            `json:"stepNumber"`
	InteractionType string         `json:"interactionType"`
	Content         string         `json:"content"`
	Status          string         `json:"status"`
	ResponseData    map[string]any `json:"responseData"`
	SentAt          time.Time      `json:"sentAt"`
	OpenedAt        *time.Time     `json:"openedAt,omitempty"`
	ClickedAt       *time.Time     `json:"clickedAt,omitempty"`
	RespondedAt     *time.Time     `json:"respondedAt,omitempty"`
}

type RetryStepResponse struct {
	JobID      uuid.UUID `json:"jobId"`
	StepNumber int       `json:"stepNumber"`
	DueAt      time.Time `json:"dueAt"`
}

type LeadScoreResponse struct {
	LeadID                uuid.UUID      `json:"leadId"`
	Score                 int            `json:"score"`
	ConversionProbability float64        `json:"conversionProbability"`
	ScoreFactors          map[string]any `json:"scoreFactors"`
	RecommendedActions    []string       `json:"recommendedActions"`
	AIInsights            string         `json:"aiInsights"`
	LastCalculated        time.Time      `json:"lastCalculated"`
}

type GeneratedContentResponse struct {
	ContentType   string  `json:"contentType"`
	Subject       string  `json:"subject,omitempty"`
	Content       string  `json:"content"`
	Model         string  `json:"model"`
	TokenEstimate int     `json:"tokenEstimate"`
	LatencyMs     int64   `json:"latencyMs"`
	QualityScore  float64 `json:"qualityScore"`
}

type AnalyticsResponse struct {
	TotalEnrollments        int     `json:"totalEnrollments"`
	ActiveEnrollments       int     `json:"activeEnrollments"`
	PausedEnrollments       int     `json:"pausedEnrollments"`
	CompletedEnrollments    int     `json:"completedEnrollments"`
	ConvertedEnrollments    int     `json:"convertedEnrollments"`
	UnsubscribedEnrollments int     `json:"unsubscribedEnrollments"`
	TotalInteractions       int     `json:"totalInteractions"`
	FailedInteractions      int     `json:"failedInteractions"`
	AverageLeadScore        float64 `json:"averageLeadScore"`
	ScoredLeads             int     `json:"scoredLeads"`
	ConversionRate          float64 `json:"conversionRate"`
}

type TriggerAcceptedResponse struct {
	Type   string    `json:"type"`
	LeadID uuid.UUID `json:"leadId"`
	Status string    `json:"status"`
}
