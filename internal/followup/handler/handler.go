package handler

import (
	"context"
	"net/http"
	"time"

	"nurture_backend/internal/events"
	"nurture_backend/internal/followup/analytics"
	"nurture_backend/internal/followup/content"
	"nurture_backend/internal/followup/domain"
	"nurture_backend/internal/followup/scheduling"
	"nurture_backend/internal/followup/scoring"
	"nurture_backend/internal/followup/sequences"
	"nurture_backend/internal/followup/transport"
	"nurture_backend/platform/apperr"
	"nurture_backend/platform/httpkit"
	"nurture_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Seeding defaults is restricted to account administrators.
const roleAdmin = "admin"

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgLeadNotFound     = "lead not found"
)

// LeadReader resolves leads so requests can be checked against their owner.
type LeadReader interface {
	GetLeadContext(ctx context.Context, leadID uuid.UUID) (domain.LeadContext, error)
}

// ContentGenerator writes content on demand.
type ContentGenerator interface {
	Generate(ctx context.Context, req content.Request) (content.Result, error)
}

// Handler handles HTTP requests for the follow-up engine
type Handler struct {
	sequences *sequences.Service
	enroll    *scheduling.Service
	scores    *scoring.Service
	writer    ContentGenerator
	stats     *analytics.Service
	leads     LeadReader
	eventBus  events.Bus
	defaults  []sequences.Definition
	val       *validator.Validator
}

// Deps groups the handler's collaborators.
type Deps struct {
	Sequences *sequences.Service
	Enroll    *scheduling.Service
	Scores    *scoring.Service
	Writer    ContentGenerator
	Stats     *analytics.Service
	Leads     LeadReader
	EventBus  events.Bus
	Defaults  []sequences.Definition
}

// New creates a new follow-up handler
func New(deps Deps, val *validator.Validator) *Handler {
	return &Handler{
		sequences: deps.Sequences,
		enroll:    deps.Enroll,
		scores:    deps.Scores,
		writer:    deps.Writer,
		stats:     deps.Stats,
		leads:     deps.Leads,
		eventBus:  deps.EventBus,
		defaults:  deps.Defaults,
		val:       val,
	}
}

// RegisterRoutes registers the follow-up routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/sequences", h.ListSequences)
	rg.POST("/sequences", h.CreateSequence)
	rg.POST("/sequences/seed", httpkit.RequireRole(roleAdmin), h.SeedSequences)
	rg.GET("/sequences/:id", h.GetSequence)
	rg.PATCH("/sequences/:id/status", h.UpdateSequenceStatus)
	rg.DELETE("/sequences/:id", h.RemoveSequence)
	rg.GET("/sequences/:id/steps", h.ListSteps)
	rg.POST("/sequences/:id/steps", h.CreateStep)

	rg.GET("/enrollments", h.ListEnrollments)
	rg.POST("/enrollments", h.Enroll)
	rg.GET("/enrollments/:id", h.GetEnrollment)
	rg.POST("/enrollments/:id/pause", h.transition(h.enroll.Pause))
	rg.POST("/enrollments/:id/resume", h.transition(h.enroll.Resume))
	rg.POST("/enrollments/:id/unsubscribe", h.transition(h.enroll.Unsubscribe))
	rg.POST("/enrollments/:id/convert", h.transition(h.enroll.MarkConverted))
	rg.POST("/enrollments/:id/retry", h.RetryStep)
	rg.GET("/enrollments/:id/interactions", h.ListInteractions)

	rg.POST("/interactions/:id/engagement", h.ReportEngagement)

	rg.GET("/leads/:id/score", h.LatestScore)
	rg.POST("/leads/:id/score", h.ScoreLead)

	rg.POST("/content/generate", h.GenerateContent)
	rg.GET("/analytics", h.Analytics)
	rg.POST("/triggers", h.Trigger)
}

func bindJSON[T any](c *gin.Context, val *validator.Validator) (T, bool) {
	var req T
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return req, false
	}
	if err := val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return req, false
	}
	return req, true
}

func paramID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.UUID{}, false
	}
	return id, true
}

func ownerID(c *gin.Context) (uuid.UUID, bool) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return uuid.UUID{}, false
	}
	return identity.OwnerID(), true
}

// ownedLead loads a lead and hides leads of other owners.
func (h *Handler) ownedLead(ctx context.Context, owner, leadID uuid.UUID) (domain.LeadContext, error) {
	lead, err := h.leads.GetLeadContext(ctx, leadID)
	if err != nil {
		return domain.LeadContext{}, err
	}
	if lead.OwnerID != owner {
		return domain.LeadContext{}, apperr.NotFound(msgLeadNotFound)
	}
	return lead, nil
}

// Sequences

// ListSequences handles GET /api/v1/followup/sequences
func (h *Handler) ListSequences(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	result, err := h.sequences.ListTemplates(c.Request.Context(), owner)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// CreateSequence handles POST /api/v1/followup/sequences
func (h *Handler) CreateSequence(c *gin.Context) {
	req, ok := bindJSON[transport.CreateSequenceRequest](c, h.val)
	if !ok {
		return
	}
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	result, err := h.sequences.CreateTemplate(c.Request.Context(), owner, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// SeedSequences handles POST /api/v1/followup/sequences/seed
func (h *Handler) SeedSequences(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	result, err := h.sequences.SeedDefaults(c.Request.Context(), owner, h.defaults)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// GetSequence handles GET /api/v1/followup/sequences/:id
func (h *Handler) GetSequence(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	seq, err := h.sequences.GetTemplate(c.Request.Context(), owner, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToSequenceResponse(seq))
}

// UpdateSequenceStatus handles PATCH /api/v1/followup/sequences/:id/status
func (h *Handler) UpdateSequenceStatus(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	req, ok := bindJSON[transport.UpdateSequenceStatusRequest](c, h.val)
	if !ok {
		return
	}
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	result, err := h.sequences.SetStatus(c.Request.Context(), owner, id, domain.SequenceStatus(req.Status))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// RemoveSequence handles DELETE /api/v1/followup/sequences/:id
func (h *Handler) RemoveSequence(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	result, err := h.sequences.Remove(c.Request.Context(), owner, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ListSteps handles GET /api/v1/followup/sequences/:id/steps
func (h *Handler) ListSteps(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	result, err := h.sequences.ListSteps(c.Request.Context(), owner, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// CreateStep handles POST /api/v1/followup/sequences/:id/steps
func (h *Handler) CreateStep(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	req, ok := bindJSON[transport.CreateStepRequest](c, h.val)
	if !ok {
		return
	}
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	result, err := h.sequences.CreateStep(c.Request.Context(), owner, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// Enrollments

// ListEnrollments handles GET /api/v1/followup/enrollments?leadId=|sequenceId=
func (h *Handler) ListEnrollments(c *gin.Context) {
	var req transport.ListEnrollmentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	if (req.LeadID == "") == (req.SequenceID == "") {
		httpkit.Error(c, http.StatusBadRequest, "exactly one of leadId or sequenceId is required", nil)
		return
	}
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	var (
		items []domain.LeadFollowup
		err   error
	)
	if req.LeadID != "" {
		items, err = h.enroll.ListForLead(c.Request.Context(), owner, uuid.MustParse(req.LeadID))
	} else {
		items, err = h.enroll.ListForSequence(c.Request.Context(), owner, uuid.MustParse(req.SequenceID))
	}
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToEnrollmentResponses(items))
}

// Enroll handles POST /api/v1/followup/enrollments
func (h *Handler) Enroll(c *gin.Context) {
	req, ok := bindJSON[transport.EnrollRequest](c, h.val)
	if !ok {
		return
	}
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.ownedLead(ctx, owner, req.LeadID); httpkit.HandleError(c, err) {
		return
	}
	e, err := h.enroll.Enroll(ctx, owner, req.LeadID, req.SequenceID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToEnrollmentResponse(e))
}

// GetEnrollment handles GET /api/v1/followup/enrollments/:id
func (h *Handler) GetEnrollment(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	e, err := h.enroll.Owned(c.Request.Context(), owner, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToEnrollmentResponse(e))
}

// transition builds the handler for pause, resume, unsubscribe and convert.
func (h *Handler) transition(apply func(context.Context, uuid.UUID) (domain.LeadFollowup, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		owner, ok := ownerID(c)
		if !ok {
			return
		}

		ctx := c.Request.Context()
		if _, err := h.enroll.Owned(ctx, owner, id); httpkit.HandleError(c, err) {
			return
		}
		e, err := apply(ctx, id)
		if httpkit.HandleError(c, err) {
			return
		}
		httpkit.OK(c, transport.ToEnrollmentResponse(e))
	}
}

// RetryStep handles POST /api/v1/followup/enrollments/:id/retry
func (h *Handler) RetryStep(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.enroll.Owned(ctx, owner, id); httpkit.HandleError(c, err) {
		return
	}
	job, err := h.enroll.RetryStep(ctx, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusAccepted, transport.RetryStepResponse{
		JobID:      job.ID,
		StepNumber: job.StepNumber,
		DueAt:      job.DueAt,
	})
}

// ListInteractions handles GET /api/v1/followup/enrollments/:id/interactions
func (h *Handler) ListInteractions(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	items, err := h.enroll.ListInteractions(c.Request.Context(), owner, id)
	if httpkit.HandleError(c, err) {
		return
	}
	out := make([]transport.InteractionResponse, 0, len(items))
	for _, in := range items {
		out = append(out, transport.ToInteractionResponse(in))
	}
	httpkit.OK(c, out)
}

// ReportEngagement handles POST /api/v1/followup/interactions/:id/engagement
func (h *Handler) ReportEngagement(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	req, ok := bindJSON[transport.EngagementReportRequest](c, h.val)
	if !ok {
		return
	}
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	var at time.Time
	if req.OccurredAt != nil {
		at = *req.OccurredAt
	}
	in, err := h.enroll.RecordEngagement(c.Request.Context(), owner, id, domain.InteractionStatus(req.Status), at)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToInteractionResponse(in))
}

// Scoring and content

// ScoreLead handles POST /api/v1/followup/leads/:id/score
func (h *Handler) ScoreLead(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.ownedLead(ctx, owner, id); httpkit.HandleError(c, err) {
		return
	}
	score, err := h.scores.Score(ctx, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadScoreResponse(score))
}

// LatestScore handles GET /api/v1/followup/leads/:id/score
func (h *Handler) LatestScore(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.ownedLead(ctx, owner, id); httpkit.HandleError(c, err) {
		return
	}
	score, err := h.scores.Latest(ctx, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadScoreResponse(score))
}

// GenerateContent handles POST /api/v1/followup/content/generate
func (h *Handler) GenerateContent(c *gin.Context) {
	req, ok := bindJSON[transport.GenerateContentRequest](c, h.val)
	if !ok {
		return
	}
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	lead, err := h.ownedLead(ctx, owner, req.LeadID)
	if httpkit.HandleError(c, err) {
		return
	}
	result, err := h.writer.Generate(ctx, content.Request{
		LeadID:          lead.ID,
		ContentType:     domain.ContentType(req.ContentType),
		Lead:            &lead,
		Template:        req.Template,
		PromptOverride:  req.PromptOverride,
		Fields:          req.PersonalizationFields,
		Personalization: req.Personalization,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.GeneratedContentResponse{
		ContentType:   string(result.ContentType),
		Subject:       result.Subject,
		Content:       result.Body,
		Model:         result.Model,
		TokenEstimate: result.TokenEstimate,
		LatencyMs:     result.LatencyMs,
		QualityScore:  result.QualityScore,
	})
}

// Analytics handles GET /api/v1/followup/analytics
func (h *Handler) Analytics(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	s, err := h.stats.Summary(c.Request.Context(), owner)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.AnalyticsResponse{
		TotalEnrollments:        s.TotalEnrollments,
		ActiveEnrollments:       s.ActiveEnrollments,
		PausedEnrollments:       s.PausedEnrollments,
		CompletedEnrollments:    s.CompletedEnrollments,
		ConvertedEnrollments:    s.ConvertedEnrollments,
		UnsubscribedEnrollments: s.UnsubscribedEnrollments,
		TotalInteractions:       s.TotalInteractions,
		FailedInteractions:      s.FailedInteractions,
		AverageLeadScore:        s.AverageLeadScore,
		ScoredLeads:             s.ScoredLeads,
		ConversionRate:          s.ConversionRate,
	})
}

// Trigger handles POST /api/v1/followup/triggers. The event is published on
// the bus and handled asynchronously.
func (h *Handler) Trigger(c *gin.Context) {
	req, ok := bindJSON[transport.TriggerRequest](c, h.val)
	if !ok {
		return
	}
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.ownedLead(ctx, owner, req.LeadID); httpkit.HandleError(c, err) {
		return
	}

	event, err := triggerEvent(owner, req)
	if httpkit.HandleError(c, err) {
		return
	}
	// the request context ends with the response; handlers run detached
	h.eventBus.Publish(context.WithoutCancel(ctx), event)

	httpkit.JSON(c, http.StatusAccepted, transport.TriggerAcceptedResponse{
		Type:   req.Type,
		LeadID: req.LeadID,
		Status: "accepted",
	})
}

func triggerEvent(owner uuid.UUID, req transport.TriggerRequest) (events.Event, error) {
	base := events.NewBaseEvent()
	switch req.Type {
	case string(domain.TriggerLeadCapture):
		return events.LeadCaptured{BaseEvent: base, LeadID: req.LeadID, OwnerID: owner, Source: req.Source}, nil
	case string(domain.TriggerAppointmentScheduled):
		return events.AppointmentScheduled{BaseEvent: base, LeadID: req.LeadID, OwnerID: owner}, nil
	case string(domain.TriggerPropertyViewed):
		if req.ListingID == nil {
			return nil, apperr.Validation("listingId is required for property_viewed")
		}
		return events.PropertyViewed{BaseEvent: base, LeadID: req.LeadID, OwnerID: owner, ListingID: *req.ListingID}, nil
	case string(domain.TriggerMarketUpdate):
		return events.MarketUpdatePublished{BaseEvent: base, LeadID: req.LeadID, OwnerID: owner}, nil
	case "converted":
		return events.LeadConverted{BaseEvent: base, LeadID: req.LeadID}, nil
	case "unsubscribed":
		return events.LeadUnsubscribed{BaseEvent: base, LeadID: req.LeadID}, nil
	default:
		return nil, apperr.Validation("unknown trigger type")
	}
}
