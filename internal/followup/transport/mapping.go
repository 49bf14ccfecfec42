package transport

import (
	"nurture_backend/internal/followup/domain"
)

func ToSequenceResponse(s domain.SequenceTemplate) SequenceResponse {
	return SequenceResponse{
		ID:                    s.ID,
		Name:                  s.Name,
		Description:           s.Description,
		TriggerType:           string(s.TriggerType),
		Status:                string(s.Status),
		TotalSteps:            s.TotalSteps,
		AverageConversionRate: s.AverageConversionRate,
		CreatedAt:             s.CreatedAt,
		UpdatedAt:             s.UpdatedAt,
	}
}

func ToStepResponse(s domain.SequenceStep) StepResponse {
	fields := s.PersonalizationFields
	if fields == nil {
		fields = []string{}
	}
	conditions := s.Conditions
	if conditions == nil {
		conditions = map[string]any{}
	}
	return StepResponse{
		ID:                    s.ID,
		SequenceID:            s.SequenceID,
		StepNumber:            s.StepNumber,
		StepType:              string(s.StepType),
		DelayDays:             s.DelayDays,
		DelayHours:            s.DelayHours,
		Subject:               s.Subject,
		ContentTemplate:       s.ContentTemplate,
		AIPrompt:              s.AIPrompt,
		PersonalizationFields: fields,
		Conditions:            conditions,
		CreatedAt:             s.CreatedAt,
	}
}

func ToEnrollmentResponse(e domain.LeadFollowup) EnrollmentResponse {
	return EnrollmentResponse{
		ID:              e.ID,
		LeadID:          e.LeadID,
		SequenceID:      e.SequenceID,
		CurrentStep:     e.CurrentStep,
		Status:          string(e.Status),
		StartDate:       e.StartDate,
		LastContactDate: e.LastContactDate,
		NextContactDate: e.NextContactDate,
		EngagementScore: e.EngagementScore,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

func ToEnrollmentResponses(items []domain.LeadFollowup) []EnrollmentResponse {
	out := make([]EnrollmentResponse, 0, len(items))
	for _, e := range items {
		out = append(out, ToEnrollmentResponse(e))
	}
	return out
}

func ToInteractionResponse(in domain.FollowupInteraction) InteractionResponse {
	data := in.ResponseData
	if data == nil {
		data = map[string]any{}
	}
	return InteractionResponse{
		ID:              in.ID,
		EnrollmentID:    in.LeadFollowupID,
		StepID:          in.StepID,
		StepNumber:      in.StepNumber,
		InteractionType: in.InteractionType,
		Content:         in.Content,
		Status:          string(in.Status),
		ResponseData:    data,
		SentAt:          in.SentAt,
		OpenedAt:        in.OpenedAt,
		ClickedAt:       in.ClickedAt,
		RespondedAt:     in.RespondedAt,
	}
}

func ToLeadScoreResponse(s domain.AILeadScoring) LeadScoreResponse {
	factors := s.ScoreFactors
	if factors == nil {
		factors = map[string]any{}
	}
	actions := s.RecommendedActions
	if actions == nil {
		actions = []string{}
	}
	return LeadScoreResponse{
		LeadID:                s.LeadID,
		Score:                 s.Score,
		ConversionProbability: s.ConversionProbability,
		ScoreFactors:          factors,
		RecommendedActions:    actions,
		AIInsights:            s.AIInsights,
		LastCalculated:        s.LastCalculated,
	}
}
