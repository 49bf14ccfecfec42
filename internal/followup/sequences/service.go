// Package sequences manages follow-up sequence templates and their steps.
package sequences

import (
	"context"
	"strings"
	"time"

	"nurture_backend/internal/followup/domain"
	"nurture_backend/internal/followup/repository"
	"nurture_backend/internal/followup/transport"
	"nurture_backend/platform/apperr"
	"nurture_backend/platform/logger"

	"github.com/google/uuid"
)

const msgSequenceNotFound = "sequence not found"

// Repository is the data access needed by the sequence service.
type Repository interface {
	repository.SequenceStore
	repository.StepStore
}

// Service manages sequence templates.
type Service struct {
	repo Repository
	log  *logger.Logger
	now  func() time.Time
}

// New creates a new sequence service.
func New(repo Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log, now: time.Now}
}

// ListTemplates returns the owner's templates, newest first.
func (s *Service) ListTemplates(ctx context.Context, ownerID uuid.UUID) ([]transport.SequenceResponse, error) {
	items, err := s.repo.ListSequences(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]transport.SequenceResponse, 0, len(items))
	for _, item := range items {
		out = append(out, transport.ToSequenceResponse(item))
	}
	return out, nil
}

// GetTemplate returns a template owned by ownerID.
func (s *Service) GetTemplate(ctx context.Context, ownerID, id uuid.UUID) (domain.SequenceTemplate, error) {
	seq, err := s.repo.GetSequence(ctx, id)
	if err != nil {
		return domain.SequenceTemplate{}, err
	}
	if seq.OwnerID != ownerID {
		return domain.SequenceTemplate{}, apperr.NotFound(msgSequenceNotFound)
	}
	return seq, nil
}

// CreateTemplate stores a new active template.
func (s *Service) CreateTemplate(ctx context.Context, ownerID uuid.UUID, req transport.CreateSequenceRequest) (transport.SequenceResponse, error) {
	trigger := domain.TriggerType(req.TriggerType)
	if !trigger.Valid() {
		return transport.SequenceResponse{}, apperr.Validation("unknown trigger type")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return transport.SequenceResponse{}, apperr.Validation("name is required")
	}

	now := s.now()
	seq := domain.SequenceTemplate{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Name:        name,
		Description: req.Description,
		TriggerType: trigger,
		Status:      domain.SequenceActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.TotalSteps != nil {
		seq.TotalSteps = *req.TotalSteps
	}
	if req.AverageConversionRate != nil {
		seq.AverageConversionRate = *req.AverageConversionRate
	}

	created, err := s.repo.CreateSequence(ctx, seq)
	if err != nil {
		return transport.SequenceResponse{}, err
	}
	return transport.ToSequenceResponse(created), nil
}

// SetStatus activates, pauses or archives a template. Archiving is final.
func (s *Service) SetStatus(ctx context.Context, ownerID, id uuid.UUID, status domain.SequenceStatus) (transport.SequenceResponse, error) {
	seq, err := s.GetTemplate(ctx, ownerID, id)
	if err != nil {
		return transport.SequenceResponse{}, err
	}
	if seq.Status == status {
		return transport.ToSequenceResponse(seq), nil
	}
	if !domain.CanSequenceTransition(seq.Status, status) {
		return transport.SequenceResponse{}, apperr.Validation("cannot change status of an archived sequence")
	}
	if err := s.repo.UpdateSequenceStatus(ctx, id, status); err != nil {
		return transport.SequenceResponse{}, err
	}
	seq.Status = status
	seq.UpdatedAt = s.now()
	return transport.ToSequenceResponse(seq), nil
}

// Remove hard-deletes a template nobody was ever enrolled in. Templates with
// enrollment history are archived so their interactions stay attributable.
func (s *Service) Remove(ctx context.Context, ownerID, id uuid.UUID) (transport.RemoveSequenceResponse, error) {
	seq, err := s.GetTemplate(ctx, ownerID, id)
	if err != nil {
		return transport.RemoveSequenceResponse{}, err
	}
	count, err := s.repo.CountEnrollmentsForSequence(ctx, id)
	if err != nil {
		return transport.RemoveSequenceResponse{}, err
	}
	if count > 0 {
		if seq.Status != domain.SequenceArchived {
			if err := s.repo.UpdateSequenceStatus(ctx, id, domain.SequenceArchived); err != nil {
				return transport.RemoveSequenceResponse{}, err
			}
		}
		return transport.RemoveSequenceResponse{ID: id, Archived: true}, nil
	}
	if err := s.repo.DeleteSequence(ctx, id); err != nil {
		return transport.RemoveSequenceResponse{}, err
	}
	return transport.RemoveSequenceResponse{ID: id, Deleted: true}, nil
}

// ListSteps returns a template's steps ordered by step number.
func (s *Service) ListSteps(ctx context.Context, ownerID, sequenceID uuid.UUID) ([]transport.StepResponse, error) {
	if _, err := s.GetTemplate(ctx, ownerID, sequenceID); err != nil {
		return nil, err
	}
	steps, err := s.repo.ListSteps(ctx, sequenceID)
	if err != nil {
		return nil, err
	}
	out := make([]transport.StepResponse, 0, len(steps))
	for _, step := range steps {
		out = append(out, transport.ToStepResponse(step))
	}
	return out, nil
}

// CreateStep appends a step to a template.
func (s *Service) CreateStep(ctx context.Context, ownerID, sequenceID uuid.UUID, req transport.CreateStepRequest) (transport.StepResponse, error) {
	seq, err := s.GetTemplate(ctx, ownerID, sequenceID)
	if err != nil {
		return transport.StepResponse{}, err
	}
	if seq.Status == domain.SequenceArchived {
		return transport.StepResponse{}, apperr.Validation("cannot add steps to an archived sequence")
	}

	step, err := s.buildStep(sequenceID, req)
	if err != nil {
		return transport.StepResponse{}, err
	}
	created, err := s.repo.CreateStep(ctx, step)
	if err != nil {
		return transport.StepResponse{}, err
	}
	return transport.ToStepResponse(created), nil
}

func (s *Service) buildStep(sequenceID uuid.UUID, req transport.CreateStepRequest) (domain.SequenceStep, error) {
	stepType := domain.StepType(req.StepType)
	if !stepType.Valid() {
		return domain.SequenceStep{}, apperr.Validation("unknown step type")
	}
	if err := domain.ValidateStepTiming(req.StepNumber, req.DelayDays, req.DelayHours); err != nil {
		return domain.SequenceStep{}, apperr.Validation(err.Error())
	}
	fields := req.PersonalizationFields
	if fields == nil {
		fields = []string{}
	}
	return domain.SequenceStep{
		ID:                    uuid.New(),
		SequenceID:            sequenceID,
		StepNumber:            req.StepNumber,
		StepType:              stepType,
		DelayDays:             req.DelayDays,
		DelayHours:            req.DelayHours,
		Subject:               req.Subject,
		ContentTemplate:       req.ContentTemplate,
		AIPrompt:              req.AIPrompt,
		PersonalizationFields: fields,
		Conditions:            req.Conditions,
		CreatedAt:             s.now(),
	}, nil
}

// FindActiveByTrigger returns the owner's active templates for a trigger.
func (s *Service) FindActiveByTrigger(ctx context.Context, ownerID uuid.UUID, trigger domain.TriggerType) ([]domain.SequenceTemplate, error) {
	return s.repo.ListActiveSequencesByTrigger(ctx, ownerID, trigger)
}

// SeedDefaults creates the given definitions for an owner. Definitions whose
// name already exists for the owner are skipped, so seeding can be rerun.
func (s *Service) SeedDefaults(ctx context.Context, ownerID uuid.UUID, defs []Definition) ([]transport.SequenceResponse, error) {
	existing, err := s.repo.ListSequences(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(existing))
	for _, seq := range existing {
		names[strings.ToLower(seq.Name)] = true
	}

	created := make([]transport.SequenceResponse, 0, len(defs))
	for _, def := range defs {
		if names[strings.ToLower(def.Name)] {
			s.log.Info("skipping existing sequence", "ownerId", ownerID, "name", def.Name)
			continue
		}

		req := transport.CreateSequenceRequest{Name: def.Name, TriggerType: def.Trigger}
		if def.Description != "" {
			desc := def.Description
			req.Description = &desc
		}
		seq, err := s.CreateTemplate(ctx, ownerID, req)
		if err != nil {
			return created, err
		}

		for _, sd := range def.Steps {
			stepReq := transport.CreateStepRequest{
				StepNumber:            sd.StepNumber,
				StepType:              sd.Type,
				DelayDays:             sd.DelayDays,
				DelayHours:            sd.DelayHours,
				ContentTemplate:       sd.Template,
				PersonalizationFields: sd.PersonalizationFields,
				Conditions:            sd.Conditions,
			}
			if sd.Subject != "" {
				subject := sd.Subject
				stepReq.Subject = &subject
			}
			if sd.AIPrompt != "" {
				prompt := sd.AIPrompt
				stepReq.AIPrompt = &prompt
			}
			if _, err := s.CreateStep(ctx, ownerID, seq.ID, stepReq); err != nil {
				return created, err
			}
		}

		seq.TotalSteps = max(seq.TotalSteps, len(def.Steps))
		created = append(created, seq)
		names[strings.ToLower(def.Name)] = true
	}
	return created, nil
}
