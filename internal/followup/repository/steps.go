package repository

import (
	"context"
	"errors"
	"fmt"

	"nurture_backend/internal/followup/domain"
	"nurture_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const stepColumns = `id, sequence_id, step_number, step_type, delay_days, delay_hours, subject, content_template, ai_prompt, personalization_fields, conditions, created_at`

func scanStep(row pgx.Row) (domain.SequenceStep, error) {
	var s domain.SequenceStep
	var stepType string
	var conditions []byte
	err := row.Scan(&s.ID, &s.SequenceID, &s.StepNumber, &stepType, &s.DelayDays, &s.DelayHours,
		&s.Subject, &s.ContentTemplate, &s.AIPrompt, &s.PersonalizationFields, &conditions, &s.CreatedAt)
	if err != nil {
		return domain.SequenceStep{}, err
	}
	s.StepType = domain.StepType(stepType)
	s.Conditions = unmarshalObject(conditions)
	if s.PersonalizationFields == nil {
		s.PersonalizationFields = []string{}
	}
	return s, nil
}

// CreateStep inserts a step and keeps the template's total_steps in sync.
func (r *Repo) CreateStep(ctx context.Context, step domain.SequenceStep) (domain.SequenceStep, error) {
	conditions, err := objectJSON(step.Conditions)
	if err != nil {
		return domain.SequenceStep{}, err
	}
	fields := step.PersonalizationFields
	if fields == nil {
		fields = []string{}
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.SequenceStep{}, fmt.Errorf("begin create step: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO sequence_steps (id, sequence_id, step_number, step_type, delay_days, delay_hours, subject, content_template, ai_prompt, personalization_fields, conditions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + stepColumns

	created, err := scanStep(tx.QueryRow(ctx, query,
		step.ID, step.SequenceID, step.StepNumber, string(step.StepType), step.DelayDays, step.DelayHours,
		step.Subject, step.ContentTemplate, step.AIPrompt, fields, conditions,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.SequenceStep{}, apperr.Conflict(fmt.Sprintf("step %d already exists in this sequence", step.StepNumber))
		}
		return domain.SequenceStep{}, fmt.Errorf("create step: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE sequence_templates
		SET total_steps = GREATEST(total_steps, (SELECT COUNT(*) FROM sequence_steps WHERE sequence_id = $1)),
		    updated_at = now()
		WHERE id = $1`, step.SequenceID); err != nil {
		return domain.SequenceStep{}, fmt.Errorf("update total steps: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.SequenceStep{}, fmt.Errorf("commit create step: %w", err)
	}
	return created, nil
}

// GetStep retrieves a step by id.
func (r *Repo) GetStep(ctx context.Context, id uuid.UUID) (domain.SequenceStep, error) {
	s, err := scanStep(r.pool.QueryRow(ctx, `SELECT `+stepColumns+` FROM sequence_steps WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SequenceStep{}, apperr.NotFound(stepNotFoundMsg)
		}
		return domain.SequenceStep{}, fmt.Errorf("get step: %w", err)
	}
	return s, nil
}

// ListSteps returns a template's steps ordered by step_number.
func (r *Repo) ListSteps(ctx context.Context, sequenceID uuid.UUID) ([]domain.SequenceStep, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+stepColumns+` FROM sequence_steps WHERE sequence_id = $1 ORDER BY step_number ASC`,
		sequenceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SequenceStep, 0)
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// FindStepAtOrAfter returns the first step at or after step_number n.
func (r *Repo) FindStepAtOrAfter(ctx context.Context, sequenceID uuid.UUID, n int) (domain.SequenceStep, bool, error) {
	s, err := scanStep(r.pool.QueryRow(ctx, `
		SELECT `+stepColumns+`
		FROM sequence_steps
		WHERE sequence_id = $1 AND step_number >= $2
		ORDER BY step_number ASC
		LIMIT 1`, sequenceID, n))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SequenceStep{}, false, nil
		}
		return domain.SequenceStep{}, false, fmt.Errorf("find step: %w", err)
	}
	return s, true, nil
}
