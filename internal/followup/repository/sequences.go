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

const sequenceColumns = `id, owner_id, name, description, trigger_type, status, total_steps, average_conversion_rate, created_at, updated_at`

func scanSequence(row pgx.Row) (domain.SequenceTemplate, error) {
	var s domain.SequenceTemplate
	var trigger, status string
	err := row.Scan(&s.ID, &s.OwnerID, &s.Name, &s.Description, &trigger, &status,
		&s.TotalSteps, &s.AverageConversionRate, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.SequenceTemplate{}, err
	}
	s.TriggerType = domain.TriggerType(trigger)
	s.Status = domain.SequenceStatus(status)
	return s, nil
}

func collectSequences(rows pgx.Rows) ([]domain.SequenceTemplate, error) {
	defer rows.Close()
	out := make([]domain.SequenceTemplate, 0)
	for rows.Next() {
		s, err := scanSequence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sequence: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateSequence inserts a template.
func (r *Repo) CreateSequence(ctx context.Context, seq domain.SequenceTemplate) (domain.SequenceTemplate, error) {
	query := `
		INSERT INTO sequence_templates (id, owner_id, name, description, trigger_type, status, total_steps, average_conversion_rate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + sequenceColumns

	created, err := scanSequence(r.pool.QueryRow(ctx, query,
		seq.ID, seq.OwnerID, seq.Name, seq.Description, string(seq.TriggerType), string(seq.Status),
		seq.TotalSteps, seq.AverageConversionRate,
	))
	if err != nil {
		return domain.SequenceTemplate{}, fmt.Errorf("create sequence: %w", err)
	}
	return created, nil
}

// GetSequence retrieves a template by id.
func (r *Repo) GetSequence(ctx context.Context, id uuid.UUID) (domain.SequenceTemplate, error) {
	query := `SELECT ` + sequenceColumns + ` FROM sequence_templates WHERE id = $1`

	s, err := scanSequence(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SequenceTemplate{}, apperr.NotFound(sequenceNotFoundMsg)
		}
		return domain.SequenceTemplate{}, fmt.Errorf("get sequence: %w", err)
	}
	return s, nil
}

// ListSequences lists an owner's templates, newest first.
func (r *Repo) ListSequences(ctx context.Context, ownerID uuid.UUID) ([]domain.SequenceTemplate, error) {
	query := `SELECT ` + sequenceColumns + `
		FROM sequence_templates
		WHERE owner_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sequences: %w", err)
	}
	return collectSequences(rows)
}

// ListActiveSequencesByTrigger returns active templates that start on trigger.
func (r *Repo) ListActiveSequencesByTrigger(ctx context.Context, ownerID uuid.UUID, trigger domain.TriggerType) ([]domain.SequenceTemplate, error) {
	query := `SELECT ` + sequenceColumns + `
		FROM sequence_templates
		WHERE owner_id = $1 AND trigger_type = $2 AND status = 'active'
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, ownerID, string(trigger))
	if err != nil {
		return nil, fmt.Errorf("list sequences by trigger: %w", err)
	}
	return collectSequences(rows)
}

// UpdateSequenceStatus sets a template's status.
func (r *Repo) UpdateSequenceStatus(ctx context.Context, id uuid.UUID, status domain.SequenceStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sequence_templates SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("update sequence status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(sequenceNotFoundMsg)
	}
	return nil
}

// DeleteSequence hard-deletes a template and its steps.
func (r *Repo) DeleteSequence(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sequence_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete sequence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(sequenceNotFoundMsg)
	}
	return nil
}

// CountEnrollmentsForSequence counts enrollments in any status.
func (r *Repo) CountEnrollmentsForSequence(ctx context.Context, sequenceID uuid.UUID) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM lead_followups WHERE sequence_id = $1`, sequenceID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sequence enrollments: %w", err)
	}
	return n, nil
}
