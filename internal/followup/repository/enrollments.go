package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nurture_backend/internal/followup/domain"
	"nurture_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const enrollmentColumns = `id, lead_id, sequence_id, current_step, status, start_date, last_contact_date, next_contact_date, engagement_score, created_at, updated_at`

func scanEnrollment(row pgx.Row) (domain.LeadFollowup, error) {
	var e domain.LeadFollowup
	var status string
	err := row.Scan(&e.ID, &e.LeadID, &e.SequenceID, &e.CurrentStep, &status, &e.StartDate,
		&e.LastContactDate, &e.NextContactDate, &e.EngagementScore, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return domain.LeadFollowup{}, err
	}
	e.Status = domain.EnrollmentStatus(status)
	return e, nil
}

func collectEnrollments(rows pgx.Rows) ([]domain.LeadFollowup, error) {
	defer rows.Close()
	out := make([]domain.LeadFollowup, 0)
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreateEnrollment inserts an enrollment. The partial unique index on open
// enrollments turns a concurrent double enrollment into a conflict.
func (r *Repo) CreateEnrollment(ctx context.Context, e domain.LeadFollowup) (domain.LeadFollowup, error) {
	query := `
		INSERT INTO lead_followups (id, lead_id, sequence_id, current_step, status, start_date, last_contact_date, next_contact_date, engagement_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + enrollmentColumns

	created, err := scanEnrollment(r.pool.QueryRow(ctx, query,
		e.ID, e.LeadID, e.SequenceID, e.CurrentStep, string(e.Status), e.StartDate,
		e.LastContactDate, e.NextContactDate, e.EngagementScore,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.LeadFollowup{}, apperr.Conflict("lead is already enrolled in this sequence")
		}
		return domain.LeadFollowup{}, fmt.Errorf("create enrollment: %w", err)
	}
	return created, nil
}

// GetEnrollment retrieves an enrollment by id.
func (r *Repo) GetEnrollment(ctx context.Context, id uuid.UUID) (domain.LeadFollowup, error) {
	e, err := scanEnrollment(r.pool.QueryRow(ctx, `SELECT `+enrollmentColumns+` FROM lead_followups WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LeadFollowup{}, apperr.NotFound(enrollmentNotFoundMsg)
		}
		return domain.LeadFollowup{}, fmt.Errorf("get enrollment: %w", err)
	}
	return e, nil
}

// FindOpenEnrollment returns the active or paused enrollment of a lead in a sequence.
func (r *Repo) FindOpenEnrollment(ctx context.Context, leadID, sequenceID uuid.UUID) (domain.LeadFollowup, bool, error) {
	e, err := scanEnrollment(r.pool.QueryRow(ctx, `
		SELECT `+enrollmentColumns+`
		FROM lead_followups
		WHERE lead_id = $1 AND sequence_id = $2 AND status IN ('active', 'paused')
		LIMIT 1`, leadID, sequenceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LeadFollowup{}, false, nil
		}
		return domain.LeadFollowup{}, false, fmt.Errorf("find open enrollment: %w", err)
	}
	return e, true, nil
}

// ListEnrollmentsByLead lists a lead's enrollments, newest first.
func (r *Repo) ListEnrollmentsByLead(ctx context.Context, leadID uuid.UUID) ([]domain.LeadFollowup, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+enrollmentColumns+` FROM lead_followups WHERE lead_id = $1 ORDER BY created_at DESC`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments by lead: %w", err)
	}
	return collectEnrollments(rows)
}

// ListEnrollmentsBySequence lists a template's enrollments, newest first.
func (r *Repo) ListEnrollmentsBySequence(ctx context.Context, sequenceID uuid.UUID) ([]domain.LeadFollowup, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+enrollmentColumns+` FROM lead_followups WHERE sequence_id = $1 ORDER BY created_at DESC`, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments by sequence: %w", err)
	}
	return collectEnrollments(rows)
}

// SetSchedule stores the cursor and next contact time of an active enrollment.
func (r *Repo) SetSchedule(ctx context.Context, id uuid.UUID, step int, next time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE lead_followups
		SET current_step = $2, next_contact_date = $3, updated_at = now()
		WHERE id = $1 AND status = 'active' AND current_step <= $2`,
		id, step, next,
	)
	if err != nil {
		return false, fmt.Errorf("set enrollment schedule: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// TransitionEnrollment changes status only when the current status is from.
func (r *Repo) TransitionEnrollment(ctx context.Context, id uuid.UUID, from, to domain.EnrollmentStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE lead_followups
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return false, fmt.Errorf("transition enrollment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetEngagementScore copies a lead score onto the lead's open enrollments.
func (r *Repo) SetEngagementScore(ctx context.Context, leadID uuid.UUID, score int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE lead_followups
		SET engagement_score = $2, updated_at = now()
		WHERE lead_id = $1 AND status IN ('active', 'paused')`,
		leadID, score,
	)
	if err != nil {
		return fmt.Errorf("set engagement score: %w", err)
	}
	return nil
}
