package repository

import (
	"context"
	"fmt"

	"nurture_backend/internal/followup/domain"

	"github.com/google/uuid"
)

// CountEnrollmentsByStatus counts an owner's enrollments per status.
func (r *Repo) CountEnrollmentsByStatus(ctx context.Context, ownerID uuid.UUID) (EnrollmentCounts, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT lf.status, COUNT(*)
		FROM lead_followups lf
		JOIN sequence_templates st ON st.id = lf.sequence_id
		WHERE st.owner_id = $1
		GROUP BY lf.status`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("count enrollments: %w", err)
	}
	defer rows.Close()

	counts := EnrollmentCounts{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan enrollment count: %w", err)
		}
		counts[domain.EnrollmentStatus(status)] = n
	}
	return counts, rows.Err()
}

// CountInteractions counts an owner's interactions and how many failed.
func (r *Repo) CountInteractions(ctx context.Context, ownerID uuid.UUID) (int, int, error) {
	var total, failed int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE fi.status IN ('failed', 'bounced'))
		FROM followup_interactions fi
		JOIN lead_followups lf ON lf.id = fi.lead_followup_id
		JOIN sequence_templates st ON st.id = lf.sequence_id
		WHERE st.owner_id = $1`, ownerID,
	).Scan(&total, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("count interactions: %w", err)
	}
	return total, failed, nil
}

// AverageLeadScore averages the scores of leads enrolled in the owner's sequences.
func (r *Repo) AverageLeadScore(ctx context.Context, ownerID uuid.UUID) (float64, int, error) {
	var avg float64
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(s.score), 0)::float8, COUNT(s.lead_id)
		FROM ai_lead_scoring s
		WHERE s.lead_id IN (
			SELECT lf.lead_id
			FROM lead_followups lf
			JOIN sequence_templates st ON st.id = lf.sequence_id
			WHERE st.owner_id = $1
		)`, ownerID,
	).Scan(&avg, &n)
	if err != nil {
		return 0, 0, fmt.Errorf("average lead score: %w", err)
	}
	return avg, n, nil
}
