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
	"github.com/jackc/pgx/v5/pgconn"
)

const interactionColumns = `id, lead_followup_id, step_id, step_number, interaction_type, content, status, response_data, sent_at, opened_at, clicked_at, responded_at`

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func scanInteraction(row pgx.Row) (domain.FollowupInteraction, error) {
	var in domain.FollowupInteraction
	var status string
	var response []byte
	err := row.Scan(&in.ID, &in.LeadFollowupID, &in.StepID, &in.StepNumber, &in.InteractionType, &in.Content,
		&status, &response, &in.SentAt, &in.OpenedAt, &in.ClickedAt, &in.RespondedAt)
	if err != nil {
		return domain.FollowupInteraction{}, err
	}
	in.Status = domain.InteractionStatus(status)
	in.ResponseData = unmarshalObject(response)
	return in, nil
}

func insertInteraction(ctx context.Context, q execer, in domain.FollowupInteraction) error {
	response, err := objectJSON(in.ResponseData)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO followup_interactions (id, lead_followup_id, step_id, step_number, interaction_type, content, status, response_data, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		in.ID, in.LeadFollowupID, in.StepID, in.StepNumber, in.InteractionType, in.Content,
		string(in.Status), response, in.SentAt,
	)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

// RecordDispatch writes the interaction and advances the cursor in one transaction.
func (r *Repo) RecordDispatch(ctx context.Context, in domain.FollowupInteraction, fromStep int, contactedAt time.Time) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin record dispatch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE lead_followups
		SET current_step = current_step + 1, last_contact_date = $3, updated_at = now()
		WHERE id = $1 AND current_step = $2 AND status = 'active'`,
		in.LeadFollowupID, fromStep, contactedAt,
	)
	if err != nil {
		return false, fmt.Errorf("advance enrollment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := insertInteraction(ctx, tx, in); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit record dispatch: %w", err)
	}
	return true, nil
}

// AdvanceWithoutContact moves the cursor past a skipped step.
func (r *Repo) AdvanceWithoutContact(ctx context.Context, enrollmentID uuid.UUID, fromStep int) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE lead_followups
		SET current_step = current_step + 1, updated_at = now()
		WHERE id = $1 AND current_step = $2 AND status = 'active'`,
		enrollmentID, fromStep,
	)
	if err != nil {
		return false, fmt.Errorf("skip enrollment step: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordFailure inserts a failed interaction without touching the enrollment.
func (r *Repo) RecordFailure(ctx context.Context, in domain.FollowupInteraction) error {
	return insertInteraction(ctx, r.pool, in)
}

// GetInteraction retrieves an interaction by id.
func (r *Repo) GetInteraction(ctx context.Context, id uuid.UUID) (domain.FollowupInteraction, error) {
	in, err := scanInteraction(r.pool.QueryRow(ctx,
		`SELECT `+interactionColumns+` FROM followup_interactions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FollowupInteraction{}, apperr.NotFound(interactionNotFoundMsg)
		}
		return domain.FollowupInteraction{}, fmt.Errorf("get interaction: %w", err)
	}
	return in, nil
}

// ListInteractions returns an enrollment's interactions in execution order.
func (r *Repo) ListInteractions(ctx context.Context, enrollmentID uuid.UUID) ([]domain.FollowupInteraction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+interactionColumns+`
		FROM followup_interactions
		WHERE lead_followup_id = $1
		ORDER BY step_number ASC, sent_at ASC`, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.FollowupInteraction, 0)
	for rows.Next() {
		in, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// UpdateInteractionEngagement stores a delivery or engagement report. The
// first opened/clicked timestamp wins.
func (r *Repo) UpdateInteractionEngagement(ctx context.Context, id uuid.UUID, status domain.InteractionStatus, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE followup_interactions
		SET status = $2,
		    opened_at = CASE WHEN $2 IN ('opened', 'clicked') THEN COALESCE(opened_at, $3) ELSE opened_at END,
		    clicked_at = CASE WHEN $2 = 'clicked' THEN COALESCE(clicked_at, $3) ELSE clicked_at END
		WHERE id = $1`,
		id, string(status), at,
	)
	if err != nil {
		return fmt.Errorf("update interaction engagement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(interactionNotFoundMsg)
	}
	return nil
}

// InteractionStatsForLead aggregates a lead's interactions across enrollments.
func (r *Repo) InteractionStatsForLead(ctx context.Context, leadID uuid.UUID) (InteractionStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT fi.interaction_type, fi.status, COUNT(*), MAX(fi.sent_at), COUNT(fi.responded_at)
		FROM followup_interactions fi
		JOIN lead_followups lf ON lf.id = fi.lead_followup_id
		WHERE lf.lead_id = $1
		GROUP BY fi.interaction_type, fi.status`, leadID)
	if err != nil {
		return InteractionStats{}, fmt.Errorf("interaction stats: %w", err)
	}
	defer rows.Close()

	stats := InteractionStats{
		ByType:   map[string]int{},
		ByStatus: map[domain.InteractionStatus]int{},
	}
	for rows.Next() {
		var (
			kind, status string
			count        int
			lastSent     time.Time
			responded    int
		)
		if err := rows.Scan(&kind, &status, &count, &lastSent, &responded); err != nil {
			return InteractionStats{}, fmt.Errorf("scan interaction stats: %w", err)
		}
		stats.Total += count
		stats.ByType[kind] += count
		stats.ByStatus[domain.InteractionStatus(status)] += count
		stats.Responded += responded
		if stats.LastSent == nil || lastSent.After(*stats.LastSent) {
			ls := lastSent
			stats.LastSent = &ls
		}
	}
	return stats, rows.Err()
}
