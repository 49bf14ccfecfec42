package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"nurture_backend/internal/followup/domain"
	"nurture_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UpsertScore replaces the lead's score row. Concurrent writers race and the
// last commit wins.
func (r *Repo) UpsertScore(ctx context.Context, s domain.AILeadScoring) error {
	factors, err := objectJSON(s.ScoreFactors)
	if err != nil {
		return err
	}
	actions, err := listJSON(s.RecommendedActions)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO ai_lead_scoring (lead_id, score, conversion_probability, score_factors, recommended_actions, ai_insights, last_calculated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (lead_id) DO UPDATE SET
			score = EXCLUDED.score,
			conversion_probability = EXCLUDED.conversion_probability,
			score_factors = EXCLUDED.score_factors,
			recommended_actions = EXCLUDED.recommended_actions,
			ai_insights = EXCLUDED.ai_insights,
			last_calculated = EXCLUDED.last_calculated`,
		s.LeadID, s.Score, s.ConversionProbability, factors, actions, s.AIInsights, s.LastCalculated,
	)
	if err != nil {
		return fmt.Errorf("upsert lead score: %w", err)
	}
	return nil
}

// GetScore returns the stored score of a lead.
func (r *Repo) GetScore(ctx context.Context, leadID uuid.UUID) (domain.AILeadScoring, error) {
	var (
		s       domain.AILeadScoring
		factors []byte
		actions []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT lead_id, score, conversion_probability, score_factors, recommended_actions, ai_insights, last_calculated
		FROM ai_lead_scoring
		WHERE lead_id = $1`, leadID,
	).Scan(&s.LeadID, &s.Score, &s.ConversionProbability, &factors, &actions, &s.AIInsights, &s.LastCalculated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AILeadScoring{}, apperr.NotFound(scoreNotFoundMsg)
		}
		return domain.AILeadScoring{}, fmt.Errorf("get lead score: %w", err)
	}

	s.ScoreFactors = unmarshalObject(factors)
	s.RecommendedActions = []string{}
	_ = json.Unmarshal(actions, &s.RecommendedActions)
	return s, nil
}
