package repository

import (
	"context"
	"fmt"

	"nurture_backend/internal/followup/domain"
)

// InsertGeneration appends a content generation audit row.
func (r *Repo) InsertGeneration(ctx context.Context, g domain.AIContentGeneration) error {
	personalization, err := objectJSON(g.PersonalizationData)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO ai_content_generations (id, lead_id, content_type, prompt_used, generated_content, personalization_data,
			model_name, token_estimate, generation_latency_ms, quality_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		g.ID, g.LeadID, string(g.ContentType), g.PromptUsed, g.GeneratedContent, personalization,
		g.ModelName, g.TokenEstimate, g.GenerationLatencyMs, g.QualityScore, g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert content generation: %w", err)
	}
	return nil
}
