// Package scoring asks a language model to assess how likely a lead is to
// convert and stores the latest assessment.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"nurture_backend/internal/followup/domain"
	"nurture_backend/internal/followup/repository"
	"nurture_backend/platform/ai/completion"
	"nurture_backend/platform/apperr"
	"nurture_backend/platform/logger"

	"github.com/google/uuid"
)

// Repository is the persistence needed by the scorer.
type Repository interface {
	repository.LeadReader
	repository.ScoringStore
	SetEngagementScore(ctx context.Context, leadID uuid.UUID, score int) error
	InteractionStatsForLead(ctx context.Context, leadID uuid.UUID) (repository.InteractionStats, error)
}

// Service scores leads.
type Service struct {
	repo      Repository
	completer completion.Completer
	log       *logger.Logger
	now       func() time.Time
}

// New creates a new scoring service.
func New(repo Repository, completer completion.Completer, log *logger.Logger) *Service {
	return &Service{repo: repo, completer: completer, log: log, now: time.Now}
}

// assessment is the exact document the model must return.
type assessment struct {
	Score                 *int           `json:"score"`
	ConversionProbability *float64       `json:"conversion_probability"`
	ScoreFactors          map[string]any `json:"score_factors"`
	RecommendedActions    []string       `json:"recommended_actions"`
	AIInsights            string         `json:"ai_insights"`
}

// Score runs one assessment of a lead and stores it. When the model output
// cannot be used nothing is written.
func (s *Service) Score(ctx context.Context, leadID uuid.UUID) (domain.AILeadScoring, error) {
	lead, err := s.repo.GetLeadContext(ctx, leadID)
	if err != nil {
		return domain.AILeadScoring{}, err
	}
	stats, err := s.repo.InteractionStatsForLead(ctx, leadID)
	if err != nil {
		return domain.AILeadScoring{}, err
	}

	out, err := s.completer.Complete(ctx, completion.Prompt{
		System:      scoringSystemPrompt,
		User:        buildScoringPrompt(lead, stats, s.now()),
		JSON:        true,
		Temperature: 0.2,
	})
	if err != nil {
		return domain.AILeadScoring{}, fmt.Errorf("score lead: %w", err)
	}

	parsed, err := parseAssessment(out.Text)
	if err != nil {
		s.log.Warn("lead score rejected", "leadId", leadID, "error", err)
		return domain.AILeadScoring{}, err
	}

	result := domain.AILeadScoring{
		LeadID:                leadID,
		Score:                 *parsed.Score,
		ConversionProbability: *parsed.ConversionProbability,
		ScoreFactors:          parsed.ScoreFactors,
		RecommendedActions:    parsed.RecommendedActions,
		AIInsights:            strings.TrimSpace(parsed.AIInsights),
		LastCalculated:        s.now(),
	}
	if result.ScoreFactors == nil {
		result.ScoreFactors = map[string]any{}
	}
	if result.RecommendedActions == nil {
		result.RecommendedActions = []string{}
	}

	if err := s.repo.UpsertScore(ctx, result); err != nil {
		return domain.AILeadScoring{}, err
	}
	if err := s.repo.SetEngagementScore(ctx, leadID, result.Score); err != nil {
		return domain.AILeadScoring{}, err
	}
	s.log.Info("lead scored", "leadId", leadID, "score", result.Score)
	return result, nil
}

// Latest returns the stored assessment of a lead.
func (s *Service) Latest(ctx context.Context, leadID uuid.UUID) (domain.AILeadScoring, error) {
	return s.repo.GetScore(ctx, leadID)
}

// parseAssessment decodes the model output strictly. Surrounding whitespace
// and one markdown code fence are tolerated; anything else is a data shape error.
func parseAssessment(raw string) (assessment, error) {
	body := stripCodeFence(strings.TrimSpace(raw))

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()

	var a assessment
	if err := dec.Decode(&a); err != nil {
		return assessment{}, apperr.DataShape("model returned an invalid lead score", err)
	}
	if dec.More() {
		return assessment{}, apperr.DataShape("model returned trailing data after the lead score", nil)
	}
	if a.Score == nil || a.ConversionProbability == nil {
		return assessment{}, apperr.DataShape("lead score is missing score or conversion_probability", nil)
	}
	if *a.Score < 0 || *a.Score > 100 {
		return assessment{}, apperr.DataShape(fmt.Sprintf("score %d is outside 0..100", *a.Score), nil)
	}
	if *a.ConversionProbability < 0 || *a.ConversionProbability > 1 {
		return assessment{}, apperr.DataShape(fmt.Sprintf("conversion_probability %g is outside 0..1", *a.ConversionProbability), nil)
	}
	return a, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	// drop an info string such as "json"
	if first, rest, found := strings.Cut(inner, "\n"); found && !strings.ContainsAny(first, "{[") {
		inner = rest
	}
	return strings.TrimSpace(inner)
}

const scoringSystemPrompt = `You assess residential real estate leads for an agent.
Return exactly one JSON object and nothing else, with these keys:
- "score": integer 0-100, overall lead quality and readiness
- "conversion_probability": number 0-1, chance the lead becomes a client within 90 days
- "score_factors": object mapping short factor names to a number or a short string
- "recommended_actions": array of 1-4 short imperative next steps for the agent
- "ai_insights": one or two sentences explaining the assessment
Do not add other keys. Base the assessment only on the facts provided.`

func buildScoringPrompt(lead domain.LeadContext, stats repository.InteractionStats, now time.Time) string {
	var b strings.Builder
	b.WriteString("## Lead\n")
	fmt.Fprintf(&b, "- Name: %s\n", lead.Name)
	fmt.Fprintf(&b, "- Has email: %t\n", strings.TrimSpace(lead.Email) != "")
	fmt.Fprintf(&b, "- Has phone: %t\n", strings.TrimSpace(lead.Phone) != "")
	if lead.Source != "" {
		fmt.Fprintf(&b, "- Source: %s\n", lead.Source)
	}
	if lead.Notes != "" {
		fmt.Fprintf(&b, "- Notes: %s\n", lead.Notes)
	}
	if lead.Listing != nil {
		fmt.Fprintf(&b, "- Interested in: %s (%s)\n", lead.Listing.Title, lead.Listing.Address)
		if lead.Listing.Price != nil {
			fmt.Fprintf(&b, "- Listing price: %.0f\n", *lead.Listing.Price)
		}
	}

	b.WriteString("\n## Outreach history\n")
	fmt.Fprintf(&b, "- Total interactions: %d\n", stats.Total)
	fmt.Fprintf(&b, "- Responses: %d\n", stats.Responded)
	if stats.LastSent != nil {
		fmt.Fprintf(&b, "- Days since last contact: %d\n", int(now.Sub(*stats.LastSent).Hours()/24))
	}
	for _, line := range sortedCounts(stats.ByType) {
		fmt.Fprintf(&b, "- %s\n", line)
	}
	statuses := make(map[string]int, len(stats.ByStatus))
	for k, v := range stats.ByStatus {
		statuses["status "+string(k)] = v
	}
	for _, line := range sortedCounts(statuses) {
		fmt.Fprintf(&b, "- %s\n", line)
	}
	return b.String()
}

func sortedCounts(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, fmt.Sprintf("%s: %d", k, v))
	}
	sort.Strings(out)
	return out
}
