package scoring

import (
	"context"
	"testing"
	"time"

	"nurture_backend/internal/followup/domain"
	"nurture_backend/internal/followup/followuptest"
	"nurture_backend/platform/ai/completion"
	"nurture_backend/platform/apperr"
	"nurture_backend/platform/logger"

	"github.com/google/uuid"
)

type stubCompleter struct {
	text   string
	prompt completion.Prompt
}

func (s *stubCompleter) Complete(_ context.Context, p completion.Prompt) (completion.Result, error) {
	s.prompt = p
	return completion.Result{Text: s.text, Model: "stub-model"}, nil
}

func (s *stubCompleter) ModelName() string { return "stub-model" }

func newScoringFixture(t *testing.T, reply string) (*Service, *followuptest.Store, uuid.UUID, uuid.UUID, *stubCompleter) {
	t.Helper()
	store := followuptest.NewStore()
	lead := domain.LeadContext{ID: uuid.New(), Name: "Priya Raman", Email: "priya@example.com", Source: "open_house"}
	store.AddLead(lead)

	seq, _ := store.AddSequence(uuid.New(), domain.TriggerLeadCapture, domain.SequenceStep{StepType: domain.StepEmail})
	enrollment := domain.LeadFollowup{ID: uuid.New(), LeadID: lead.ID, SequenceID: seq.ID, CurrentStep: 1, Status: domain.EnrollmentActive}
	if _, err := store.CreateEnrollment(context.Background(), enrollment); err != nil {
		t.Fatalf("create enrollment: %v", err)
	}

	llm := &stubCompleter{text: reply}
	svc := New(store, llm, logger.New("test"))
	svc.now = func() time.Time { return time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC) }
	return svc, store, lead.ID, enrollment.ID, llm
}

func TestScoreStoresAssessmentAndEngagement(t *testing.T) {
	reply := "```json\n{\"score\": 72, \"conversion_probability\": 0.41, \"score_factors\": {\"responsiveness\": \"high\"}, \"recommended_actions\": [\"Offer a viewing\"], \"ai_insights\": \"Replies quickly.\"}\n```"
	svc, store, leadID, enrollmentID, llm := newScoringFixture(t, reply)

	got, err := svc.Score(context.Background(), leadID)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if got.Score != 72 || got.ConversionProbability != 0.41 {
		t.Fatalf("unexpected assessment %+v", got)
	}
	if !llm.prompt.JSON {
		t.Fatal("expected a JSON-mode prompt")
	}
	if stored, err := svc.Latest(context.Background(), leadID); err != nil || stored.Score != 72 {
		t.Fatalf("expected stored score 72, got %+v (%v)", stored, err)
	}
	if store.Enrollment(enrollmentID).EngagementScore != 72 {
		t.Fatalf("expected engagement score copied to enrollment")
	}
}

func TestScoreRejectsMalformedOutput(t *testing.T) {
	cases := []struct {
		name  string
		reply string
	}{
		{name: "not json", reply: "The lead looks promising."},
		{name: "score out of range", reply: `{"score": 140, "conversion_probability": 0.5, "score_factors": {}, "recommended_actions": [], "ai_insights": ""}`},
		{name: "probability out of range", reply: `{"score": 40, "conversion_probability": 1.5, "score_factors": {}, "recommended_actions": [], "ai_insights": ""}`},
		{name: "unknown key", reply: `{"score": 40, "conversion_probability": 0.5, "mood": "good"}`},
		{name: "missing score", reply: `{"conversion_probability": 0.5}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store, leadID, _, _ := newScoringFixture(t, tc.reply)

			_, err := svc.Score(context.Background(), leadID)
			if !apperr.Is(err, apperr.KindDataShape) {
				t.Fatalf("expected data shape error, got %v", err)
			}
			if len(store.Scores) != 0 {
				t.Fatalf("expected nothing written, got %+v", store.Scores)
			}
		})
	}
}

func TestLatestForUnscoredLeadIsNotFound(t *testing.T) {
	svc, _, _, _, _ := newScoringFixture(t, "{}")

	if _, err := svc.Latest(context.Background(), uuid.New()); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
