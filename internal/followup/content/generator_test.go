package content

import (
	"context"
	"errors"
	"strings"
	"testing"

	"nurture_backend/internal/followup/domain"
	"nurture_backend/internal/followup/followuptest"
	"nurture_backend/platform/ai/completion"
	"nurture_backend/platform/apperr"
	"nurture_backend/platform/logger"

	"github.com/google/uuid"
)

type stubCompleter struct {
	text    string
	err     error
	prompts []completion.Prompt
}

func (s *stubCompleter) Complete(_ context.Context, p completion.Prompt) (completion.Result, error) {
	s.prompts = append(s.prompts, p)
	if s.err != nil {
		return completion.Result{}, s.err
	}
	return completion.Result{Text: s.text, Model: "stub-model"}, nil
}

func (s *stubCompleter) ModelName() string { return "stub-model" }

type failingArchive struct{ calls int }

func (f *failingArchive) PutJSON(context.Context, string, any) error {
	f.calls++
	return errors.New("bucket unavailable")
}

func testLead() domain.LeadContext {
	price := 425000.0
	return domain.LeadContext{
		ID:     uuid.New(),
		Name:   "Dana Whitfield",
		Email:  "dana@example.com",
		Phone:  "+15555550100",
		Source: "zillow",
		Listing: &domain.Listing{
			ID:      uuid.New(),
			Title:   "Maple Street Craftsman",
			Address: "12 Maple St",
			Price:   &price,
		},
	}
}

func TestGenerateEmailSplitsSubjectAndRecordsGeneration(t *testing.T) {
	store := followuptest.NewStore()
	lead := testLead()
	store.AddLead(lead)
	llm := &stubCompleter{text: "Subject: Still thinking about Maple Street?\n\nHi Dana,\nThe Maple Street Craftsman is still available."}
	gen := NewGenerator(store, llm, logger.New("test"))

	res, err := gen.Generate(context.Background(), Request{
		LeadID:      lead.ID,
		ContentType: domain.ContentEmail,
		Template:    "Hi {{lead.first_name}}, about {{listing.title}}",
		Fields:      []string{"lead.first_name", "listing.title"},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Subject != "Still thinking about Maple Street?" {
		t.Fatalf("unexpected subject %q", res.Subject)
	}
	if strings.HasPrefix(res.Body, "Subject:") {
		t.Fatalf("expected subject line removed from body, got %q", res.Body)
	}
	if res.QualityScore != 1.0 {
		t.Fatalf("expected full quality score, got %f", res.QualityScore)
	}
	if res.TokenEstimate != (len(res.Body)+3)/4 {
		t.Fatalf("unexpected token estimate %d", res.TokenEstimate)
	}
	if len(llm.prompts) != 1 {
		t.Fatalf("expected exactly one model call, got %d", len(llm.prompts))
	}
	if !strings.Contains(llm.prompts[0].User, "Hi Dana, about Maple Street Craftsman") {
		t.Fatalf("expected rendered draft in prompt, got %q", llm.prompts[0].User)
	}
	if len(store.Generations) != 1 || store.Generations[0].ModelName != "stub-model" {
		t.Fatalf("expected one recorded generation, got %+v", store.Generations)
	}
}

func TestGenerateConfiguredSubjectWinsOverModelSubject(t *testing.T) {
	store := followuptest.NewStore()
	lead := testLead()
	llm := &stubCompleter{text: "Subject: Model picked this instead\n\nHi Dana,\nDoors open at noon on Saturday."}
	gen := NewGenerator(store, llm, logger.New("test"))

	res, err := gen.Generate(context.Background(), Request{
		Lead:        &lead,
		ContentType: domain.ContentEmail,
		Subject:     "Your open house invite",
		Template:    "Open house at {{listing.address}}",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Subject != "Your open house invite" {
		t.Fatalf("expected configured subject, got %q", res.Subject)
	}
	if strings.Contains(res.Body, "Model picked this") {
		t.Fatalf("expected model subject line dropped, got %q", res.Body)
	}
	if !strings.HasPrefix(res.Body, "Hi Dana,") {
		t.Fatalf("unexpected body %q", res.Body)
	}
	if strings.Contains(llm.prompts[0].User, `"Subject: "`) {
		t.Fatalf("expected no subject request when one is configured, got %q", llm.prompts[0].User)
	}
}

func TestGenerateAsksForSubjectOnlyWhenNoneConfigured(t *testing.T) {
	lead := testLead()
	llm := &stubCompleter{text: "Subject: Saturday viewing\n\nHi Dana, want to see it this weekend?"}
	gen := NewGenerator(followuptest.NewStore(), llm, logger.New("test"))

	res, err := gen.Generate(context.Background(), Request{Lead: &lead, ContentType: domain.ContentEmail, Subject: "   "})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(llm.prompts[0].User, `"Subject: "`) {
		t.Fatalf("expected subject request, got %q", llm.prompts[0].User)
	}
	if res.Subject != "Saturday viewing" {
		t.Fatalf("unexpected subject %q", res.Subject)
	}
}

func TestGenerateSMSIsTruncated(t *testing.T) {
	store := followuptest.NewStore()
	lead := testLead()
	store.AddLead(lead)
	llm := &stubCompleter{text: "<b>Hi Dana</b> " + strings.Repeat("great homes nearby ", 20)}
	gen := NewGenerator(store, llm, logger.New("test"), WithSMSMaxLength(40))

	res, err := gen.Generate(context.Background(), Request{LeadID: lead.ID, ContentType: domain.ContentSMS})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if n := len([]rune(res.Body)); n > 40 {
		t.Fatalf("expected at most 40 runes, got %d", n)
	}
	if strings.Contains(res.Body, "<b>") {
		t.Fatalf("expected html stripped, got %q", res.Body)
	}
}

func TestGenerateScoresMissingPersonalization(t *testing.T) {
	store := followuptest.NewStore()
	lead := testLead()
	llm := &stubCompleter{text: "Hello Dana, call me when you can."}
	gen := NewGenerator(store, llm, logger.New("test"))

	res, err := gen.Generate(context.Background(), Request{
		LeadID:      lead.ID,
		Lead:        &lead,
		ContentType: domain.ContentCallScript,
		Fields:      []string{"lead.first_name", "listing.address"},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.QualityScore != 0.5 {
		t.Fatalf("expected quality 0.5, got %f", res.QualityScore)
	}
}

func TestGeneratePromptOverrideReplacesInstruction(t *testing.T) {
	store := followuptest.NewStore()
	lead := testLead()
	llm := &stubCompleter{text: "Short note."}
	gen := NewGenerator(store, llm, logger.New("test"))
	override := "Write a two-line note about open house hours."

	if _, err := gen.Generate(context.Background(), Request{Lead: &lead, ContentType: domain.ContentEmail, PromptOverride: &override}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	user := llm.prompts[0].User
	if !strings.Contains(user, override) || strings.Contains(user, "follow-up email") {
		t.Fatalf("expected override instruction only, got %q", user)
	}
}

func TestGenerateProviderFailureWritesNothing(t *testing.T) {
	store := followuptest.NewStore()
	lead := testLead()
	llm := &stubCompleter{err: apperr.Dependency("completion failed", errors.New("timeout"))}
	gen := NewGenerator(store, llm, logger.New("test"))

	_, err := gen.Generate(context.Background(), Request{Lead: &lead, ContentType: domain.ContentEmail})
	if !apperr.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if len(store.Generations) != 0 {
		t.Fatalf("expected no generation rows, got %d", len(store.Generations))
	}
}

func TestArchiveFailureDoesNotFailGeneration(t *testing.T) {
	store := followuptest.NewStore()
	lead := testLead()
	archive := &failingArchive{}
	gen := NewGenerator(store, &stubCompleter{text: "Hi Dana"}, logger.New("test"), WithArchive(archive))

	if _, err := gen.Generate(context.Background(), Request{Lead: &lead, ContentType: domain.ContentSocialPost}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if archive.calls != 1 {
		t.Fatalf("expected one archive attempt, got %d", archive.calls)
	}
}

func TestRenderLeavesUnknownPlaceholdersEmpty(t *testing.T) {
	got := Render("Hi {{ lead.name }}, {{unknown.key}}done", map[string]string{"lead.name": "Sam"})
	if got != "Hi Sam, done" {
		t.Fatalf("unexpected render %q", got)
	}
}
