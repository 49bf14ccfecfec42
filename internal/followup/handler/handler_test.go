package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"nurture_backend/internal/followup/analytics"
	"nurture_backend/internal/followup/content"
	"nurture_backend/internal/followup/domain"
	"nurture_backend/internal/followup/followuptest"
	"nurture_backend/internal/followup/scheduling"
	"nurture_backend/internal/followup/scoring"
	"nurture_backend/internal/followup/sequences"
	"nurture_backend/internal/followup/transport"
	"nurture_backend/platform/ai/completion"
	"nurture_backend/platform/httpkit"
	"nurture_backend/platform/logger"
	"nurture_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type stubCompleter struct{ text string }

func (s stubCompleter) Complete(context.Context, completion.Prompt) (completion.Result, error) {
	return completion.Result{Text: s.text, Model: "stub-model"}, nil
}

func (s stubCompleter) ModelName() string { return "stub-model" }

type testAPI struct {
	store  *followuptest.Store
	bus    *followuptest.Bus
	router *gin.Engine
	owner  uuid.UUID
	lead   domain.LeadContext
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.New("test")

	val := validator.New()
	if err := transport.RegisterValidations(val); err != nil {
		t.Fatalf("register validations: %v", err)
	}

	api := &testAPI{store: followuptest.NewStore(), bus: followuptest.NewBus(), owner: uuid.New()}
	api.lead = domain.LeadContext{ID: uuid.New(), OwnerID: api.owner, Name: "Dana Whitfield", Email: "dana@example.com"}
	api.store.AddLead(api.lead)

	enroll := scheduling.New(api.store, api.bus, log)
	enroll.RegisterHandlers(api.bus)
	llm := stubCompleter{text: "Hi Dana, the open house is Saturday at 2pm."}

	h := New(Deps{
		Sequences: sequences.New(api.store, log),
		Enroll:    enroll,
		Scores:    scoring.New(api.store, llm, log),
		Writer:    content.NewGenerator(api.store, llm, log),
		Stats:     analytics.New(api.store),
		Leads:     api.store,
		EventBus:  api.bus,
	}, val)

	r := gin.New()
	group := r.Group("/api/v1/followup", func(c *gin.Context) {
		c.Set(httpkit.ContextUserIDKey, api.owner)
		c.Next()
	})
	h.RegisterRoutes(group)
	api.router = r
	return api
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateSequenceValidatesTrigger(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/followup/sequences", map[string]any{"name": "Welcome", "triggerType": "birthday"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = api.do(t, http.MethodPost, "/api/v1/followup/sequences", map[string]any{"name": "Welcome", "triggerType": "lead_capture"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created transport.SequenceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Status != string(domain.SequenceActive) {
		t.Fatalf("expected active sequence, got %q", created.Status)
	}
}

func TestEnrollAndPause(t *testing.T) {
	api := newTestAPI(t)
	seq, _ := api.store.AddSequence(api.owner, domain.TriggerLeadCapture, domain.SequenceStep{StepType: domain.StepEmail, ContentTemplate: "Hi"})

	rec := api.do(t, http.MethodPost, "/api/v1/followup/enrollments", map[string]any{"leadId": api.lead.ID, "sequenceId": seq.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var e transport.EnrollmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = api.do(t, http.MethodPost, "/api/v1/followup/enrollments", map[string]any{"leadId": api.lead.ID, "sequenceId": seq.ID})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double enrollment, got %d", rec.Code)
	}

	rec = api.do(t, http.MethodPost, "/api/v1/followup/enrollments/"+e.ID.String()+"/pause", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := api.store.Enrollment(e.ID); got.Status != domain.EnrollmentPaused {
		t.Fatalf("expected paused, got %s", got.Status)
	}
}

func TestEnrollRejectsLeadOfAnotherOwner(t *testing.T) {
	api := newTestAPI(t)
	other := domain.LeadContext{ID: uuid.New(), OwnerID: uuid.New(), Name: "Sam"}
	api.store.AddLead(other)
	seq, _ := api.store.AddSequence(api.owner, domain.TriggerLeadCapture, domain.SequenceStep{StepType: domain.StepEmail})

	rec := api.do(t, http.MethodPost, "/api/v1/followup/enrollments", map[string]any{"leadId": other.ID, "sequenceId": seq.ID})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestTriggerEnrollsIntoMatchingSequences(t *testing.T) {
	api := newTestAPI(t)
	api.store.AddSequence(api.owner, domain.TriggerLeadCapture, domain.SequenceStep{StepType: domain.StepEmail, ContentTemplate: "Welcome"})
	api.store.AddSequence(api.owner, domain.TriggerPropertyViewed, domain.SequenceStep{StepType: domain.StepEmail, ContentTemplate: "Saw you looking"})

	rec := api.do(t, http.MethodPost, "/api/v1/followup/triggers", map[string]any{"type": "lead_capture", "leadId": api.lead.ID, "source": "zillow"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, http.MethodGet, "/api/v1/followup/enrollments?leadId="+api.lead.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var items []transport.EnrollmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one enrollment, got %d", len(items))
	}
}

func TestTriggerPropertyViewedRequiresListing(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/followup/triggers", map[string]any{"type": "property_viewed", "leadId": api.lead.ID})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGenerateContent(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/followup/content/generate", map[string]any{"leadId": api.lead.ID, "contentType": "sms"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out transport.GeneratedContentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Content == "" || out.Model != "stub-model" {
		t.Fatalf("unexpected response %+v", out)
	}
	if len(api.store.Generations) != 1 {
		t.Fatalf("expected one generation audit row, got %d", len(api.store.Generations))
	}
}

func TestListEnrollmentsRequiresOneFilter(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/v1/followup/enrollments", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAnalyticsEmptyOwner(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/v1/followup/analytics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out transport.AnalyticsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.TotalEnrollments != 0 || out.ConversionRate != 0 {
		t.Fatalf("expected empty summary, got %+v", out)
	}
}
