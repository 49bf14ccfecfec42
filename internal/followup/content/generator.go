// Package content writes personalised outreach with a language model.
package content

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nurture_backend/internal/followup/domain"
	"nurture_backend/internal/followup/repository"
	"nurture_backend/platform/ai/completion"
	"nurture_backend/platform/apperr"
	"nurture_backend/platform/logger"
	"nurture_backend/platform/sanitize"
	"nurture_backend/platform/storage"

	"github.com/google/uuid"
)

const defaultSMSMaxLength = 160

// Store is the persistence needed by the generator.
type Store interface {
	repository.ContentStore
	repository.LeadReader
}

// Request describes one piece of content to write.
type Request struct {
	LeadID      uuid.UUID
	ContentType domain.ContentType
	// Lead is loaded from the store when nil.
	Lead            *domain.LeadContext
	Template        string
	Subject         string
	PromptOverride  *string
	Fields          []string
	Personalization map[string]string
}

// Result is generated content plus generation metadata.
type Result struct {
	GenerationID  uuid.UUID
	ContentType   domain.ContentType
	Subject       string
	Body          string
	Model         string
	TokenEstimate int
	LatencyMs     int64
	QualityScore  float64
}

// Generator produces outreach content. Each call makes exactly one model
// request and appends one audit row.
type Generator struct {
	store        Store
	completer    completion.Completer
	archive      storage.Archiver
	log          *logger.Logger
	smsMaxLength int
	now          func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithArchive stores every prompt and response in an object store.
func WithArchive(a storage.Archiver) Option {
	return func(g *Generator) { g.archive = a }
}

// WithSMSMaxLength caps short-form output.
func WithSMSMaxLength(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.smsMaxLength = n
		}
	}
}

// NewGenerator creates a content generator.
func NewGenerator(store Store, completer completion.Completer, log *logger.Logger, opts ...Option) *Generator {
	g := &Generator{
		store:        store,
		completer:    completer,
		archive:      storage.NoopArchive{},
		log:          log,
		smsMaxLength: defaultSMSMaxLength,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate writes content for a lead and records the generation.
func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	if !req.ContentType.Valid() {
		return Result{}, apperr.Validation("unknown content type")
	}

	lead, err := g.leadFor(ctx, req)
	if err != nil {
		return Result{}, err
	}

	values := Personalization(lead)
	for k, v := range req.Personalization {
		values[k] = v
	}
	required := requiredValues(req.Fields, values)

	override := ""
	if req.PromptOverride != nil {
		override = *req.PromptOverride
	}
	configured := strings.TrimSpace(Render(req.Subject, values))
	prompt := buildPrompt(promptInput{
		contentType:     req.ContentType,
		lead:            lead,
		override:        override,
		draft:           Render(req.Template, values),
		subject:         configured,
		requiredValues:  required,
		personalization: req.Personalization,
		smsMaxLength:    g.smsMaxLength,
	})

	started := g.now()
	out, err := g.completer.Complete(ctx, completion.Prompt{System: systemPrompt, User: prompt, Temperature: 0.7})
	if err != nil {
		return Result{}, fmt.Errorf("generate %s: %w", req.ContentType, err)
	}
	latency := g.now().Sub(started).Milliseconds()

	subject, body := g.shape(req.ContentType, out.Text, configured)
	if body == "" {
		return Result{}, apperr.DataShape("generated content is empty", completion.ErrEmptyCompletion)
	}

	result := Result{
		GenerationID:  uuid.New(),
		ContentType:   req.ContentType,
		Subject:       subject,
		Body:          body,
		Model:         out.Model,
		TokenEstimate: EstimateTokens(body),
		LatencyMs:     latency,
		QualityScore:  QualityScore(body, required),
	}

	personalization := make(map[string]any, len(values))
	for k, v := range values {
		if v != "" {
			personalization[k] = v
		}
	}
	err = g.store.InsertGeneration(ctx, domain.AIContentGeneration{
		ID:                  result.GenerationID,
		LeadID:              lead.ID,
		ContentType:         req.ContentType,
		PromptUsed:          prompt,
		GeneratedContent:    body,
		PersonalizationData: personalization,
		ModelName:           result.Model,
		TokenEstimate:       result.TokenEstimate,
		GenerationLatencyMs: result.LatencyMs,
		QualityScore:        result.QualityScore,
		CreatedAt:           started,
	})
	if err != nil {
		return Result{}, err
	}

	g.archiveExchange(ctx, result, prompt, out.Text)
	return result, nil
}

func (g *Generator) leadFor(ctx context.Context, req Request) (domain.LeadContext, error) {
	if req.Lead != nil {
		return *req.Lead, nil
	}
	return g.store.GetLeadContext(ctx, req.LeadID)
}

// shape post-processes raw model text for the channel it is written for.
// A configured email subject always wins over one the model wrote.
func (g *Generator) shape(ct domain.ContentType, raw, configuredSubject string) (string, string) {
	switch ct {
	case domain.ContentEmail:
		subject, body := splitSubject(raw)
		if configuredSubject != "" {
			subject = configuredSubject
		}
		return subject, body
	case domain.ContentSMS:
		return "", sanitize.Truncate(sanitize.Text(raw), g.smsMaxLength)
	default:
		return "", strings.TrimSpace(raw)
	}
}

func (g *Generator) archiveExchange(ctx context.Context, r Result, prompt, raw string) {
	key := fmt.Sprintf("content/%s/%s.json", g.now().UTC().Format("2006/01/02"), r.GenerationID)
	doc := map[string]any{
		"generationId": r.GenerationID,
		"contentType":  r.ContentType,
		"model":        r.Model,
		"prompt":       prompt,
		"response":     raw,
	}
	if err := g.archive.PutJSON(ctx, key, doc); err != nil {
		g.log.Warn("content archive failed", "generationId", r.GenerationID, "error", err)
	}
}
