// Package completion provides a single-shot prompt completion abstraction on
// top of ADK language models.
package completion

import (
	"context"
	"errors"
	"strings"

	"nurture_backend/platform/apperr"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// Prompt is one completion request.
type Prompt struct {
	System      string
	User        string
	JSON        bool
	Temperature float32
}

// Result is the model output.
type Result struct {
	Text   string
	Model  string
	Tokens int
}

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (Result, error)
	ModelName() string
}

// ErrEmptyCompletion is returned when the model produced no text.
var ErrEmptyCompletion = errors.New("model returned no text")

// LLMCompleter implements Completer over an adk model.LLM.
type LLMCompleter struct {
	llm model.LLM
}

// New wraps llm.
func New(llm model.LLM) *LLMCompleter {
	return &LLMCompleter{llm: llm}
}

// ModelName reports the configured model.
func (c *LLMCompleter) ModelName() string {
	return c.llm.Name()
}

// Complete sends prompt as a single user turn. Provider failures are
// returned as dependency errors.
func (c *LLMCompleter) Complete(ctx context.Context, prompt Prompt) (Result, error) {
	cfg := &genai.GenerateContentConfig{}
	if strings.TrimSpace(prompt.System) != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(prompt.System)}}
	}
	if prompt.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	if prompt.Temperature > 0 {
		temp := prompt.Temperature
		cfg.Temperature = &temp
	}

	req := &model.LLMRequest{
		Model:    c.llm.Name(),
		Contents: []*genai.Content{{Role: "user", Parts: []*genai.Part{genai.NewPartFromText(prompt.User)}}},
		Config:   cfg,
	}

	var (
		b      strings.Builder
		tokens int
	)
	for resp, err := range c.llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return Result{}, apperr.Dependency("completion failed", err)
		}
		if resp == nil {
			continue
		}
		if resp.UsageMetadata != nil {
			tokens = int(resp.UsageMetadata.TotalTokenCount)
		}
		if resp.Content == nil {
			continue
		}
		for _, part := range resp.Content.Parts {
			if part != nil {
				b.WriteString(part.Text)
			}
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return Result{}, apperr.Dependency("completion failed", ErrEmptyCompletion)
	}
	return Result{Text: text, Model: c.llm.Name(), Tokens: tokens}, nil
}

var _ Completer = (*LLMCompleter)(nil)
