package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nurture_backend/internal/followup/domain"
	"nurture_backend/platform/apperr"
	"nurture_backend/platform/config"
)

// ChatStarter opens an assisted conversation with a lead through the chat
// service of the surrounding application.
type ChatStarter struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type startChatRequest struct {
	LeadID    string `json:"leadId"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Opener    string `json:"opener"`
	Reference string `json:"reference"`
}

type startChatResponse struct {
	ConversationID string `json:"conversationId"`
}

// NewChatStarter returns nil when no chat service is configured.
func NewChatStarter(cfg config.ChatConfig) *ChatStarter {
	if !cfg.IsChatEnabled() {
		return nil
	}
	return &ChatStarter{
		baseURL: strings.TrimRight(cfg.GetChatStarterURL(), "/"),
		apiKey:  cfg.GetChatStarterKey(),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *ChatStarter) Channel() domain.StepType { return domain.StepAIChat }

func (c *ChatStarter) Dispatch(ctx context.Context, msg Message) (Receipt, error) {
	if strings.TrimSpace(msg.Lead.Email) == "" && strings.TrimSpace(msg.Lead.Phone) == "" {
		return Receipt{}, apperr.Validation("lead has no contact details for a chat")
	}

	payload, err := json.Marshal(startChatRequest{
		LeadID:    msg.Lead.ID.String(),
		Name:      msg.Lead.Name,
		Email:     msg.Lead.Email,
		Phone:     msg.Lead.Phone,
		Opener:    msg.Body,
		Reference: msg.Reference(),
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/conversations", bytes.NewReader(payload))
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Receipt{}, apperr.Dependency("chat service request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("chat service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		if resp.StatusCode < http.StatusInternalServerError && resp.StatusCode != http.StatusTooManyRequests {
			return Receipt{}, apperr.Wrap(apperr.KindValidation, "chat rejected", err)
		}
		return Receipt{}, apperr.Dependency("chat service unavailable", err)
	}

	var out startChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Receipt{}, apperr.DataShape("chat service returned an invalid response", err)
	}
	return Receipt{Channel: domain.StepAIChat, ProviderID: out.ConversationID}, nil
}
