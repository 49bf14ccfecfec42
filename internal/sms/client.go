// Package sms sends text messages through an HTTP SMS gateway.
package sms

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nurture_backend/platform/apperr"
	"nurture_backend/platform/config"
	"nurture_backend/platform/logger"
	"nurture_backend/platform/phone"
)

type Client struct {
	baseURL string
	apiKey  string
	sender  string
	region  string
	http    *http.Client
	log     *logger.Logger
}

type sendRequest struct {
	To        string `json:"to"`
	From      string `json:"from,omitempty"`
	Body      string `json:"body"`
	Reference string `json:"reference,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// NewClient returns nil when no gateway is configured.
func NewClient(cfg config.SMSConfig, region string, log *logger.Logger) *Client {
	if !cfg.IsSMSEnabled() {
		return nil
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetSMSGatewayURL(), "/"),
		apiKey:  cfg.GetSMSGatewayKey(),
		sender:  cfg.GetSMSSender(),
		region:  region,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// Send delivers body to phoneNumber and returns the gateway message id.
func (c *Client) Send(ctx context.Context, phoneNumber, body, reference string) (string, error) {
	normalized, err := phone.ToE164(phoneNumber, c.region)
	if err != nil {
		return "", apperr.Validation("lead phone number is not a valid mobile number")
	}

	payload, err := json.Marshal(sendRequest{
		To:        normalized,
		From:      c.sender,
		Body:      body,
		Reference: reference,
	})
	if err != nil {
		return "", fmt.Errorf("marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(c.apiKey))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.Dependency("sms gateway request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		if resp.StatusCode < http.StatusInternalServerError && resp.StatusCode != http.StatusTooManyRequests {
			return "", apperr.Wrap(apperr.KindValidation, "sms rejected by gateway", err)
		}
		return "", apperr.Dependency("sms gateway unavailable", err)
	}

	var out sendResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)

	c.log.Info("sms sent via gateway", "to", normalized, "messageId", out.MessageID)
	return out.MessageID, nil
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "bearer ") || strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
