package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"nurture_backend/platform/apperr"
	"nurture_backend/platform/logger"
)

type gatewayConfig struct{ url string }

func (g gatewayConfig) GetSMSGatewayURL() string { return g.url }
func (g gatewayConfig) GetSMSGatewayKey() string { return "user:pass" }
func (g gatewayConfig) GetSMSSender() string     { return "Nurture" }
func (g gatewayConfig) GetSMSMaxLength() int     { return 160 }
func (g gatewayConfig) IsSMSEnabled() bool       { return g.url != "" }

func TestNewClientReturnsNilWhenDisabled(t *testing.T) {
	if c := NewClient(gatewayConfig{}, "US", logger.New("test")); c != nil {
		t.Fatal("expected nil client without gateway url")
	}
}

func TestSendNormalizesNumberAndReturnsID(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") == "" {
			t.Errorf("missing authorization header")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"messageId":"sms-1","status":"queued"}`))
	}))
	defer srv.Close()

	c := NewClient(gatewayConfig{url: srv.URL + "/"}, "US", logger.New("test"))
	id, err := c.Send(context.Background(), "(415) 555-2671", "See you Saturday!", "ref")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "sms-1" {
		t.Fatalf("unexpected id %q", id)
	}
	if got.To != "+14155552671" || got.From != "Nurture" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestSendRejectsInvalidNumberWithoutCallingGateway(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer srv.Close()

	c := NewClient(gatewayConfig{url: srv.URL}, "US", logger.New("test"))
	_, err := c.Send(context.Background(), "n/a", "hi", "")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if called {
		t.Fatal("gateway should not be called for invalid numbers")
	}
}

func TestSendTreatsServerErrorsAsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(gatewayConfig{url: srv.URL}, "US", logger.New("test"))
	_, err := c.Send(context.Background(), "+14155552671", "hi", "")
	if !apperr.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}
