package validator

import (
	"errors"
	"testing"
)

type stepRequest struct {
	StepNumber int    `json:"stepNumber" validate:"required,min=1"`
	Channel    string `json:"channel" validate:"channel"`
	Internal   string `json:"-" validate:"max=3"`
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	val := New()
	if err := val.RegisterEnum("channel", func(v string) bool { return v == "sms" || v == "email" }); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := val.Struct(stepRequest{StepNumber: 0, Channel: "fax"})
	var fields FieldErrors
	if !errors.As(err, &fields) {
		t.Fatalf("expected field errors, got %v", err)
	}
	if fields["stepNumber"] != "required" || fields["channel"] != "channel" {
		t.Fatalf("unexpected field errors %v", fields)
	}
	if err.Error() != "channel: channel; stepNumber: required" {
		t.Fatalf("unexpected message %q", err.Error())
	}

	if err := val.Struct(stepRequest{StepNumber: 2, Channel: "sms"}); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestStructKeepsRuleParameters(t *testing.T) {
	val := New()
	if err := val.RegisterEnum("channel", func(string) bool { return true }); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := val.Struct(stepRequest{StepNumber: 1, Internal: "toolong"})
	var fields FieldErrors
	if !errors.As(err, &fields) || fields["Internal"] != "max=3" {
		t.Fatalf("expected max=3 on the untagged field, got %v", err)
	}
}
