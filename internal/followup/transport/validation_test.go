package transport

import (
	"testing"

	"nurture_backend/platform/validator"

	"github.com/google/uuid"
)

func newValidator(t *testing.T) *validator.Validator {
	t.Helper()
	val := validator.New()
	if err := RegisterValidations(val); err != nil {
		t.Fatalf("register validations: %v", err)
	}
	return val
}

func TestCreateSequenceRequestRejectsUnknownTrigger(t *testing.T) {
	val := newValidator(t)

	ok := CreateSequenceRequest{Name: "New lead welcome", TriggerType: "lead_capture"}
	if err := val.Struct(ok); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	bad := CreateSequenceRequest{Name: "New lead welcome", TriggerType: "birthday"}
	if err := val.Struct(bad); err == nil {
		t.Fatal("expected unknown trigger to be rejected")
	}
}

func TestCreateStepRequestValidation(t *testing.T) {
	val := newValidator(t)

	cases := []struct {
		name    string
		req     CreateStepRequest
		wantErr bool
	}{
		{name: "valid", req: CreateStepRequest{StepNumber: 1, StepType: "email", DelayDays: 1}},
		{name: "zero step number", req: CreateStepRequest{StepNumber: 0, StepType: "email"}, wantErr: true},
		{name: "negative delay", req: CreateStepRequest{StepNumber: 2, StepType: "sms", DelayHours: -1}, wantErr: true},
		{name: "unknown channel", req: CreateStepRequest{StepNumber: 2, StepType: "fax"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := val.Struct(tc.req)
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestEngagementReportOnlyAcceptsReportableStatuses(t *testing.T) {
	val := newValidator(t)

	if err := val.Struct(EngagementReportRequest{Status: "opened"}); err != nil {
		t.Fatalf("expected opened to be accepted, got %v", err)
	}
	if err := val.Struct(EngagementReportRequest{Status: "sent"}); err == nil {
		t.Fatal("expected sent to be rejected as an engagement report")
	}
}

func TestGenerateContentRequestRequiresKnownContentType(t *testing.T) {
	val := newValidator(t)

	req := GenerateContentRequest{LeadID: uuid.New(), ContentType: "property_update"}
	if err := val.Struct(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req.ContentType = "newsletter"
	if err := val.Struct(req); err == nil {
		t.Fatal("expected unknown content type to be rejected")
	}
}
