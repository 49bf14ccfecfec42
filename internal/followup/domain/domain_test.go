package domain

import (
	"context"
	"testing"
	"time"
)

func TestNextContactAtUsesStartDateBeforeFirstContact(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e := LeadFollowup{StartDate: start}
	step := SequenceStep{DelayDays: 1, DelayHours: 3}

	got := NextContactAt(e, step)
	want := start.Add(27 * time.Hour)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestNextContactAtUsesLastContactAfterFirstStep(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	last := start.Add(24 * time.Hour)
	e := LeadFollowup{StartDate: start, LastContactDate: &last}

	got := NextContactAt(e, SequenceStep{DelayDays: 3})
	if want := last.Add(72 * time.Hour); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestZeroDelayFiresAtAnchor(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if got := NextContactAt(LeadFollowup{StartDate: start}, SequenceStep{}); !got.Equal(start) {
		t.Fatalf("expected %s, got %s", start, got)
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	all := []EnrollmentStatus{EnrollmentActive, EnrollmentPaused, EnrollmentCompleted, EnrollmentConverted, EnrollmentUnsubscribed}
	for _, from := range []EnrollmentStatus{EnrollmentCompleted, EnrollmentConverted, EnrollmentUnsubscribed} {
		if !from.IsTerminal() {
			t.Fatalf("expected %s to be terminal", from)
		}
		for _, to := range all {
			if CanTransition(from, to) {
				t.Fatalf("unexpected transition %s -> %s", from, to)
			}
		}
	}
}

func TestPauseResumeTransitions(t *testing.T) {
	if !CanTransition(EnrollmentActive, EnrollmentPaused) || !CanTransition(EnrollmentPaused, EnrollmentActive) {
		t.Fatal("expected active <-> paused to be allowed")
	}
	if CanTransition(EnrollmentPaused, EnrollmentCompleted) {
		t.Fatal("paused enrollments complete only after resuming")
	}
}

func TestArchivedSequencesStayArchived(t *testing.T) {
	if CanSequenceTransition(SequenceArchived, SequenceActive) {
		t.Fatal("archived sequence must not be reactivated")
	}
	if !CanSequenceTransition(SequencePaused, SequenceActive) {
		t.Fatal("expected paused -> active")
	}
	if CanSequenceTransition(SequenceActive, SequenceStatus("deleted")) {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestContentTypeForStep(t *testing.T) {
	cases := map[StepType]ContentType{
		StepEmail:  ContentEmail,
		StepSMS:    ContentSMS,
		StepCall:   ContentCallScript,
		StepSocial: ContentSocialPost,
		StepAIChat: ContentSMS,
	}
	for step, want := range cases {
		if got := ContentTypeForStep(step); got != want {
			t.Fatalf("%s: expected %s, got %s", step, want, got)
		}
	}
}

func TestRuleEvaluator(t *testing.T) {
	ctx := context.Background()
	eval := RuleEvaluator{}
	lead := LeadContext{Email: "dana@example.com", Source: "zillow"}

	cases := []struct {
		name       string
		conditions map[string]any
		score      int
		want       bool
		wantErr    bool
	}{
		{name: "empty allows", conditions: nil, want: true},
		{name: "score above min", conditions: map[string]any{"min_engagement_score": float64(40)}, score: 55, want: true},
		{name: "score below min", conditions: map[string]any{"min_engagement_score": float64(40)}, score: 10, want: false},
		{name: "phone required but missing", conditions: map[string]any{"require_phone": true}, want: false},
		{name: "email required and present", conditions: map[string]any{"require_email": true}, want: true},
		{name: "source listed", conditions: map[string]any{"lead_sources": []any{"Zillow", "open_house"}}, want: true},
		{name: "source not listed", conditions: map[string]any{"lead_sources": []any{"referral"}}, want: false},
		{name: "unknown key", conditions: map[string]any{"requires_moon": true}, wantErr: true},
		{name: "bad type", conditions: map[string]any{"require_email": "yes"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := ConditionInput{
				Enrollment: LeadFollowup{EngagementScore: tc.score},
				Step:       SequenceStep{Conditions: tc.conditions},
				Lead:       lead,
			}
			got, err := eval.Allow(ctx, in)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestAlwaysAllowIgnoresConditions(t *testing.T) {
	in := ConditionInput{Step: SequenceStep{Conditions: map[string]any{"min_engagement_score": 99}}}
	ok, err := AlwaysAllow{}.Allow(context.Background(), in)
	if err != nil || !ok {
		t.Fatalf("expected allow, got %v, %v", ok, err)
	}
}
