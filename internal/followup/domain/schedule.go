package domain

import (
	"fmt"
	"time"
)

// StepDelay is the wait between the previous contact and this step.
func StepDelay(step SequenceStep) time.Duration {
	return time.Duration(step.DelayDays)*24*time.Hour + time.Duration(step.DelayHours)*time.Hour
}

// ScheduleAnchor is the instant delays are measured from: the last contact,
// or the enrollment start before any contact happened.
func ScheduleAnchor(e LeadFollowup) time.Time {
	if e.LastContactDate != nil {
		return *e.LastContactDate
	}
	return e.StartDate
}

// NextContactAt computes when step should fire for enrollment e.
func NextContactAt(e LeadFollowup, step SequenceStep) time.Time {
	return ScheduleAnchor(e).Add(StepDelay(step))
}

// ValidateStepTiming rejects negative delays and non-positive step numbers.
func ValidateStepTiming(stepNumber, delayDays, delayHours int) error {
	if stepNumber < 1 {
		return fmt.Errorf("step_number must be at least 1")
	}
	if delayDays < 0 || delayHours < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	return nil
}

// ContentTypeForStep maps a channel to the prompt family used to write it.
func ContentTypeForStep(t StepType) ContentType {
	switch t {
	case StepEmail:
		return ContentEmail
	case StepCall:
		return ContentCallScript
	case StepSocial:
		return ContentSocialPost
	default:
		// sms and ai_chat openers are both short-form text
		return ContentSMS
	}
}

// InteractionType names the interaction recorded for a step outcome.
func InteractionType(t StepType, outcome string) string {
	return string(t) + "_" + outcome
}
