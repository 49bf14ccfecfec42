package domain

import (
	"context"
	"fmt"
	"strings"
)

// ConditionInput is everything a step condition may inspect.
type ConditionInput struct {
	Enrollment LeadFollowup
	Step       SequenceStep
	Lead       LeadContext
}

// ConditionEvaluator decides whether a step should run for an enrollment.
type ConditionEvaluator interface {
	Allow(ctx context.Context, in ConditionInput) (bool, error)
}

// AlwaysAllow runs every step.
type AlwaysAllow struct{}

func (AlwaysAllow) Allow(context.Context, ConditionInput) (bool, error) { return true, nil }

// RuleEvaluator interprets a small set of declarative keys in a step's
// conditions document. An empty document allows the step.
//
//	min_engagement_score  number   enrollment score must be >= value
//	max_engagement_score  number   enrollment score must be <= value
//	require_email         bool     lead must have an email address
//	require_phone         bool     lead must have a phone number
//	require_listing       bool     lead must be linked to a listing
//	lead_sources          []string lead source must be one of the values
//
// Unknown keys are rejected so a typo cannot silently disable a rule.
type RuleEvaluator struct{}

func (RuleEvaluator) Allow(_ context.Context, in ConditionInput) (bool, error) {
	for key, raw := range in.Step.Conditions {
		ok, err := evaluateRule(key, raw, in)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evaluateRule(key string, raw any, in ConditionInput) (bool, error) {
	switch key {
	case "min_engagement_score":
		n, err := asNumber(key, raw)
		if err != nil {
			return false, err
		}
		return float64(in.Enrollment.EngagementScore) >= n, nil
	case "max_engagement_score":
		n, err := asNumber(key, raw)
		if err != nil {
			return false, err
		}
		return float64(in.Enrollment.EngagementScore) <= n, nil
	case "require_email":
		return requireIf(key, raw, strings.TrimSpace(in.Lead.Email) != "")
	case "require_phone":
		return requireIf(key, raw, strings.TrimSpace(in.Lead.Phone) != "")
	case "require_listing":
		return requireIf(key, raw, in.Lead.Listing != nil)
	case "lead_sources":
		list, ok := raw.([]any)
		if !ok {
			return false, fmt.Errorf("condition %s must be a list", key)
		}
		for _, item := range list {
			if s, ok := item.(string); ok && strings.EqualFold(s, in.Lead.Source) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown condition %q", key)
	}
}

func requireIf(key string, raw any, present bool) (bool, error) {
	flag, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("condition %s must be a boolean", key)
	}
	return !flag || present, nil
}

func asNumber(key string, raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("condition %s must be a number", key)
	}
}
