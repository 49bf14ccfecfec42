package transport

import (
	"nurture_backend/internal/followup/domain"
	"nurture_backend/platform/validator"
)

// RegisterValidations adds the follow-up enum tags used by the request DTOs.
func RegisterValidations(val *validator.Validator) error {
	rules := map[string]func(string) bool{
		"trigger_type": func(v string) bool { return domain.TriggerType(v).Valid() },
		"step_type":    func(v string) bool { return domain.StepType(v).Valid() },
		"content_type": func(v string) bool { return domain.ContentType(v).Valid() },
		"engagement_status": func(v string) bool {
			return domain.InteractionStatus(v).IsEngagementReport()
		},
	}
	for tag, ok := range rules {
		if err := val.RegisterEnum(tag, ok); err != nil {
			return err
		}
	}
	return nil
}
