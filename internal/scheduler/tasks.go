package scheduler

import (
	"encoding/json"
	"fmt"

	"nurture_backend/internal/followup/domain"

	"github.com/hibiken/asynq"
)

const TaskFollowupStepDue = "followups.step_due"

type FollowupStepDuePayload struct {
	JobID        string `json:"jobId"`
	EnrollmentID string `json:"enrollmentId"`
	StepID       string `json:"stepId"`
}

func NewFollowupStepDueTask(payload FollowupStepDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFollowupStepDue, data), nil
}

func ParseFollowupStepDuePayload(task *asynq.Task) (FollowupStepDuePayload, error) {
	var payload FollowupStepDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return FollowupStepDuePayload{}, err
	}
	return payload, nil
}

// stepTaskID is unique per dispatcher claim. A reclaimed job never collides
// with a task the queue still retains (archived, pending or scheduled), while
// enqueueing the same claim twice is a no-op.
func stepTaskID(job domain.ScheduledJob) string {
	return fmt.Sprintf("followup-step:%s:%d", job.ID, job.EnqueueCount)
}
