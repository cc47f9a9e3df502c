// Package postcall implements the background pipeline that runs after a call
// completes: quality check, score adjustment, follow-up scheduling,
// notifications, CRM sync, and automation triggers. Failed jobs reschedule
// themselves on a fixed delay and land in a manual-review state once the
// attempt budget is spent.
package postcall

import (
	"encoding/json"

	"voicedesk_backend/internal/calls/activity"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const TaskPostCallProcess = "calls.postcall.process"

const TaskFollowUpDue = "calls.followup.due"

// FollowUpDuePayload fires when a scheduled follow-up comes due.
type FollowUpDuePayload struct {
	CallID   uuid.UUID `json:"callId"`
	TenantID uuid.UUID `json:"tenantId"`
	LeadID   uuid.UUID `json:"leadId"`
	Phone    string    `json:"phone"`
	Reason   string    `json:"reason"`
}

func NewPostCallTask(job activity.PostCallJob) (*asynq.Task, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPostCallProcess, data), nil
}

func ParsePostCallPayload(task *asynq.Task) (activity.PostCallJob, error) {
	var job activity.PostCallJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return activity.PostCallJob{}, err
	}
	return job, nil
}

func NewFollowUpDueTask(payload FollowUpDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFollowUpDue, data), nil
}

func ParseFollowUpDuePayload(task *asynq.Task) (FollowUpDuePayload, error) {
	var payload FollowUpDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return FollowUpDuePayload{}, err
	}
	return payload, nil
}
