package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNotifyDeliver delivers one notification to a user.
	TaskNotifyDeliver = "notify:deliver"
	// TaskTicketSLAScan flags tickets past their response deadline.
	TaskTicketSLAScan = "tickets:sla_scan"
)

// NotifyDeliverPayload carries one notification to the worker.
type NotifyDeliverPayload struct {
	UserID   int64  `json:"user_id"`
	Kind     string `json:"kind"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	TicketID *int64 `json:"ticket_id,omitempty"`
}

// NewNotifyDeliverTask constructs an Asynq task.
func NewNotifyDeliverTask(payload NotifyDeliverPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyDeliver, data), nil
}

// SLAScanPayload bounds one scan pass.
type SLAScanPayload struct {
	Limit int `json:"limit"`
}

// NewSLAScanTask constructs an Asynq task.
func NewSLAScanTask(payload SLAScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTicketSLAScan, data), nil
}
