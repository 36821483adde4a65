package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/deskhive/deskhive/internal/jobs"
	"github.com/deskhive/deskhive/internal/notifications"
)

// NotifyDeliverJob persists and delivers notifications off the request path.
type NotifyDeliverJob struct {
	Service *notifications.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewNotifyDeliverJob initialises the delivery handler.
func NewNotifyDeliverJob(service *notifications.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotifyDeliverJob {
	return &NotifyDeliverJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle processes one TaskNotifyDeliver task.
func (j *NotifyDeliverJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("notify deliver: handler not configured")
	}
	var payload NotifyDeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskNotifyDeliver)
	_, err := j.Service.Deliver(ctx, notifications.Notification{
		UserID:   payload.UserID,
		Kind:     payload.Kind,
		Title:    payload.Title,
		Body:     payload.Body,
		TicketID: payload.TicketID,
	})
	if err != nil && j.Logger != nil {
		j.Logger.Error("deliver notification", slog.Any("error", err), slog.Int64("user_id", payload.UserID))
	}
	return tracker.End(err)
}
