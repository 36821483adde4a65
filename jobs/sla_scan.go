package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/deskhive/deskhive/internal/jobs"
	"github.com/deskhive/deskhive/internal/tickets"
)

const defaultScanLimit = 500

// SLAScanJob periodically flags tickets past their response deadline.
type SLAScanJob struct {
	Tickets *tickets.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSLAScanJob initialises the scan handler.
func NewSLAScanJob(service *tickets.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *SLAScanJob {
	return &SLAScanJob{Tickets: service, Logger: logger, Metrics: metrics}
}

// Handle executes one scan pass.
func (j *SLAScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Tickets == nil {
		return errors.New("sla scan: handler not configured")
	}
	var payload SLAScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultScanLimit
	}
	tracker := j.Metrics.Track(TaskTicketSLAScan)
	flagged, err := j.Tickets.ScanSLA(ctx, payload.Limit)
	if err == nil {
		j.Metrics.AddSLABreaches(flagged)
		if j.Logger != nil && flagged > 0 {
			j.Logger.Info("sla scan", slog.Int("flagged", flagged))
		}
	}
	return tracker.End(err)
}
