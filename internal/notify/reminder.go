package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/jobclock/internal/cache"
	"github.com/kiranshivaraju/jobclock/pkg/models"
)

// DefaultReminderInterval is the period between active-job reminders.
const DefaultReminderInterval = time.Hour

// ActiveJobs lists jobs whose clock is running.
type ActiveJobs interface {
	Active(ctx context.Context) ([]*models.Job, error)
}

// Claimer grants a key to exactly one caller until it expires.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Reminder periodically pushes a "Job Reminder" to the technician of every
// active job. Each job is reminded at most once per interval window across
// all server replicas sharing the cache.
type Reminder struct {
	jobs     ActiveJobs
	sender   Sender
	claims   Claimer
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func NewReminder(jobs ActiveJobs, sender Sender, claims Claimer, interval time.Duration, logger *slog.Logger) *Reminder {
	if interval <= 0 {
		interval = DefaultReminderInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reminder{
		jobs:     jobs,
		sender:   sender,
		claims:   claims,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// ReminderPayload is the notification sent for an active job.
func ReminderPayload(job *models.Job) Payload {
	return Payload{
		Title: "Job Reminder",
		Body:  "You have an active job: " + job.Description,
		URL:   fmt.Sprintf("/job_control/%s", job.ID),
	}
}

// Run sends reminders every interval until ctx is done.
func (r *Reminder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("job reminders started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error("job reminder pass failed", "error", err)
		}
	}
}

// RunOnce sends one round of reminders and returns how many jobs were
// notified.
func (r *Reminder) RunOnce(ctx context.Context) (int, error) {
	active, err := r.jobs.Active(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active jobs: %w", err)
	}

	now := r.now()
	notified := 0
	for _, job := range active {
		claimed, err := r.claims.Claim(ctx, cache.ReminderKey(job.ID, now, r.interval), r.interval)
		if err != nil {
			r.logger.Warn("reminder claim failed", "job_id", job.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}

		sent, err := r.sender.SendToTechnician(ctx, job.TechnicianID, ReminderPayload(job))
		if err != nil {
			r.logger.Warn("job reminder delivery incomplete", "job_id", job.ID, "technician_id", job.TechnicianID, "sent", sent, "error", err)
		}
		if sent > 0 {
			notified++
		}
	}
	r.logger.Debug("job reminder pass complete", "active", len(active), "notified", notified)
	return notified, nil
}
