package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobclock/internal/store"
	"github.com/kiranshivaraju/jobclock/pkg/models"
)

// Operations outside the clock actions in models.Action. Accept and decline
// belong to the assigned technician, approve and retry to admins.
const (
	opAccept  = "accept"
	opDecline = "decline"
	opApprove = "approve"
	opRetry   = "retry"
)

// transition computes the job after op at now. changed is false when the
// operation is an idempotent repeat and nothing needs writing.
func transition(job models.Job, op, reason string, now time.Time) (next models.Job, change store.PauseLogChange, changed bool, err error) {
	next = job
	next.UpdatedAt = now

	switch op {
	case opAccept:
		switch job.Status {
		case models.JobStatusAccepted:
			return job, change, false, nil
		case models.JobStatusPending, models.JobStatusDeclined:
			next.Status = models.JobStatusAccepted
			return next, change, true, nil
		}

	case opDecline:
		switch job.Status {
		case models.JobStatusDeclined:
			return job, change, false, nil
		case models.JobStatusPending, models.JobStatusAccepted:
			next.Status = models.JobStatusDeclined
			return next, change, true, nil
		}

	case string(models.ActionStart):
		switch job.Status {
		case models.JobStatusRunning, models.JobStatusInProgress:
			return job, change, false, nil
		case models.JobStatusPending, models.JobStatusAccepted, models.JobStatusDeclinedAtApproval:
			next.Status = models.JobStatusRunning
			next.StartTime = &now
			next.EndTime = nil
			return next, change, true, nil
		}

	case string(models.ActionPause):
		if !job.Active() {
			break
		}
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return job, change, false, ErrMissingReason
		}
		next.TotalWorkSeconds = job.ElapsedAt(now)
		next.StartTime = nil
		next.Status = models.JobStatusPaused
		change.Open = &models.PauseLog{
			ID:         uuid.New(),
			JobID:      job.ID,
			PausedAt:   now,
			TimerValue: next.TotalWorkSeconds,
			Reason:     reason,
		}
		return next, change, true, nil

	case string(models.ActionResume):
		if job.Status != models.JobStatusPaused {
			break
		}
		next.StartTime = &now
		next.Status = models.JobStatusInProgress
		change.Close = &now
		return next, change, true, nil

	case string(models.ActionStop):
		if !job.Active() && job.Status != models.JobStatusPaused {
			break
		}
		next.TotalWorkSeconds = job.ElapsedAt(now)
		next.StartTime = nil
		next.EndTime = &now
		next.Status = models.JobStatusWaitingForApproval
		change.Close = &now
		return next, change, true, nil

	case opApprove:
		if job.Status != models.JobStatusWaitingForApproval {
			break
		}
		next.Status = models.JobStatusCompleted
		return next, change, true, nil

	case opRetry:
		if job.Status != models.JobStatusWaitingForApproval {
			break
		}
		next.Status = models.JobStatusDeclinedAtApproval
		return next, change, true, nil

	default:
		return job, change, false, fmt.Errorf("%w: unknown operation %q", ErrInvalidTransition, op)
	}

	return job, change, false, fmt.Errorf("%w: cannot %s a job that is %s", ErrInvalidTransition, op, job.Status)
}
