package models

import (
	"time"

	"github.com/google/uuid"
)

// Job statuses as stored in jobs.status and shown to technicians.
const (
	JobStatusPending            = "Pending"
	JobStatusAccepted           = "Accepted"
	JobStatusDeclined           = "Declined"
	JobStatusRunning            = "Running"
	JobStatusPaused             = "Paused"
	JobStatusInProgress         = "In Progress"
	JobStatusWaitingForApproval = "Waiting for Approval"
	JobStatusCompleted          = "Completed"
	JobStatusDeclinedAtApproval = "Declined at Approval"
)

// DefaultTargetSeconds is the expected job duration when none is configured.
const DefaultTargetSeconds = 5400

// Job is a unit of work assigned to a technician. TotalWorkSeconds holds the
// completed working intervals; StartTime is set only while the clock runs, so
// the live total is TotalWorkSeconds + (now - StartTime).
type Job struct {
	ID                  uuid.UUID  `db:"id"                    json:"id"`
	TechnicianID        uuid.UUID  `db:"technician_id"         json:"technician_id"`
	Description         string     `db:"description"           json:"description"`
	VehicleRegistration string     `db:"vehicle_registration"  json:"vehicle_registration,omitempty"`
	Status              string     `db:"status"                json:"status"`
	TargetSeconds       int64      `db:"target_seconds"        json:"target_seconds"`
	TotalWorkSeconds    int64      `db:"total_work_seconds"    json:"total_work_seconds"`
	StartTime           *time.Time `db:"start_time"            json:"start_time"`
	EndTime             *time.Time `db:"end_time"              json:"end_time,omitempty"`
	CreatedAt           time.Time  `db:"created_at"            json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"            json:"updated_at"`
}

// Active reports whether the job clock is currently running on the server.
func (j *Job) Active() bool {
	return j.Status == JobStatusRunning || j.Status == JobStatusInProgress
}

// ElapsedAt returns the total worked seconds at the given instant.
func (j *Job) ElapsedAt(now time.Time) int64 {
	total := j.TotalWorkSeconds
	if j.StartTime != nil {
		if d := int64(now.Sub(*j.StartTime) / time.Second); d > 0 {
			total += d
		}
	}
	return total
}
