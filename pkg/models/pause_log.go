package models

import (
	"time"

	"github.com/google/uuid"
)

// PauseLog records one pause interval of a job. ResumedAt stays nil while the
// job is still paused.
type PauseLog struct {
	ID         uuid.UUID  `db:"id"          json:"id"`
	JobID      uuid.UUID  `db:"job_id"      json:"job_id"`
	PausedAt   time.Time  `db:"paused_at"   json:"paused_at"`
	ResumedAt  *time.Time `db:"resumed_at"  json:"resumed_at,omitempty"`
	TimerValue int64      `db:"timer_value" json:"timer_value"`
	Reason     string     `db:"reason"      json:"reason"`
}
