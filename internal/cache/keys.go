package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:status:%s", jobID)
}

// RateLimitKey names the request counter of one technician for the window
// starting at windowStart.
func RateLimitKey(technicianID uuid.UUID, windowStart time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", technicianID, windowStart.Unix())
}

// ReminderKey names the claim for one reminder window of a job. Windows are
// numbered by truncating at to interval.
func ReminderKey(jobID uuid.UUID, at time.Time, interval time.Duration) string {
	window := at.Truncate(interval).Unix()
	return fmt.Sprintf("reminder:%s:%d", jobID, window)
}
