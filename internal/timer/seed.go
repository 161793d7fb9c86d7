package timer

import (
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/jobclock/pkg/models"
)

// Seed is the persisted job clock a session starts from.
type Seed struct {
	InitialElapsed int64
	TargetSeconds  int64
	JobStartTime   *time.Time
	Status         string
}

// SeedFromPage parses page state leniently: a missing, malformed or negative
// initialElapsed becomes 0, a missing or malformed targetSeconds becomes
// models.DefaultTargetSeconds, and a jobStartTime of "null" or garbage means
// no start time.
func SeedFromPage(ps models.PageState) Seed {
	seed := Seed{
		TargetSeconds: models.DefaultTargetSeconds,
		Status:        strings.TrimSpace(ps.Status),
	}

	if n, err := strconv.ParseInt(strings.TrimSpace(ps.InitialElapsed), 10, 64); err == nil && n > 0 {
		seed.InitialElapsed = n
	}
	if n, err := strconv.ParseInt(strings.TrimSpace(ps.TargetSeconds), 10, 64); err == nil && n > 0 {
		seed.TargetSeconds = n
	}

	raw := strings.TrimSpace(ps.JobStartTime)
	if raw != "" && raw != "null" {
		if t, err := models.ParseTimestamp(raw); err == nil {
			seed.JobStartTime = &t
		}
	}
	return seed
}
