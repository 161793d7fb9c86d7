package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobclock/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrConflict is returned when a job changed status between read and write.
var ErrConflict = errors.New("concurrent update conflict")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, error)
	SaveJobClock(ctx context.Context, job *models.Job, fromStatus string, change PauseLogChange) error
	ListPauseLogs(ctx context.Context, jobID uuid.UUID) ([]*models.PauseLog, error)

	UpsertPushSubscription(ctx context.Context, sub *models.PushSubscription) error
	DeletePushSubscription(ctx context.Context, endpoint string) error
	ListPushSubscriptions(ctx context.Context, technicianID uuid.UUID) ([]*models.PushSubscription, error)
}

// JobFilter narrows ListJobs. Zero values match everything.
type JobFilter struct {
	TechnicianID  uuid.UUID
	Statuses      []string
	ExcludeStatus []string
	Limit         int
}

// PauseLogChange is the pause log write that accompanies a job clock
// update. Open inserts a new open log; Close stamps resumed_at on the
// newest open log of the job.
type PauseLogChange struct {
	Open  *models.PauseLog
	Close *time.Time
}
