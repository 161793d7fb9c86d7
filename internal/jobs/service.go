package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobclock/internal/cache"
	"github.com/kiranshivaraju/jobclock/internal/store"
	"github.com/kiranshivaraju/jobclock/pkg/models"
)

// Sentinel errors returned by Service methods.
var (
	ErrNotFound          = errors.New("job not found")
	ErrForbidden         = errors.New("job belongs to another technician")
	ErrInvalidTransition = errors.New("invalid job transition")
	ErrMissingReason     = errors.New("pause reason is required")
	ErrInvalidJob        = errors.New("invalid job")
)

// maxSaveAttempts bounds retries when a concurrent request changed the job
// between read and write.
const maxSaveAttempts = 3

// AdminPauseReason is recorded when an admin pauses a job without a reason.
const AdminPauseReason = "Paused by Admin"

// Actor is the authenticated caller of a job operation.
type Actor struct {
	TechnicianID uuid.UUID
	Admin        bool
}

// Service is the server of record for job clocks.
type Service struct {
	store         store.Store
	cache         cache.Cache
	statusTTL     time.Duration
	defaultTarget int64
	now           func() time.Time
	logger        *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithStatusTTL sets how long cached job statuses live.
func WithStatusTTL(ttl time.Duration) Option {
	return func(s *Service) { s.statusTTL = ttl }
}

// WithDefaultTarget sets the target used for jobs created without one.
func WithDefaultTarget(seconds int64) Option {
	return func(s *Service) { s.defaultTarget = seconds }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a job service.
func NewService(st store.Store, c cache.Cache, opts ...Option) *Service {
	s := &Service{
		store:         st,
		cache:         c,
		statusTTL:     30 * time.Minute,
		defaultTarget: models.DefaultTargetSeconds,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewJob is the input for Create.
type NewJob struct {
	TechnicianID        uuid.UUID `json:"technician_id"`
	Description         string    `json:"description"`
	VehicleRegistration string    `json:"vehicle_registration"`
	TargetSeconds       int64     `json:"target_seconds"`
}

// Create adds a Pending job for a technician.
func (s *Service) Create(ctx context.Context, in NewJob) (*models.Job, error) {
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidJob)
	}
	if in.TechnicianID == uuid.Nil {
		return nil, fmt.Errorf("%w: technician_id is required", ErrInvalidJob)
	}
	if in.TargetSeconds < 0 {
		return nil, fmt.Errorf("%w: target_seconds must not be negative", ErrInvalidJob)
	}
	target := in.TargetSeconds
	if target == 0 {
		target = s.defaultTarget
	}

	now := s.now()
	job := &models.Job{
		ID:                  uuid.New(),
		TechnicianID:        in.TechnicianID,
		Description:         desc,
		VehicleRegistration: strings.TrimSpace(in.VehicleRegistration),
		Status:              models.JobStatusPending,
		TargetSeconds:       target,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.logger.Info("job created", "job_id", job.ID, "technician_id", job.TechnicianID, "target_seconds", target)
	s.cacheStatus(ctx, job)
	return job, nil
}

// Get returns a job the actor may see.
func (s *Service) Get(ctx context.Context, actor Actor, jobID uuid.UUID) (*models.Job, error) {
	job, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, job); err != nil {
		return nil, err
	}
	return job, nil
}

// PageState returns the seed a client session starts from.
func (s *Service) PageState(ctx context.Context, actor Actor, jobID uuid.UUID) (models.PageState, error) {
	job, err := s.Get(ctx, actor, jobID)
	if err != nil {
		return models.PageState{}, err
	}
	return models.NewPageState(job), nil
}

// Status returns the cached clock of a job, falling back to the store on a
// miss or cache failure.
func (s *Service) Status(ctx context.Context, actor Actor, jobID uuid.UUID) (*cache.JobStatus, error) {
	cached, found, err := s.cache.GetJobStatus(ctx, jobID)
	if err != nil {
		s.logger.Warn("job status cache read failed", "job_id", jobID, "error", err)
	}
	if found && err == nil {
		if !actor.Admin && cached.TechnicianID != actor.TechnicianID {
			return nil, ErrForbidden
		}
		return cached, nil
	}

	job, err := s.Get(ctx, actor, jobID)
	if err != nil {
		return nil, err
	}
	s.cacheStatus(ctx, job)
	st := statusOf(job)
	return &st, nil
}

// Apply performs a technician control action. req.Elapsed is the client's
// own total; it is logged against the server total and never trusted.
func (s *Service) Apply(ctx context.Context, actor Actor, jobID uuid.UUID, action models.Action, req models.ActionRequest) (*models.Job, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}

	reason := req.Reason
	if action == models.ActionPause && actor.Admin && strings.TrimSpace(reason) == "" {
		reason = AdminPauseReason
	}

	job, err := s.mutate(ctx, jobID, string(action), reason, func(job *models.Job) error {
		return authorize(actor, job)
	})
	if err != nil {
		return nil, err
	}

	serverTotal := job.ElapsedAt(s.now())
	if drift := req.Elapsed - serverTotal; drift != 0 {
		s.logger.Info("client clock drift", "job_id", jobID, "action", action,
			"client_elapsed", req.Elapsed, "server_elapsed", serverTotal, "drift_seconds", drift)
	}
	return job, nil
}

// Accept records that the assigned technician takes the job on.
func (s *Service) Accept(ctx context.Context, actor Actor, jobID uuid.UUID) (*models.Job, error) {
	return s.mutate(ctx, jobID, opAccept, "", func(job *models.Job) error {
		return authorize(actor, job)
	})
}

// Decline records that the assigned technician turned the job down.
func (s *Service) Decline(ctx context.Context, actor Actor, jobID uuid.UUID) (*models.Job, error) {
	return s.mutate(ctx, jobID, opDecline, "", func(job *models.Job) error {
		return authorize(actor, job)
	})
}

// Approve marks a job waiting for approval as Completed.
func (s *Service) Approve(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	return s.mutate(ctx, jobID, opApprove, "", nil)
}

// Retry sends a job waiting for approval back to the technician.
func (s *Service) Retry(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	return s.mutate(ctx, jobID, opRetry, "", nil)
}

// Live returns every job neither Completed nor Declined.
func (s *Service) Live(ctx context.Context) ([]*models.Job, error) {
	jobs, err := s.store.ListJobs(ctx, store.JobFilter{
		ExcludeStatus: []string{models.JobStatusCompleted, models.JobStatusDeclined},
	})
	if err != nil {
		return nil, fmt.Errorf("list live jobs: %w", err)
	}
	return jobs, nil
}

// Active returns every job whose clock is running.
func (s *Service) Active(ctx context.Context) ([]*models.Job, error) {
	jobs, err := s.store.ListJobs(ctx, store.JobFilter{
		Statuses: []string{models.JobStatusRunning, models.JobStatusInProgress},
	})
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	return jobs, nil
}

// ForTechnician returns the actor's own jobs, newest first.
func (s *Service) ForTechnician(ctx context.Context, actor Actor) ([]*models.Job, error) {
	jobs, err := s.store.ListJobs(ctx, store.JobFilter{TechnicianID: actor.TechnicianID})
	if err != nil {
		return nil, fmt.Errorf("list technician jobs: %w", err)
	}
	return jobs, nil
}

// PauseLogs returns the pause history of a job.
func (s *Service) PauseLogs(ctx context.Context, actor Actor, jobID uuid.UUID) ([]*models.PauseLog, error) {
	if _, err := s.Get(ctx, actor, jobID); err != nil {
		return nil, err
	}
	logs, err := s.store.ListPauseLogs(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list pause logs: %w", err)
	}
	return logs, nil
}

// mutate loads the job, runs check, applies op and persists it, retrying
// when another request changed the job in between.
func (s *Service) mutate(ctx context.Context, jobID uuid.UUID, op, reason string, check func(*models.Job) error) (*models.Job, error) {
	for attempt := 1; ; attempt++ {
		job, err := s.load(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if check != nil {
			if err := check(job); err != nil {
				return nil, err
			}
		}

		next, change, changed, err := transition(*job, op, reason, s.now())
		if err != nil {
			return nil, err
		}
		if !changed {
			return job, nil
		}

		err = s.store.SaveJobClock(ctx, &next, job.Status, change)
		if errors.Is(err, store.ErrConflict) && attempt < maxSaveAttempts {
			s.logger.Debug("job changed concurrently, retrying", "job_id", jobID, "op", op, "attempt", attempt)
			continue
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("save job: %w", err)
		}

		s.logger.Info("job transition", "job_id", jobID, "op", op, "from", job.Status, "to", next.Status,
			"total_work_seconds", next.TotalWorkSeconds)
		s.cacheStatus(ctx, &next)
		return &next, nil
	}
}

func (s *Service) load(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	return job, nil
}

func (s *Service) cacheStatus(ctx context.Context, job *models.Job) {
	if err := s.cache.SetJobStatus(ctx, statusOf(job), s.statusTTL); err != nil {
		s.logger.Warn("job status cache write failed", "job_id", job.ID, "error", err)
	}
}

func statusOf(job *models.Job) cache.JobStatus {
	return cache.JobStatus{
		JobID:        job.ID,
		TechnicianID: job.TechnicianID,
		Status:       job.Status,
		TotalElapsed: job.TotalWorkSeconds,
		StartTime:    job.StartTime,
		UpdatedAt:    job.UpdatedAt,
	}
}

func authorize(actor Actor, job *models.Job) error {
	if actor.Admin || actor.TechnicianID == job.TechnicianID {
		return nil
	}
	return ErrForbidden
}
