package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobclock/internal/cache/cachetest"
	"github.com/kiranshivaraju/jobclock/internal/jobs"
	"github.com/kiranshivaraju/jobclock/internal/store/storetest"
	"github.com/kiranshivaraju/jobclock/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *jobs.Service
	store *storetest.Memory
	cache *cachetest.Memory
	now   time.Time
	tech  jobs.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: storetest.NewMemory(),
		cache: cachetest.NewMemory(),
		now:   t0,
		tech:  jobs.Actor{TechnicianID: uuid.New()},
	}
	f.svc = jobs.NewService(f.store, f.cache,
		jobs.WithClock(func() time.Time { return f.now }),
		jobs.WithDefaultTarget(3600),
	)
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) createJob(t *testing.T) *models.Job {
	t.Helper()
	job, err := f.svc.Create(context.Background(), jobs.NewJob{
		TechnicianID: f.tech.TechnicianID,
		Description:  "Timing belt replacement",
	})
	require.NoError(t, err)
	return job
}

func (f *fixture) apply(t *testing.T, jobID uuid.UUID, action models.Action, reason string) *models.Job {
	t.Helper()
	job, err := f.svc.Apply(context.Background(), f.tech, jobID, action, models.ActionRequest{Reason: reason})
	require.NoError(t, err)
	return job
}

// --- Create ---

func TestCreate_DefaultsAndCaches(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)

	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, int64(3600), job.TargetSeconds)
	assert.Equal(t, t0, job.CreatedAt)

	st, found, err := f.cache.GetJobStatus(context.Background(), job.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.JobStatusPending, st.Status)
	assert.Equal(t, f.tech.TechnicianID, st.TechnicianID)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, jobs.NewJob{TechnicianID: uuid.New(), Description: "  "})
	assert.ErrorIs(t, err, jobs.ErrInvalidJob)

	_, err = f.svc.Create(ctx, jobs.NewJob{Description: "Oil change"})
	assert.ErrorIs(t, err, jobs.ErrInvalidJob)

	_, err = f.svc.Create(ctx, jobs.NewJob{TechnicianID: uuid.New(), Description: "Oil change", TargetSeconds: -1})
	assert.ErrorIs(t, err, jobs.ErrInvalidJob)
}

// --- Lifecycle ---

func TestApply_FullLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t)

	started := f.apply(t, job.ID, models.ActionStart, "")
	assert.Equal(t, models.JobStatusRunning, started.Status)
	require.NotNil(t, started.StartTime)
	assert.Equal(t, t0, *started.StartTime)

	f.advance(30 * time.Second)
	paused := f.apply(t, job.ID, models.ActionPause, "waiting for parts")
	assert.Equal(t, models.JobStatusPaused, paused.Status)
	assert.Equal(t, int64(30), paused.TotalWorkSeconds)
	assert.Nil(t, paused.StartTime)

	f.advance(10 * time.Minute)
	resumed := f.apply(t, job.ID, models.ActionResume, "")
	assert.Equal(t, models.JobStatusInProgress, resumed.Status)
	assert.Equal(t, int64(30), resumed.TotalWorkSeconds)
	require.NotNil(t, resumed.StartTime)

	f.advance(45 * time.Second)
	stopped := f.apply(t, job.ID, models.ActionStop, "")
	assert.Equal(t, models.JobStatusWaitingForApproval, stopped.Status)
	assert.Equal(t, int64(75), stopped.TotalWorkSeconds)
	assert.Nil(t, stopped.StartTime)
	require.NotNil(t, stopped.EndTime)

	logs, err := f.svc.PauseLogs(ctx, f.tech, job.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "waiting for parts", logs[0].Reason)
	assert.Equal(t, int64(30), logs[0].TimerValue)
	require.NotNil(t, logs[0].ResumedAt)
	assert.Equal(t, t0.Add(30*time.Second+10*time.Minute), *logs[0].ResumedAt)

	approved, err := f.svc.Approve(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, approved.Status)
}

func TestApply_StartIsIdempotentWhileActive(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)

	first := f.apply(t, job.ID, models.ActionStart, "")
	f.advance(20 * time.Second)
	again := f.apply(t, job.ID, models.ActionStart, "")

	assert.Equal(t, first.StartTime, again.StartTime)
	assert.Equal(t, models.JobStatusRunning, again.Status)
}

func TestApply_StopFromPausedClosesPauseLog(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)

	f.apply(t, job.ID, models.ActionStart, "")
	f.advance(20 * time.Second)
	f.apply(t, job.ID, models.ActionPause, "lunch")
	f.advance(time.Hour)
	stopped := f.apply(t, job.ID, models.ActionStop, "")

	assert.Equal(t, int64(20), stopped.TotalWorkSeconds)

	logs, err := f.svc.PauseLogs(context.Background(), f.tech, job.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.NotNil(t, logs[0].ResumedAt)
}

func TestApply_RetryThenRestartAccumulates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t)

	f.apply(t, job.ID, models.ActionStart, "")
	f.advance(100 * time.Second)
	f.apply(t, job.ID, models.ActionStop, "")

	declined, err := f.svc.Retry(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusDeclinedAtApproval, declined.Status)

	restarted := f.apply(t, job.ID, models.ActionStart, "")
	assert.Equal(t, models.JobStatusRunning, restarted.Status)
	assert.Nil(t, restarted.EndTime)

	f.advance(50 * time.Second)
	stopped := f.apply(t, job.ID, models.ActionStop, "")
	assert.Equal(t, int64(150), stopped.TotalWorkSeconds)
}

func TestApply_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name   string
		status string
		action models.Action
	}{
		{"pause pending", models.JobStatusPending, models.ActionPause},
		{"resume running", models.JobStatusRunning, models.ActionResume},
		{"stop pending", models.JobStatusPending, models.ActionStop},
		{"start paused", models.JobStatusPaused, models.ActionStart},
		{"start waiting", models.JobStatusWaitingForApproval, models.ActionStart},
		{"stop completed", models.JobStatusCompleted, models.ActionStop},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			job := f.createJob(t)
			job.Status = tc.status
			f.store.SetJob(job)

			_, err := f.svc.Apply(context.Background(), f.tech, job.ID, tc.action, models.ActionRequest{Reason: "r"})
			assert.ErrorIs(t, err, jobs.ErrInvalidTransition)
		})
	}
}

func TestApply_UnknownAction(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)

	_, err := f.svc.Apply(context.Background(), f.tech, job.ID, models.Action("approve"), models.ActionRequest{})
	assert.ErrorIs(t, err, jobs.ErrInvalidTransition)
}

func TestApply_PauseRequiresReason(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)
	f.apply(t, job.ID, models.ActionStart, "")

	_, err := f.svc.Apply(context.Background(), f.tech, job.ID, models.ActionPause, models.ActionRequest{Reason: " \t"})
	assert.ErrorIs(t, err, jobs.ErrMissingReason)

	got, err := f.svc.Get(context.Background(), f.tech, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
}

func TestApply_AdminPauseWithoutReason(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)
	f.apply(t, job.ID, models.ActionStart, "")
	f.advance(45 * time.Second)

	admin := jobs.Actor{TechnicianID: uuid.New(), Admin: true}
	paused, err := f.svc.Apply(context.Background(), admin, job.ID, models.ActionPause, models.ActionRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPaused, paused.Status)
	assert.Equal(t, int64(45), paused.TotalWorkSeconds)

	logs, err := f.svc.PauseLogs(context.Background(), admin, job.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, jobs.AdminPauseReason, logs[0].Reason)
}

func TestApply_AdminPauseKeepsGivenReason(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)
	f.apply(t, job.ID, models.ActionStart, "")

	admin := jobs.Actor{TechnicianID: uuid.New(), Admin: true}
	_, err := f.svc.Apply(context.Background(), admin, job.ID, models.ActionPause, models.ActionRequest{Reason: "parts on order"})
	require.NoError(t, err)

	logs, err := f.svc.PauseLogs(context.Background(), admin, job.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "parts on order", logs[0].Reason)
}

// --- Acceptance ---

func TestAccept_ThenStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t)

	accepted, err := f.svc.Accept(ctx, f.tech, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusAccepted, accepted.Status)

	again, err := f.svc.Accept(ctx, f.tech, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusAccepted, again.Status)

	started := f.apply(t, job.ID, models.ActionStart, "")
	assert.Equal(t, models.JobStatusRunning, started.Status)
	require.NotNil(t, started.StartTime)
}

func TestDecline_BlocksStartUntilAccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t)

	declined, err := f.svc.Decline(ctx, f.tech, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusDeclined, declined.Status)

	_, err = f.svc.Apply(ctx, f.tech, job.ID, models.ActionStart, models.ActionRequest{})
	assert.ErrorIs(t, err, jobs.ErrInvalidTransition)

	accepted, err := f.svc.Accept(ctx, f.tech, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusAccepted, accepted.Status)
}

func TestAcceptDecline_AuthorizationAndState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t)

	other := jobs.Actor{TechnicianID: uuid.New()}
	_, err := f.svc.Accept(ctx, other, job.ID)
	assert.ErrorIs(t, err, jobs.ErrForbidden)
	_, err = f.svc.Decline(ctx, other, job.ID)
	assert.ErrorIs(t, err, jobs.ErrForbidden)

	f.apply(t, job.ID, models.ActionStart, "")
	_, err = f.svc.Decline(ctx, f.tech, job.ID)
	assert.ErrorIs(t, err, jobs.ErrInvalidTransition)
	_, err = f.svc.Accept(ctx, f.tech, job.ID)
	assert.ErrorIs(t, err, jobs.ErrInvalidTransition)
}

func TestApprove_OnlyFromWaiting(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)

	_, err := f.svc.Approve(context.Background(), job.ID)
	assert.ErrorIs(t, err, jobs.ErrInvalidTransition)

	_, err = f.svc.Retry(context.Background(), job.ID)
	assert.ErrorIs(t, err, jobs.ErrInvalidTransition)
}

// --- Authorization ---

func TestApply_OtherTechnicianForbidden(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)

	other := jobs.Actor{TechnicianID: uuid.New()}
	_, err := f.svc.Apply(context.Background(), other, job.ID, models.ActionStart, models.ActionRequest{})
	assert.ErrorIs(t, err, jobs.ErrForbidden)

	_, err = f.svc.Status(context.Background(), other, job.ID)
	assert.ErrorIs(t, err, jobs.ErrForbidden)

	admin := jobs.Actor{TechnicianID: uuid.New(), Admin: true}
	started, err := f.svc.Apply(context.Background(), admin, job.ID, models.ActionStart, models.ActionRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, started.Status)
}

func TestApply_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Apply(context.Background(), f.tech, uuid.New(), models.ActionStart, models.ActionRequest{})
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

// --- Concurrency ---

func TestApply_RetriesOnConcurrentChange(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)
	f.apply(t, job.ID, models.ActionStart, "")

	// Another request pauses the job between our read and write.
	raced := false
	f.store.BeforeSave = func() {
		if raced {
			return
		}
		raced = true
		cur, err := f.store.GetJob(context.Background(), job.ID)
		require.NoError(t, err)
		cur.Status = models.JobStatusPaused
		cur.StartTime = nil
		f.store.SetJob(cur)
	}

	f.advance(10 * time.Second)
	stopped, err := f.svc.Apply(context.Background(), f.tech, job.ID, models.ActionStop, models.ActionRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusWaitingForApproval, stopped.Status)
	assert.True(t, raced)
}

// --- Status & page state ---

func TestStatus_CacheFirstThenStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t)
	f.apply(t, job.ID, models.ActionStart, "")

	st, err := f.svc.Status(ctx, f.tech, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, st.Status)

	require.NoError(t, f.cache.DeleteJobStatus(ctx, job.ID))
	st, err = f.svc.Status(ctx, f.tech, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, st.Status)

	_, found, err := f.cache.GetJobStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, found, "store fallback should repopulate the cache")
}

func TestStatus_CacheFailureFallsBack(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)
	f.cache.Err = errors.New("redis down")

	st, err := f.svc.Status(context.Background(), f.tech, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, st.Status)
}

func TestApply_CacheFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)
	f.cache.Err = errors.New("redis down")

	started := f.apply(t, job.ID, models.ActionStart, "")
	assert.Equal(t, models.JobStatusRunning, started.Status)
}

func TestPageState(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)

	ps, err := f.svc.PageState(context.Background(), f.tech, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PageState{
		InitialElapsed: "0",
		TargetSeconds:  "3600",
		JobStartTime:   "null",
		Status:         models.JobStatusPending,
	}, ps)

	f.apply(t, job.ID, models.ActionStart, "")
	ps, err = f.svc.PageState(context.Background(), f.tech, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-04T09:00:00Z", ps.JobStartTime)
}

// --- Listing ---

func TestLiveAndActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	running := f.createJob(t)
	f.apply(t, running.ID, models.ActionStart, "")

	done := f.createJob(t)
	done.Status = models.JobStatusCompleted
	f.store.SetJob(done)

	declined := f.createJob(t)
	_, err := f.svc.Decline(ctx, f.tech, declined.ID)
	require.NoError(t, err)

	f.createJob(t)

	live, err := f.svc.Live(ctx)
	require.NoError(t, err)
	assert.Len(t, live, 2)
	for _, j := range live {
		assert.NotEqual(t, declined.ID, j.ID)
	}

	active, err := f.svc.Active(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, running.ID, active[0].ID)

	mine, err := f.svc.ForTechnician(ctx, f.tech)
	require.NoError(t, err)
	assert.Len(t, mine, 4)
}
