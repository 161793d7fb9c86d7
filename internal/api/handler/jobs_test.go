package handler_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobclock/internal/api/handler"
	"github.com/kiranshivaraju/jobclock/internal/cache/cachetest"
	"github.com/kiranshivaraju/jobclock/internal/jobs"
	"github.com/kiranshivaraju/jobclock/internal/store/storetest"
	"github.com/kiranshivaraju/jobclock/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	jobPattern    = "/api/v1/jobs/{jobID}"
	actionPattern = "/api/v1/jobs/{jobID}/action"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type jobsFixture struct {
	svc   *jobs.Service
	store *storetest.Memory
	now   time.Time
	tech  uuid.UUID
	job   *models.Job
}

func newJobsFixture(t *testing.T) *jobsFixture {
	t.Helper()
	f := &jobsFixture{store: storetest.NewMemory(), now: t0, tech: uuid.New()}
	f.svc = jobs.NewService(f.store, cachetest.NewMemory(),
		jobs.WithClock(func() time.Time { return f.now }))

	job, err := f.svc.Create(context.Background(), jobs.NewJob{
		TechnicianID:  f.tech,
		Description:   "Brake pads front axle",
		TargetSeconds: 3600,
	})
	require.NoError(t, err)
	f.job = job
	return f
}

func (f *jobsFixture) control(t *testing.T, action models.Action, body any, c caller) map[string]any {
	t.Helper()
	rec := serve(t, handler.NewControlHandler(f.svc, action), http.MethodPost, actionPattern,
		"/api/v1/jobs/"+f.job.ID.String()+"/action", body, c)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode(t, rec)
}

func TestControl_Start_ReturnsBareServerState(t *testing.T) {
	f := newJobsFixture(t)

	body := f.control(t, models.ActionStart, models.ActionRequest{Elapsed: 0}, as(f.tech))

	assert.NotContains(t, body, "data")
	assert.Equal(t, "Running", body["status"])
	assert.Equal(t, float64(0), body["total_elapsed"])
	assert.Equal(t, t0.Format(time.RFC3339), body["start_time"])
}

func TestControl_PauseThenResume_FoldsElapsed(t *testing.T) {
	f := newJobsFixture(t)
	f.control(t, models.ActionStart, nil, as(f.tech))

	f.now = t0.Add(90 * time.Second)
	body := f.control(t, models.ActionPause, models.ActionRequest{Elapsed: 88, Reason: "waiting for parts"}, as(f.tech))
	assert.Equal(t, "Paused", body["status"])
	assert.Equal(t, float64(90), body["total_elapsed"])
	assert.Contains(t, body, "start_time")
	assert.Nil(t, body["start_time"])

	f.now = t0.Add(5 * time.Minute)
	body = f.control(t, models.ActionResume, nil, as(f.tech))
	assert.Equal(t, "In Progress", body["status"])
	assert.Equal(t, f.now.Format(time.RFC3339), body["start_time"])
}

func TestControl_EmptyBody_Accepted(t *testing.T) {
	f := newJobsFixture(t)

	body := f.control(t, models.ActionStart, nil, as(f.tech))
	assert.Equal(t, "Running", body["status"])
}

func TestControl_Errors(t *testing.T) {
	other := uuid.New()

	tests := []struct {
		name   string
		action models.Action
		path   func(f *jobsFixture) string
		body   any
		setup  func(t *testing.T, f *jobsFixture)
		caller func(f *jobsFixture) caller
		status int
		code   string
	}{
		{
			name: "pause without reason", action: models.ActionPause,
			setup: func(t *testing.T, f *jobsFixture) {
				f.control(t, models.ActionStart, nil, as(f.tech))
			},
			body: models.ActionRequest{Reason: "  "},
			status: http.StatusUnprocessableEntity, code: "MISSING_REASON",
		},
		{
			name: "resume from pending", action: models.ActionResume,
			status: http.StatusConflict, code: "INVALID_TRANSITION",
		},
		{
			name: "another technician's job", action: models.ActionStart,
			caller: func(*jobsFixture) caller { return as(other) },
			status: http.StatusForbidden, code: "FORBIDDEN",
		},
		{
			name: "unknown job", action: models.ActionStart,
			path:   func(*jobsFixture) string { return "/api/v1/jobs/" + uuid.NewString() + "/action" },
			status: http.StatusNotFound, code: "RESOURCE_NOT_FOUND",
		},
		{
			name: "malformed job id", action: models.ActionStart,
			path:   func(*jobsFixture) string { return "/api/v1/jobs/not-a-uuid/action" },
			status: http.StatusBadRequest, code: "INVALID_REQUEST",
		},
		{
			name: "malformed body", action: models.ActionStart,
			body:   "{not json",
			status: http.StatusBadRequest, code: "INVALID_REQUEST",
		},
		{
			name: "no identity", action: models.ActionStart,
			caller: func(*jobsFixture) caller { return anonymous },
			status: http.StatusUnauthorized, code: "INVALID_TOKEN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newJobsFixture(t)
			if tt.setup != nil {
				tt.setup(t, f)
			}
			path := "/api/v1/jobs/" + f.job.ID.String() + "/action"
			if tt.path != nil {
				path = tt.path(f)
			}
			c := as(f.tech)
			if tt.caller != nil {
				c = tt.caller(f)
			}

			rec := serve(t, handler.NewControlHandler(f.svc, tt.action), http.MethodPost, actionPattern, path, tt.body, c)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestControl_StoreFailure_500(t *testing.T) {
	f := newJobsFixture(t)
	f.store.Err = errors.New("connection reset")

	rec := serve(t, handler.NewControlHandler(f.svc, models.ActionStart), http.MethodPost, actionPattern,
		"/api/v1/jobs/"+f.job.ID.String()+"/action", nil, as(f.tech))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, rec))
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestControl_AdminMayControlAnyJob(t *testing.T) {
	f := newJobsFixture(t)

	body := f.control(t, models.ActionStart, nil, as(uuid.New(), models.ScopeAdmin))
	assert.Equal(t, "Running", body["status"])
}

func TestPageState_StringValued(t *testing.T) {
	f := newJobsFixture(t)

	rec := serve(t, handler.NewPageStateHandler(f.svc), http.MethodGet, jobPattern+"/page-state",
		"/api/v1/jobs/"+f.job.ID.String()+"/page-state", nil, as(f.tech))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "0", body["initialElapsed"])
	assert.Equal(t, "3600", body["targetSeconds"])
	assert.Equal(t, "null", body["jobStartTime"])
	assert.Equal(t, "Pending", body["status"])
}

func TestStatus_Envelope(t *testing.T) {
	f := newJobsFixture(t)
	f.control(t, models.ActionStart, nil, as(f.tech))

	rec := serve(t, handler.NewStatusHandler(f.svc), http.MethodGet, jobPattern+"/status",
		"/api/v1/jobs/"+f.job.ID.String()+"/status", nil, as(f.tech))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "Running", data["status"])
	assert.Equal(t, f.job.ID.String(), data["job_id"])
}

func TestGetJob(t *testing.T) {
	f := newJobsFixture(t)

	rec := serve(t, handler.NewGetJobHandler(f.svc), http.MethodGet, jobPattern,
		"/api/v1/jobs/"+f.job.ID.String(), nil, as(f.tech))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "Brake pads front axle", data["description"])
}

func TestPauseLogs(t *testing.T) {
	f := newJobsFixture(t)
	f.control(t, models.ActionStart, nil, as(f.tech))
	f.now = t0.Add(time.Minute)
	f.control(t, models.ActionPause, models.ActionRequest{Reason: "lunch"}, as(f.tech))

	rec := serve(t, handler.NewPauseLogsHandler(f.svc), http.MethodGet, jobPattern+"/pause-logs",
		"/api/v1/jobs/"+f.job.ID.String()+"/pause-logs", nil, as(f.tech))

	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode(t, rec)["data"].([]any)
	require.Len(t, logs, 1)
	entry := logs[0].(map[string]any)
	assert.Equal(t, "lunch", entry["reason"])
	assert.Equal(t, float64(60), entry["timer_value"])
}

func TestMyJobs_Paginated(t *testing.T) {
	f := newJobsFixture(t)
	for range 2 {
		_, err := f.svc.Create(context.Background(), jobs.NewJob{TechnicianID: f.tech, Description: "Oil change"})
		require.NoError(t, err)
	}
	_, err := f.svc.Create(context.Background(), jobs.NewJob{TechnicianID: uuid.New(), Description: "Not mine"})
	require.NoError(t, err)

	rec := serve(t, handler.NewMyJobsHandler(f.svc), http.MethodGet, "/api/v1/jobs",
		"/api/v1/jobs?page=1&limit=2", nil, as(f.tech))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body["data"].([]any), 2)
	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(3), meta["total"])
	assert.Equal(t, true, meta["has_next"])
}

func TestMyJobs_PagePastEnd_EmptyArray(t *testing.T) {
	f := newJobsFixture(t)

	rec := serve(t, handler.NewMyJobsHandler(f.svc), http.MethodGet, "/api/v1/jobs",
		"/api/v1/jobs?page=5", nil, as(f.tech))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, mustMarshal(t, decode(t, rec)["data"]))
}

func TestCreateJob(t *testing.T) {
	f := newJobsFixture(t)

	rec := serve(t, handler.NewCreateJobHandler(f.svc), http.MethodPost, "/api/v1/admin/jobs", "/api/v1/admin/jobs",
		map[string]any{"technician_id": f.tech, "description": "Clutch", "target_seconds": 7200}, as(uuid.New(), models.ScopeAdmin))

	require.Equal(t, http.StatusCreated, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "Pending", data["status"])
	assert.Equal(t, float64(7200), data["target_seconds"])
}

func TestCreateJob_Invalid(t *testing.T) {
	f := newJobsFixture(t)

	rec := serve(t, handler.NewCreateJobHandler(f.svc), http.MethodPost, "/api/v1/admin/jobs", "/api/v1/admin/jobs",
		map[string]any{"technician_id": f.tech}, as(uuid.New(), models.ScopeAdmin))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))
}

func TestLiveJobs_ExcludesCompletedAndDeclined(t *testing.T) {
	f := newJobsFixture(t)
	for _, status := range []string{models.JobStatusCompleted, models.JobStatusDeclined} {
		gone := *f.job
		gone.ID = uuid.New()
		gone.Status = status
		f.store.SetJob(&gone)
	}

	rec := serve(t, handler.NewLiveJobsHandler(f.svc), http.MethodGet, "/api/v1/admin/jobs/live",
		"/api/v1/admin/jobs/live", nil, as(uuid.New(), models.ScopeAdmin))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, f.job.ID.String(), data[0].(map[string]any)["id"])
}

func TestApproveAndRetry(t *testing.T) {
	approvePattern := "/api/v1/admin/jobs/{jobID}/approve"

	t.Run("approve waiting job", func(t *testing.T) {
		f := newJobsFixture(t)
		f.control(t, models.ActionStart, nil, as(f.tech))
		f.control(t, models.ActionStop, nil, as(f.tech))

		rec := serve(t, handler.NewApproveHandler(f.svc), http.MethodPost, approvePattern,
			"/api/v1/admin/jobs/"+f.job.ID.String()+"/approve", nil, admin)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Completed", decode(t, rec)["data"].(map[string]any)["status"])
	})

	t.Run("retry waiting job", func(t *testing.T) {
		f := newJobsFixture(t)
		f.control(t, models.ActionStart, nil, as(f.tech))
		f.control(t, models.ActionStop, nil, as(f.tech))

		rec := serve(t, handler.NewRetryHandler(f.svc), http.MethodPost, "/api/v1/admin/jobs/{jobID}/retry",
			"/api/v1/admin/jobs/"+f.job.ID.String()+"/retry", nil, admin)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Declined at Approval", decode(t, rec)["data"].(map[string]any)["status"])
	})

	t.Run("approve pending job conflicts", func(t *testing.T) {
		f := newJobsFixture(t)

		rec := serve(t, handler.NewApproveHandler(f.svc), http.MethodPost, approvePattern,
			"/api/v1/admin/jobs/"+f.job.ID.String()+"/approve", nil, admin)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "INVALID_TRANSITION", errorCode(t, rec))
	})
}

func TestAcceptAndDecline(t *testing.T) {
	acceptPattern := jobPattern + "/accept"
	declinePattern := jobPattern + "/decline"

	t.Run("accept then start", func(t *testing.T) {
		f := newJobsFixture(t)

		rec := serve(t, handler.NewAcceptHandler(f.svc), http.MethodPost, acceptPattern,
			"/api/v1/jobs/"+f.job.ID.String()+"/accept", nil, as(f.tech))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Accepted", decode(t, rec)["data"].(map[string]any)["status"])

		body := f.control(t, models.ActionStart, nil, as(f.tech))
		assert.Equal(t, "Running", body["status"])
	})

	t.Run("declined job cannot start", func(t *testing.T) {
		f := newJobsFixture(t)

		rec := serve(t, handler.NewDeclineHandler(f.svc), http.MethodPost, declinePattern,
			"/api/v1/jobs/"+f.job.ID.String()+"/decline", nil, as(f.tech))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Declined", decode(t, rec)["data"].(map[string]any)["status"])

		rec = serve(t, handler.NewControlHandler(f.svc, models.ActionStart), http.MethodPost, actionPattern,
			"/api/v1/jobs/"+f.job.ID.String()+"/action", nil, as(f.tech))
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "INVALID_TRANSITION", errorCode(t, rec))
	})

	t.Run("another technician's job", func(t *testing.T) {
		f := newJobsFixture(t)

		rec := serve(t, handler.NewDeclineHandler(f.svc), http.MethodPost, declinePattern,
			"/api/v1/jobs/"+f.job.ID.String()+"/decline", nil, as(uuid.New()))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "FORBIDDEN", errorCode(t, rec))
	})

	t.Run("no identity", func(t *testing.T) {
		f := newJobsFixture(t)

		rec := serve(t, handler.NewAcceptHandler(f.svc), http.MethodPost, acceptPattern,
			"/api/v1/jobs/"+f.job.ID.String()+"/accept", nil, anonymous)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestControl_AdminPauseWithoutReason(t *testing.T) {
	f := newJobsFixture(t)
	boss := as(uuid.New(), models.ScopeAdmin)
	f.control(t, models.ActionStart, nil, as(f.tech))

	f.now = t0.Add(time.Minute)
	body := f.control(t, models.ActionPause, nil, boss)
	assert.Equal(t, "Paused", body["status"])
	assert.Equal(t, float64(60), body["total_elapsed"])

	rec := serve(t, handler.NewPauseLogsHandler(f.svc), http.MethodGet, jobPattern+"/pause-logs",
		"/api/v1/jobs/"+f.job.ID.String()+"/pause-logs", nil, boss)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode(t, rec)["data"].([]any)
	require.Len(t, logs, 1)
	assert.Equal(t, jobs.AdminPauseReason, logs[0].(map[string]any)["reason"])
}
