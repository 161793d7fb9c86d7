package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobclock/internal/api/middleware"
	"github.com/kiranshivaraju/jobclock/internal/api/response"
	"github.com/kiranshivaraju/jobclock/internal/cache"
	"github.com/kiranshivaraju/jobclock/internal/jobs"
	"github.com/kiranshivaraju/jobclock/pkg/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// JobService is the job clock service the handlers depend on.
type JobService interface {
	Create(ctx context.Context, in jobs.NewJob) (*models.Job, error)
	Get(ctx context.Context, actor jobs.Actor, jobID uuid.UUID) (*models.Job, error)
	PageState(ctx context.Context, actor jobs.Actor, jobID uuid.UUID) (models.PageState, error)
	Status(ctx context.Context, actor jobs.Actor, jobID uuid.UUID) (*cache.JobStatus, error)
	Apply(ctx context.Context, actor jobs.Actor, jobID uuid.UUID, action models.Action, req models.ActionRequest) (*models.Job, error)
	Accept(ctx context.Context, actor jobs.Actor, jobID uuid.UUID) (*models.Job, error)
	Decline(ctx context.Context, actor jobs.Actor, jobID uuid.UUID) (*models.Job, error)
	Approve(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	Retry(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	Live(ctx context.Context) ([]*models.Job, error)
	ForTechnician(ctx context.Context, actor jobs.Actor) ([]*models.Job, error)
	PauseLogs(ctx context.Context, actor jobs.Actor, jobID uuid.UUID) ([]*models.PauseLog, error)
}

// NewControlHandler returns the handler for POST /api/v1/jobs/{jobID}/{action}.
// The response is the bare server state a timer client reconciles against.
func NewControlHandler(svc JobService, action models.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		var req models.ActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		job, err := svc.Apply(r.Context(), actor, jobID, action, req)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.Bare(w, models.NewServerState(job))
	}
}

// NewPageStateHandler returns the handler for GET /api/v1/jobs/{jobID}/page-state.
func NewPageStateHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}
		ps, err := svc.PageState(r.Context(), actor, jobID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.Bare(w, ps)
	}
}

// NewStatusHandler returns the handler for GET /api/v1/jobs/{jobID}/status.
func NewStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}
		st, err := svc.Status(r.Context(), actor, jobID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, st)
	}
}

func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}
		job, err := svc.Get(r.Context(), actor, jobID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, job)
	}
}

func NewPauseLogsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}
		logs, err := svc.PauseLogs(r.Context(), actor, jobID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, logs)
	}
}

// NewMyJobsHandler returns the handler for GET /api/v1/jobs: the caller's
// own jobs, newest first.
func NewMyJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		list, err := svc.ForTechnician(r.Context(), actor)
		if err != nil {
			writeJobError(w, err)
			return
		}
		writePage(w, r, list)
	}
}

// NewCreateJobHandler returns the handler for POST /api/v1/admin/jobs.
func NewCreateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in jobs.NewJob
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		job, err := svc.Create(r.Context(), in)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.Created(w, job)
	}
}

// NewLiveJobsHandler returns the handler for GET /api/v1/admin/jobs/live.
func NewLiveJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.Live(r.Context())
		if err != nil {
			writeJobError(w, err)
			return
		}
		writePage(w, r, list)
	}
}

// NewAcceptHandler returns the handler for POST /api/v1/jobs/{jobID}/accept.
func NewAcceptHandler(svc JobService) http.HandlerFunc {
	return technicianTransition(svc.Accept)
}

// NewDeclineHandler returns the handler for POST /api/v1/jobs/{jobID}/decline.
func NewDeclineHandler(svc JobService) http.HandlerFunc {
	return technicianTransition(svc.Decline)
}

func NewApproveHandler(svc JobService) http.HandlerFunc {
	return adminTransition(svc.Approve)
}

func NewRetryHandler(svc JobService) http.HandlerFunc {
	return adminTransition(svc.Retry)
}

func adminTransition(op func(context.Context, uuid.UUID) (*models.Job, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}
		job, err := op(r.Context(), jobID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, job)
	}
}

func technicianTransition(op func(context.Context, jobs.Actor, uuid.UUID) (*models.Job, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}
		job, err := op(r.Context(), actor, jobID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, job)
	}
}

func actorFrom(w http.ResponseWriter, r *http.Request) (jobs.Actor, bool) {
	techID, ok := middleware.GetTechnicianID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing technician", nil)
		return jobs.Actor{}, false
	}
	return jobs.Actor{TechnicianID: techID, Admin: middleware.IsAdmin(r)}, true
}

func jobIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Job not found", nil)
	case errors.Is(err, jobs.ErrForbidden):
		response.Error(w, http.StatusForbidden, "FORBIDDEN", "Job belongs to another technician", nil)
	case errors.Is(err, jobs.ErrInvalidTransition):
		response.Error(w, http.StatusConflict, "INVALID_TRANSITION", err.Error(), nil)
	case errors.Is(err, jobs.ErrMissingReason):
		response.Error(w, http.StatusUnprocessableEntity, "MISSING_REASON", "A pause reason is required", nil)
	case errors.Is(err, jobs.ErrInvalidJob):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}

// writePage reads the page and limit query parameters and writes that page
// of list.
func writePage[T any](w http.ResponseWriter, r *http.Request, list []T) {
	limit := queryInt(r, "limit", defaultPageLimit)
	if limit < 1 || limit > maxPageLimit {
		limit = defaultPageLimit
	}
	response.Paginate(w, list, queryInt(r, "page", 1), limit)
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
