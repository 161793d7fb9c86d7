package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/jobclock/internal/api/middleware"
	"github.com/kiranshivaraju/jobclock/internal/api/response"
	"github.com/kiranshivaraju/jobclock/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	StartHandler     http.HandlerFunc
	PauseHandler     http.HandlerFunc
	ResumeHandler    http.HandlerFunc
	StopHandler      http.HandlerFunc
	PageStateHandler http.HandlerFunc
	StatusHandler    http.HandlerFunc
	GetJobHandler    http.HandlerFunc
	PauseLogsHandler http.HandlerFunc
	MyJobsHandler    http.HandlerFunc
	AcceptHandler    http.HandlerFunc
	DeclineHandler   http.HandlerFunc

	VAPIDKeyHandler    http.HandlerFunc
	SubscribeHandler   http.HandlerFunc
	UnsubscribeHandler http.HandlerFunc

	CreateJobHandler http.HandlerFunc
	LiveJobsHandler  http.HandlerFunc
	ApproveHandler   http.HandlerFunc
	RetryHandler     http.HandlerFunc
	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Get("/api/v1/push/vapid-public-key", orNotImplemented(deps.VAPIDKeyHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/jobs", orNotImplemented(deps.MyJobsHandler))
		r.Route("/api/v1/jobs/{jobID}", func(r chi.Router) {
			r.Get("/", orNotImplemented(deps.GetJobHandler))
			r.Get("/page-state", orNotImplemented(deps.PageStateHandler))
			r.Get("/status", orNotImplemented(deps.StatusHandler))
			r.Get("/pause-logs", orNotImplemented(deps.PauseLogsHandler))

			r.Post("/accept", orNotImplemented(deps.AcceptHandler))
			r.Post("/decline", orNotImplemented(deps.DeclineHandler))

			r.Post("/"+string(models.ActionStart), orNotImplemented(deps.StartHandler))
			r.Post("/"+string(models.ActionPause), orNotImplemented(deps.PauseHandler))
			r.Post("/"+string(models.ActionResume), orNotImplemented(deps.ResumeHandler))
			r.Post("/"+string(models.ActionStop), orNotImplemented(deps.StopHandler))
		})

		r.Post("/api/v1/push/subscriptions", orNotImplemented(deps.SubscribeHandler))
		r.Delete("/api/v1/push/subscriptions", orNotImplemented(deps.UnsubscribeHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

			r.Post("/api/v1/admin/jobs", orNotImplemented(deps.CreateJobHandler))
			r.Get("/api/v1/admin/jobs/live", orNotImplemented(deps.LiveJobsHandler))
			r.Post("/api/v1/admin/jobs/{jobID}/approve", orNotImplemented(deps.ApproveHandler))
			r.Post("/api/v1/admin/jobs/{jobID}/retry", orNotImplemented(deps.RetryHandler))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
