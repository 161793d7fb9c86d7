package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kiranshivaraju/jobclock/internal/api/response"
)

// Recovery turns a handler panic into a 500 error envelope. The request ID
// is echoed in the error details so a technician's report can be matched
// to the logged stack. http.ErrAbortHandler is re-panicked for net/http.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			reqID := chimw.GetReqID(r.Context())
			attrs := []any{
				"error", rec,
				"stack", string(debug.Stack()),
				"method", r.Method,
				"path", r.URL.Path,
			}
			if reqID != "" {
				attrs = append(attrs, "request_id", reqID)
			}
			if techID, ok := GetTechnicianID(r); ok {
				attrs = append(attrs, "technician_id", techID)
			}
			slog.Error("panic recovered", attrs...)

			var details any
			if reqID != "" {
				details = map[string]string{"request_id": reqID}
			}
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred", details)
		}()
		next.ServeHTTP(w, r)
	})
}
