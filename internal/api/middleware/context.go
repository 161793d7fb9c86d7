package middleware

import (
	"context"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobclock/pkg/models"
)

type contextKey string

const (
	technicianIDKey contextKey = "technician_id"
	apiKeyScopesKey contextKey = "api_key_scopes"
)

func SetTechnicianID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, technicianIDKey, id)
}

func GetTechnicianID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(technicianIDKey).(uuid.UUID)
	return id, ok
}

// IsAdmin reports whether the authenticated key carries the admin scope.
func IsAdmin(r *http.Request) bool {
	return slices.Contains(getScopes(r), models.ScopeAdmin)
}

// SetScopes stores the authenticated key's scopes in ctx.
func SetScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, apiKeyScopesKey, scopes)
}

func getScopes(r *http.Request) []string {
	scopes, _ := r.Context().Value(apiKeyScopesKey).([]string)
	return scopes
}
