package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobclock/internal/api/response"
	"github.com/kiranshivaraju/jobclock/internal/store"
	"github.com/kiranshivaraju/jobclock/pkg/models"
)

// subscriptionRequest mirrors the browser's PushSubscription.toJSON().
type subscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// NewVAPIDKeyHandler returns the handler for GET /api/v1/push/vapid-public-key.
func NewVAPIDKeyHandler(publicKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if publicKey == "" {
			response.Error(w, http.StatusNotFound, "PUSH_DISABLED", "Push notifications are not configured", nil)
			return
		}
		response.JSON(w, map[string]string{"public_key": publicKey})
	}
}

// NewSubscribeHandler returns the handler for POST /api/v1/push/subscriptions.
// Re-subscribing an endpoint moves it to the caller.
func NewSubscribeHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var req subscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		details := map[string]string{}
		if !strings.HasPrefix(req.Endpoint, "https://") {
			details["endpoint"] = "endpoint must be an https URL"
		}
		if req.Keys.P256dh == "" {
			details["keys.p256dh"] = "p256dh is required"
		}
		if req.Keys.Auth == "" {
			details["keys.auth"] = "auth is required"
		}
		if len(details) > 0 {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid subscription", details)
			return
		}

		now := time.Now().UTC()
		sub := &models.PushSubscription{
			ID:           uuid.New(),
			TechnicianID: actor.TechnicianID,
			Endpoint:     req.Endpoint,
			P256dh:       req.Keys.P256dh,
			Auth:         req.Keys.Auth,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.UpsertPushSubscription(r.Context(), sub); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to save subscription", nil)
			return
		}
		response.Created(w, sub)
	}
}

// NewUnsubscribeHandler returns the handler for DELETE /api/v1/push/subscriptions.
// Unknown endpoints are not an error.
func NewUnsubscribeHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := actorFrom(w, r); !ok {
			return
		}
		var req struct {
			Endpoint string `json:"endpoint"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "endpoint is required", nil)
			return
		}
		err := s.DeletePushSubscription(r.Context(), req.Endpoint)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete subscription", nil)
			return
		}
		response.NoContent(w)
	}
}
